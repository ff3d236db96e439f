package reply

import "strings"

// budget is the character allowance for the quoted comment, classification
// line, and attribution. The remaining 10 characters of the platform's
// 300-character post limit cover the "Comment: " header and its newline.
const budget = 290

// Compose builds the classification reply. The quoted comment is truncated
// deterministically so the result never exceeds the platform limit: the
// classification and attribution lines are budgeted first, and whatever room
// is left goes to the comment excerpt. Lengths are counted in runes.
func Compose(labels []string, comment, author string) string {
	classification := "Classification: " + strings.Join(labels, ", ") + "\n"
	attribution := "by: @" + author

	remaining := budget - len([]rune(classification)) - len([]rune(attribution))

	switch {
	case remaining <= 0:
		// Classification and attribution fill the whole post; drop the comment.
		comment = ""
	case len([]rune(comment)) > remaining:
		if remaining <= 3 {
			// Not even room for the ellipsis; drop the comment rather
			// than overflow the post limit.
			comment = ""
		} else {
			comment = string([]rune(comment)[:remaining-3]) + "..."
		}
	}

	return "Comment: " + comment + "\n" + classification + attribution
}
