package mistral

import (
	"fmt"
	"strings"
)

const classifySystemPrompt = "You are a precise and culturally sensitive comment classification assistant."

const wittySystemPrompt = "You are a witty and humorous assistant."

// classifyPrompt builds the classification instruction. When root and parent
// differ the model sees both the original post and the reply; otherwise only
// the single comment is referenced.
func (c *Client) classifyPrompt(rootText, parentText string) string {
	categories := strings.Join(c.categories, ", ")

	subject := "comment"
	if rootText != parentText {
		subject = "reply to the tweet"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a professional comment classifier specializing in detecting nuanced discriminatory and hateful language.
Your task is to categorize comments strictly into one or more of these categories: %s.

Guidelines:
- Read the %s carefully and detect subtle stereotypes, coded language, and implied biases.
- Choose ONE OR MORE primary categories if applicable.
- Respond with EXACTLY the category names in lowercase, separated by commas if multiple categories apply.
- Consider cultural context and the implications of emoticons.

`, categories, subject)

	if rootText != parentText {
		fmt.Fprintf(&b, "Tweet: %s\nReply to the tweet: %s\n", rootText, parentText)
	} else {
		fmt.Fprintf(&b, "Comment: %s\n", rootText)
	}

	b.WriteString("\nClassification:")
	return b.String()
}

// wittyPrompt builds the single-turn prompt for a humorous reply.
func (c *Client) wittyPrompt(mentionText string) string {
	return fmt.Sprintf(`You are a witty and humorous assistant. Respond to the following mention with a short, witty, and clever reply.

Mention: %s

Reply:`, mentionText)
}
