package bsky

import "time"

// PostRef identifies a specific post revision (URI plus content identifier).
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Mention is an unread mention-type notification, decoded at the gateway
// boundary. Parent and Root are nil when the mentioning post is not a reply.
type Mention struct {
	URI       string
	CID       string
	Author    string
	Text      string
	IndexedAt time.Time
	Parent    *PostRef
	Root      *PostRef
}

// IsReply reports whether the mention occurred inside a thread.
func (m *Mention) IsReply() bool {
	return m.Parent != nil || m.Root != nil
}

// Ref returns the mention's own post reference, used to thread the reply
// directly under a top-level mention.
func (m *Mention) Ref() PostRef {
	return PostRef{URI: m.URI, CID: m.CID}
}

// PostContent is the text and author of a fetched post, keyed by URI in the
// resolver's lookup table. Valid for a single poll cycle.
type PostContent struct {
	Text   string
	Author string
}

// Session holds the credentials returned by a successful login.
type Session struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// notification mirrors the wire shape of app.bsky.notification records.
type notification struct {
	URI       string `json:"uri"`
	CID       string `json:"cid"`
	Reason    string `json:"reason"`
	IsRead    bool   `json:"isRead"`
	IndexedAt string `json:"indexedAt"`
	Author    struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text  string `json:"text"`
		Reply *struct {
			Parent *PostRef `json:"parent"`
			Root   *PostRef `json:"root"`
		} `json:"reply"`
	} `json:"record"`
}

// toMention maps a raw notification into the typed Mention used downstream.
func (n *notification) toMention() Mention {
	m := Mention{
		URI:    n.URI,
		CID:    n.CID,
		Author: n.Author.Handle,
		Text:   n.Record.Text,
	}
	if t, err := time.Parse(time.RFC3339, n.IndexedAt); err == nil {
		m.IndexedAt = t
	}
	if r := n.Record.Reply; r != nil {
		if r.Parent != nil && r.Parent.URI != "" {
			ref := *r.Parent
			m.Parent = &ref
		}
		if r.Root != nil && r.Root.URI != "" {
			ref := *r.Root
			m.Root = &ref
		}
	}
	return m
}
