package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultPDSHost is the public Bluesky PDS entrypoint.
	DefaultPDSHost = "https://bsky.social"

	notificationLimit = 50
	requestTimeout    = 10 * time.Second
)

// Client talks to an AT Protocol personal data server over XRPC.
type Client struct {
	host       string
	httpClient *http.Client
	log        logrus.FieldLogger

	accessJwt string
	did       string
}

// NewClient creates a client for the given PDS host. The client is unusable
// until Login succeeds.
func NewClient(host string, log logrus.FieldLogger) *Client {
	if host == "" {
		host = DefaultPDSHost
	}
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// APIError is a non-2xx XRPC response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xrpc status %d: %s", e.StatusCode, e.Body)
}

// Login creates a session with the PDS and stores the access token and
// repository DID for subsequent calls.
func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	body, err := c.post(ctx, "com.atproto.server.createSession", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	c.accessJwt = session.AccessJwt
	c.did = session.DID
	return &session, nil
}

// DID returns the repository DID of the logged-in account.
func (c *Client) DID() string {
	return c.did
}

// ListMentions fetches the most recent notifications and returns the unread
// mention-type ones as typed Mentions.
func (c *Client) ListMentions(ctx context.Context) ([]Mention, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", notificationLimit))

	body, err := c.get(ctx, "app.bsky.notification.listNotifications", params)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	var resp struct {
		Notifications []notification `json:"notifications"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}

	var mentions []Mention
	for i := range resp.Notifications {
		n := &resp.Notifications[i]
		if n.Reason != "mention" || n.IsRead {
			continue
		}
		mentions = append(mentions, n.toMention())
	}

	c.log.WithFields(logrus.Fields{
		"notifications": len(resp.Notifications),
		"mentions":      len(mentions),
	}).Debug("fetched notifications")

	return mentions, nil
}

// MarkRead tells the PDS that every notification up to seenAt has been seen.
func (c *Client) MarkRead(ctx context.Context, seenAt time.Time) error {
	_, err := c.post(ctx, "app.bsky.notification.updateSeen", map[string]string{
		"seenAt": seenAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("update seen: %w", err)
	}
	return nil
}

// GetPosts batch-fetches post text and author for the given URIs. Missing or
// deleted posts are simply absent from the returned map.
func (c *Client) GetPosts(ctx context.Context, uris []string) (map[string]PostContent, error) {
	if len(uris) == 0 {
		return map[string]PostContent{}, nil
	}

	params := url.Values{"uris": uris}
	body, err := c.get(ctx, "app.bsky.feed.getPosts", params)
	if err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}

	var resp struct {
		Posts []struct {
			URI    string `json:"uri"`
			Author struct {
				Handle string `json:"handle"`
			} `json:"author"`
			Record struct {
				Text string `json:"text"`
			} `json:"record"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	contents := make(map[string]PostContent, len(resp.Posts))
	for _, post := range resp.Posts {
		contents[post.URI] = PostContent{
			Text:   post.Record.Text,
			Author: post.Author.Handle,
		}
	}
	return contents, nil
}

// PostReply creates a post record threaded under the given root and parent.
func (c *Client) PostReply(ctx context.Context, root, parent PostRef, text string) error {
	record := map[string]any{
		"$type": "app.bsky.feed.post",
		"text":  text,
		"reply": map[string]PostRef{
			"root":   root,
			"parent": parent,
		},
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	payload := map[string]any{
		"repo":       c.did,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}

	if _, err := c.post(ctx, "com.atproto.repo.createRecord", payload); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/xrpc/%s?%s", c.host, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, method string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/xrpc/%s", c.host, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
