package mistral

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	mistralBaseURL = "https://api.mistral.ai/v1"
	defaultModel   = "mistral-large-2411"

	// maxAttempts is the total number of tries per request, first included.
	maxAttempts = 3

	// FallbackReply is returned when witty-reply generation fails for any
	// reason other than rate limiting.
	FallbackReply = "Oops, something went wrong! 😅"
)

// DefaultCategories is the taxonomy used when none is configured.
var DefaultCategories = []string{
	"derogatory_general", "antisemitic", "islamophobic", "anti_christian",
	"racist", "sexist", "xenophobic", "condescending", "inciting_violence",
	"sarcastic", "neutral", "positive_supportive", "hate_general",
}

// Result is the outcome of classifying a thread's comments. Labels is never
// empty; it collapses to ["neutral"] when the model returns nothing usable.
type Result struct {
	RootText   string
	ParentText string
	Labels     []string
}

// Config configures the Mistral client.
type Config struct {
	APIKey string

	// BaseURL overrides the Mistral endpoint, used in tests.
	BaseURL string

	// Model defaults to mistral-large-2411.
	Model string

	// Categories is the valid label taxonomy. Labels outside this set are
	// discarded from model output.
	Categories []string

	// RateLimitDelay is slept before every request attempt, successful ones
	// included, to throttle request volume. Defaults to 1 second.
	RateLimitDelay time.Duration

	// RetryDelay is the backoff between failed attempts. Defaults to 5 seconds.
	RetryDelay time.Duration

	// OnRetry is invoked once per retried attempt, if set.
	OnRetry func()

	Logger logrus.FieldLogger
}

// Client classifies comments and generates witty replies through the Mistral
// chat-completion API, which is OpenAI-compatible.
type Client struct {
	client     *openai.Client
	model      string
	categories []string
	labelSet   map[string]bool
	pacing     time.Duration
	retryDelay time.Duration
	onRetry    func()
	log        logrus.FieldLogger
}

// NewClient creates a new Mistral client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mistralBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	labelSet := make(map[string]bool, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		labelSet[cat] = true
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      cfg.Model,
		categories: cfg.Categories,
		labelSet:   labelSet,
		pacing:     cfg.RateLimitDelay,
		retryDelay: cfg.RetryDelay,
		onRetry:    cfg.OnRetry,
		log:        cfg.Logger,
	}
}

// Categories returns the configured taxonomy.
func (c *Client) Categories() []string {
	return c.categories
}

// Classify labels the root and parent comments of a thread. Transport
// failures are retried up to maxAttempts; exhausting all attempts yields a
// neutral Result rather than an error.
func (c *Client) Classify(ctx context.Context, rootText, parentText string) Result {
	policy := retrypolicy.NewBuilder[string]().
		WithDelay(c.retryDelay).
		WithMaxRetries(maxAttempts - 1).
		OnRetry(c.noteRetry).
		Build()

	raw, err := failsafe.With(policy).WithContext(ctx).Get(func() (string, error) {
		return c.complete(ctx, classifySystemPrompt, c.classifyPrompt(rootText, parentText), 0.1)
	})
	if err != nil {
		c.log.WithError(err).Warn("classification failed, defaulting to neutral")
		return Result{RootText: rootText, ParentText: parentText, Labels: []string{"neutral"}}
	}

	return Result{
		RootText:   rootText,
		ParentText: parentText,
		Labels:     c.filterLabels(raw),
	}
}

// GenerateWittyReply produces a short humorous reply to a bare mention.
// Rate-limited attempts are retried; any other failure returns FallbackReply
// immediately.
func (c *Client) GenerateWittyReply(ctx context.Context, mentionText string) string {
	policy := retrypolicy.NewBuilder[string]().
		WithDelay(c.retryDelay).
		WithMaxRetries(maxAttempts - 1).
		HandleIf(func(_ string, err error) bool {
			return isRateLimited(err)
		}).
		OnRetry(c.noteRetry).
		Build()

	reply, err := failsafe.With(policy).WithContext(ctx).Get(func() (string, error) {
		return c.complete(ctx, wittySystemPrompt, c.wittyPrompt(mentionText), 0.3)
	})
	if err != nil {
		c.log.WithError(err).Warn("witty reply generation failed, using fallback")
		return FallbackReply
	}

	return strings.TrimSpace(reply)
}

// complete sends one chat completion, pacing the request first. The response
// is capped at the first newline so the model cannot ramble past one line.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	if err := c.pace(ctx); err != nil {
		return "", err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   50,
		Stop:        []string{"\n"},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// pace sleeps the rate-limit delay before an attempt. This runs before every
// attempt, the first included, to throttle request volume pre-emptively.
func (c *Client) pace(ctx context.Context) error {
	select {
	case <-time.After(c.pacing):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) noteRetry(e failsafe.ExecutionEvent[string]) {
	c.log.WithError(e.LastError()).Debug("retrying mistral request")
	if c.onRetry != nil {
		c.onRetry()
	}
}

// filterLabels parses the model's comma-separated response down to labels in
// the configured taxonomy, collapsing to neutral when nothing survives.
func (c *Client) filterLabels(raw string) []string {
	var labels []string
	for _, part := range strings.Split(raw, ",") {
		label := strings.ToLower(strings.TrimSpace(part))
		if c.labelSet[label] {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return []string{"neutral"}
	}
	return labels
}

// isRateLimited reports whether err is an HTTP 429 from the API.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
