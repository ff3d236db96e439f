package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"skylabel/bsky"
	"skylabel/internal/audit"
	"skylabel/internal/metrics"
	"skylabel/internal/reply"
	"skylabel/mistral"
)

// Notifier lists unread mentions and advances the read watermark.
type Notifier interface {
	ListMentions(ctx context.Context) ([]bsky.Mention, error)
	MarkRead(ctx context.Context, seenAt time.Time) error
}

// ContentFetcher batch-resolves post text and author by URI.
type ContentFetcher interface {
	GetPosts(ctx context.Context, uris []string) (map[string]bsky.PostContent, error)
}

// Publisher submits a threaded reply post.
type Publisher interface {
	PostReply(ctx context.Context, root, parent bsky.PostRef, text string) error
}

// Classifier labels thread comments and generates witty fallback replies.
type Classifier interface {
	Classify(ctx context.Context, rootText, parentText string) mistral.Result
	GenerateWittyReply(ctx context.Context, mentionText string) string
}

// Config configures the bot.
type Config struct {
	Notifier   Notifier
	Fetcher    ContentFetcher
	Publisher  Publisher
	Classifier Classifier

	// Interval between poll cycles. Defaults to 60 seconds.
	Interval time.Duration

	// RecoveryDelay is slept after an unexpected cycle error before the
	// loop continues. Defaults to 10 seconds.
	RecoveryDelay time.Duration

	// Audit is the optional reply audit trail.
	Audit *audit.Store

	// Metrics is the optional metrics collector.
	Metrics *metrics.Collector

	Logger logrus.FieldLogger
}

// Bot polls for unread mentions, classifies their thread context, and posts
// a reply per mention. Processing is strictly sequential; no state survives
// across cycles except the upstream read watermark.
type Bot struct {
	notifier   Notifier
	fetcher    ContentFetcher
	publisher  Publisher
	classifier Classifier

	interval      time.Duration
	recoveryDelay time.Duration
	audit         *audit.Store
	metrics       *metrics.Collector
	log           logrus.FieldLogger
}

// New creates a new bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Notifier == nil || cfg.Fetcher == nil || cfg.Publisher == nil || cfg.Classifier == nil {
		return nil, errors.New("bot: notifier, fetcher, publisher, and classifier are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Bot{
		notifier:      cfg.Notifier,
		fetcher:       cfg.Fetcher,
		publisher:     cfg.Publisher,
		classifier:    cfg.Classifier,
		interval:      cfg.Interval,
		recoveryDelay: cfg.RecoveryDelay,
		audit:         cfg.Audit,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
	}, nil
}

// Run executes poll cycles until ctx is cancelled, then returns nil. A cycle
// failure never stops the loop; the in-flight mention finishes before the
// loop notices cancellation.
func (b *Bot) Run(ctx context.Context) error {
	b.log.WithField("interval", b.interval.String()).Info("poll loop started")

	for {
		if err := b.safeCycle(ctx); err != nil {
			var cerr *CycleError
			if errors.As(err, &cerr) && cerr.Kind == KindUnexpected {
				b.log.WithError(cerr.Err).Error("unexpected cycle error")
				// Retry promptly after the recovery delay instead of
				// waiting out a full interval.
				if !b.sleep(ctx, b.recoveryDelay) {
					return nil
				}
				continue
			}
			b.log.WithError(err).Warn("cycle failed")
		}

		if b.metrics != nil {
			b.metrics.CyclesTotal.Inc()
		}

		if !b.sleep(ctx, b.interval) {
			b.log.Info("poll loop stopped")
			return nil
		}
	}
}

// safeCycle runs one cycle, converting panics into typed unexpected errors
// so a single bad record can never crash the process.
func (b *Bot) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = unexpectedErr(fmt.Errorf("panic: %v", r))
		}
	}()
	return b.runCycle(ctx)
}

// runCycle processes one batch of mentions. Failures are contained at the
// smallest scope: a mention's failure is logged and its siblings still run.
func (b *Bot) runCycle(ctx context.Context) error {
	mentions, err := b.notifier.ListMentions(ctx)
	if err != nil {
		// Fail-soft: the same mentions stay unread and return next cycle.
		return transientErr(fmt.Errorf("list mentions: %w", err))
	}

	if len(mentions) == 0 {
		b.log.Debug("no new mentions")
		return nil
	}

	b.log.WithField("count", len(mentions)).Info("processing mentions")

	contents := b.resolveContents(ctx, mentions)

	for i := range mentions {
		if ctx.Err() != nil {
			// Shutdown requested; leave the rest unread for the next run.
			return nil
		}
		b.processMention(ctx, &mentions[i], contents)
	}

	if err := b.notifier.MarkRead(ctx, time.Now()); err != nil {
		// At-least-once: these mentions may be reprocessed next cycle.
		b.log.WithError(err).Warn("failed to mark notifications read")
	}

	return nil
}

// resolveContents batch-fetches the deduplicated union of root and parent
// URIs referenced by the batch. On failure every lookup misses, which
// downstream code treats as "no content found".
func (b *Bot) resolveContents(ctx context.Context, mentions []bsky.Mention) map[string]bsky.PostContent {
	seen := make(map[string]bool)
	var uris []string
	for i := range mentions {
		for _, ref := range []*bsky.PostRef{mentions[i].Parent, mentions[i].Root} {
			if ref != nil && !seen[ref.URI] {
				seen[ref.URI] = true
				uris = append(uris, ref.URI)
			}
		}
	}

	if len(uris) == 0 {
		return map[string]bsky.PostContent{}
	}

	contents, err := b.fetcher.GetPosts(ctx, uris)
	if err != nil {
		b.log.WithError(err).Warn("failed to fetch thread contents")
		return map[string]bsky.PostContent{}
	}
	return contents
}

// processMention classifies one mention's thread context and posts the
// reply. Bare mentions get a witty reply instead of a classification.
func (b *Bot) processMention(ctx context.Context, m *bsky.Mention, contents map[string]bsky.PostContent) {
	log := b.log.WithFields(logrus.Fields{
		"author": m.Author,
		"cid":    m.CID,
	})
	log.WithField("text", m.Text).Debug("mention")

	if b.metrics != nil {
		b.metrics.MentionsTotal.Inc()
	}

	var text string
	var labels []string

	if m.IsReply() {
		rootContent := lookupContent(contents, m.Root)
		parentContent := lookupContent(contents, m.Parent)

		result := b.classifier.Classify(ctx, rootContent.Text, parentContent.Text)
		labels = result.Labels
		text = reply.Compose(result.Labels, parentContent.Text, parentContent.Author)

		log.WithField("labels", labels).Info("classified mention")
	} else {
		// No thread context to classify; answer the mention itself.
		text = b.classifier.GenerateWittyReply(ctx, m.Text)
		if b.metrics != nil {
			b.metrics.WittyRepliesTotal.Inc()
		}
		log.Info("witty reply for bare mention")
	}

	root, parent := b.replyRefs(m)
	if err := b.publisher.PostReply(ctx, root, parent, text); err != nil {
		log.WithError(err).Error("failed to post reply")
		if b.metrics != nil {
			b.metrics.PublishFailures.Inc()
		}
		return
	}

	if b.metrics != nil {
		for _, label := range labels {
			b.metrics.ClassificationsTotal.WithLabelValues(label).Inc()
		}
	}

	if b.audit != nil {
		entry := audit.Entry{
			MentionCID: m.CID,
			MentionURI: m.URI,
			Author:     m.Author,
			Labels:     labels,
			ReplyText:  text,
		}
		if err := b.audit.Record(entry); err != nil {
			log.WithError(err).Warn("failed to record audit entry")
		}
	}
}

// replyRefs picks the thread anchors for the reply. A top-level mention has
// no parent or root, so the reply threads directly under the mention.
func (b *Bot) replyRefs(m *bsky.Mention) (root, parent bsky.PostRef) {
	root = m.Ref()
	parent = m.Ref()
	if m.Root != nil {
		root = *m.Root
	}
	if m.Parent != nil {
		parent = *m.Parent
	}
	return root, parent
}

// lookupContent treats a missing ref or a missed fetch as "no content
// found" rather than failing the cycle.
func lookupContent(contents map[string]bsky.PostContent, ref *bsky.PostRef) bsky.PostContent {
	if ref == nil {
		return bsky.PostContent{Author: "unknown"}
	}
	content, ok := contents[ref.URI]
	if !ok {
		return bsky.PostContent{Author: "unknown"}
	}
	return content
}

// sleep waits d or until ctx is cancelled, reporting whether the loop
// should continue.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
