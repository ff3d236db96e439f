package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skylabel/bsky"
	"skylabel/internal/reply"
	"skylabel/mistral"
)

type fakeNotifier struct {
	mentions []bsky.Mention
	listErr  error
	markErr  error
	marked   []time.Time
}

func (f *fakeNotifier) ListMentions(ctx context.Context) ([]bsky.Mention, error) {
	return f.mentions, f.listErr
}

func (f *fakeNotifier) MarkRead(ctx context.Context, seenAt time.Time) error {
	f.marked = append(f.marked, seenAt)
	return f.markErr
}

type fakeFetcher struct {
	contents map[string]bsky.PostContent
	err      error
	gotURIs  []string
}

func (f *fakeFetcher) GetPosts(ctx context.Context, uris []string) (map[string]bsky.PostContent, error) {
	f.gotURIs = append(f.gotURIs, uris...)
	if f.err != nil {
		return nil, f.err
	}
	return f.contents, nil
}

type publishCall struct {
	root   bsky.PostRef
	parent bsky.PostRef
	text   string
}

type fakePublisher struct {
	calls   []publishCall
	failOn  int // 1-based call index to fail, 0 means never
	failErr error
}

func (f *fakePublisher) PostReply(ctx context.Context, root, parent bsky.PostRef, text string) error {
	f.calls = append(f.calls, publishCall{root: root, parent: parent, text: text})
	if f.failOn == len(f.calls) {
		return f.failErr
	}
	return nil
}

type classifyCall struct {
	rootText   string
	parentText string
}

type fakeClassifier struct {
	labels        []string
	witty         string
	classifyCalls []classifyCall
	wittyCalls    []string
	panicOnCall   bool
}

func (f *fakeClassifier) Classify(ctx context.Context, rootText, parentText string) mistral.Result {
	if f.panicOnCall {
		panic("classifier exploded")
	}
	f.classifyCalls = append(f.classifyCalls, classifyCall{rootText: rootText, parentText: parentText})
	return mistral.Result{RootText: rootText, ParentText: parentText, Labels: f.labels}
}

func (f *fakeClassifier) GenerateWittyReply(ctx context.Context, mentionText string) string {
	f.wittyCalls = append(f.wittyCalls, mentionText)
	return f.witty
}

func threadedMention() bsky.Mention {
	return bsky.Mention{
		URI:    "at://did:plc:m/post/1",
		CID:    "cidm",
		Author: "mentioner.bsky.social",
		Text:   "@bot classify this",
		Parent: &bsky.PostRef{URI: "at://did:plc:p/post/1", CID: "cidp"},
		Root:   &bsky.PostRef{URI: "at://did:plc:r/post/1", CID: "cidr"},
	}
}

func bareMention() bsky.Mention {
	return bsky.Mention{
		URI:    "at://did:plc:m/post/2",
		CID:    "cidb",
		Author: "fan.bsky.social",
		Text:   "@bot hello there",
	}
}

func newTestBot(t *testing.T, notifier *fakeNotifier, fetcher *fakeFetcher, publisher *fakePublisher, classifier *fakeClassifier) *Bot {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	b, err := New(Config{
		Notifier:   notifier,
		Fetcher:    fetcher,
		Publisher:  publisher,
		Classifier: classifier,
		Logger:     logger,
	})
	require.NoError(t, err)
	return b
}

func TestCycleClassifiesThreadedMention(t *testing.T) {
	notifier := &fakeNotifier{mentions: []bsky.Mention{threadedMention()}}
	fetcher := &fakeFetcher{contents: map[string]bsky.PostContent{
		"at://did:plc:r/post/1": {Text: "the original take", Author: "root-author"},
		"at://did:plc:p/post/1": {Text: "the nasty reply", Author: "parent-author"},
	}}
	publisher := &fakePublisher{}
	classifier := &fakeClassifier{labels: []string{"racist", "condescending"}}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	require.Len(t, classifier.classifyCalls, 1)
	assert.Equal(t, "the original take", classifier.classifyCalls[0].rootText)
	assert.Equal(t, "the nasty reply", classifier.classifyCalls[0].parentText)
	assert.Empty(t, classifier.wittyCalls)

	require.Len(t, publisher.calls, 1)
	call := publisher.calls[0]
	assert.Equal(t, "at://did:plc:r/post/1", call.root.URI)
	assert.Equal(t, "at://did:plc:p/post/1", call.parent.URI)

	expected := reply.Compose([]string{"racist", "condescending"}, "the nasty reply", "parent-author")
	assert.Equal(t, expected, call.text)

	require.Len(t, notifier.marked, 1, "notifications should be marked read after the batch")
}

func TestCycleWittyReplyForBareMention(t *testing.T) {
	notifier := &fakeNotifier{mentions: []bsky.Mention{bareMention()}}
	fetcher := &fakeFetcher{}
	publisher := &fakePublisher{}
	classifier := &fakeClassifier{witty: "Here all week, try the veal."}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	assert.Empty(t, classifier.classifyCalls, "composer and classifier are bypassed for bare mentions")
	require.Len(t, classifier.wittyCalls, 1)
	assert.Equal(t, "@bot hello there", classifier.wittyCalls[0])

	require.Len(t, publisher.calls, 1)
	call := publisher.calls[0]
	assert.Equal(t, "Here all week, try the veal.", call.text, "witty reply is posted verbatim")

	// Reply threads directly under the mention itself.
	self := bsky.PostRef{URI: "at://did:plc:m/post/2", CID: "cidb"}
	assert.Equal(t, self, call.root)
	assert.Equal(t, self, call.parent)

	assert.Empty(t, fetcher.gotURIs, "no content fetch for a batch of bare mentions")
}

func TestCycleTreatsMissingContentAsEmpty(t *testing.T) {
	notifier := &fakeNotifier{mentions: []bsky.Mention{threadedMention()}}
	fetcher := &fakeFetcher{contents: map[string]bsky.PostContent{}}
	publisher := &fakePublisher{}
	classifier := &fakeClassifier{labels: []string{"neutral"}}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	require.Len(t, classifier.classifyCalls, 1)
	assert.Equal(t, "", classifier.classifyCalls[0].rootText)
	assert.Equal(t, "", classifier.classifyCalls[0].parentText)

	require.Len(t, publisher.calls, 1)
	assert.Contains(t, publisher.calls[0].text, "by: @unknown")
}

func TestCycleFetchFailureDoesNotAbort(t *testing.T) {
	notifier := &fakeNotifier{mentions: []bsky.Mention{threadedMention()}}
	fetcher := &fakeFetcher{err: errors.New("pds unavailable")}
	publisher := &fakePublisher{}
	classifier := &fakeClassifier{labels: []string{"neutral"}}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	assert.Len(t, publisher.calls, 1)
	assert.Len(t, notifier.marked, 1)
}

func TestCyclePublishFailureDoesNotAbortSiblings(t *testing.T) {
	first := threadedMention()
	second := bareMention()
	notifier := &fakeNotifier{mentions: []bsky.Mention{first, second}}
	fetcher := &fakeFetcher{contents: map[string]bsky.PostContent{}}
	publisher := &fakePublisher{failOn: 1, failErr: errors.New("record rejected")}
	classifier := &fakeClassifier{labels: []string{"neutral"}, witty: "ha"}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	assert.Len(t, publisher.calls, 2, "second mention must still be processed")
	assert.Len(t, notifier.marked, 1)
}

func TestCycleListFailureIsTransient(t *testing.T) {
	notifier := &fakeNotifier{listErr: errors.New("connection refused")}
	fetcher := &fakeFetcher{}
	publisher := &fakePublisher{}
	classifier := &fakeClassifier{}

	b := newTestBot(t, notifier, fetcher, publisher, classifier)
	err := b.runCycle(context.Background())

	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindTransient, cerr.Kind)
	assert.Empty(t, publisher.calls)
	assert.Empty(t, notifier.marked, "read watermark must not move on a failed fetch")
}

func TestCycleNoMentionsSkipsMarkRead(t *testing.T) {
	notifier := &fakeNotifier{}
	b := newTestBot(t, notifier, &fakeFetcher{}, &fakePublisher{}, &fakeClassifier{})

	require.NoError(t, b.runCycle(context.Background()))
	assert.Empty(t, notifier.marked)
}

func TestCycleDeduplicatesContentURIs(t *testing.T) {
	shared := &bsky.PostRef{URI: "at://did:plc:r/post/1", CID: "cidr"}
	first := threadedMention()
	first.Root = shared
	second := threadedMention()
	second.CID = "cidm2"
	second.Root = shared
	second.Parent = shared

	notifier := &fakeNotifier{mentions: []bsky.Mention{first, second}}
	fetcher := &fakeFetcher{contents: map[string]bsky.PostContent{}}
	classifier := &fakeClassifier{labels: []string{"neutral"}}

	b := newTestBot(t, notifier, fetcher, &fakePublisher{}, classifier)
	require.NoError(t, b.runCycle(context.Background()))

	// first.Parent and the shared root; the duplicates collapse.
	assert.ElementsMatch(t, []string{"at://did:plc:p/post/1", "at://did:plc:r/post/1"}, fetcher.gotURIs)
}

func TestSafeCycleConvertsPanicToUnexpected(t *testing.T) {
	notifier := &fakeNotifier{mentions: []bsky.Mention{threadedMention()}}
	classifier := &fakeClassifier{panicOnCall: true}

	b := newTestBot(t, notifier, &fakeFetcher{}, &fakePublisher{}, classifier)
	err := b.safeCycle(context.Background())

	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnexpected, cerr.Kind)
	assert.Contains(t, cerr.Err.Error(), "classifier exploded")
}

func TestRunStopsOnCancel(t *testing.T) {
	notifier := &fakeNotifier{}
	b := newTestBot(t, notifier, &fakeFetcher{}, &fakePublisher{}, &fakeClassifier{})
	b.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "clean interrupt must exit without error")
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
