package pipeline

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/events"
	"github.com/EternisAI/mailsift/pkg/mailbox"
	"github.com/EternisAI/mailsift/pkg/scoring"
)

// fakeProvider serves a fixed envelope set with optional paging, delays, and
// scripted list failures.
type fakeProvider struct {
	mu        sync.Mutex
	byID      map[string]email.RawEnvelope
	order     []string
	pageSize  int
	listErrAt int
	listDelay time.Duration
	listCalls int
	actions   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byID: make(map[string]email.RawEnvelope)}
}

func (p *fakeProvider) add(envelope email.RawEnvelope) {
	p.byID[envelope.ID] = envelope
	p.order = append(p.order, envelope.ID)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ListMessages(ctx context.Context, query, pageToken string, maxResults int64) (*mailbox.MessagePage, error) {
	p.mu.Lock()
	p.listCalls++
	call := p.listCalls
	p.mu.Unlock()

	if p.listDelay > 0 {
		time.Sleep(p.listDelay)
	}
	if p.listErrAt > 0 && call >= p.listErrAt {
		return nil, &email.ProviderError{Provider: "fake", Op: "list", Err: errors.New("token expired")}
	}

	start := 0
	if pageToken != "" {
		start, _ = strconv.Atoi(pageToken)
	}
	end := len(p.order)
	if p.pageSize > 0 && start+p.pageSize < end {
		end = start + p.pageSize
	}

	page := &mailbox.MessagePage{IDs: append([]string(nil), p.order[start:end]...)}
	if end < len(p.order) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (p *fakeProvider) GetMessage(ctx context.Context, id string) (email.RawEnvelope, error) {
	envelope, ok := p.byID[id]
	if !ok {
		return email.RawEnvelope{}, errors.Errorf("no message %s", id)
	}
	return envelope, nil
}

func (p *fakeProvider) ApplyAction(ctx context.Context, id string, action email.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, id+":"+string(action))
	return nil
}

var subjectScoreRe = regexp.MustCompile(`Subject: score-(\d+)`)

// autoGenerator answers every batch with valid JSON, reading each record's
// score out of its crafted subject line.
type autoGenerator struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	garbage bool
}

func (g *autoGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *autoGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.garbage {
		return "no json here", nil
	}

	matches := subjectScoreRe.FindAllStringSubmatch(user, -1)
	items := make([]string, 0, len(matches))
	for _, match := range matches {
		items = append(items, fmt.Sprintf(`{"score": %s, "category": "Other", "summary": "auto"}`, match[1]))
	}
	return "[" + strings.Join(items, ",") + "]", nil
}

func envelope(id string, score int, received time.Time, unread bool) email.RawEnvelope {
	labels := []string{"INBOX"}
	if unread {
		labels = append(labels, "UNREAD")
	}
	return email.RawEnvelope{
		ID:     id,
		Labels: labels,
		Headers: []email.Header{
			{Name: "From", Value: "Sender <sender-" + id + "@example.com>"},
			{Name: "Subject", Value: fmt.Sprintf("score-%d", score)},
		},
		Parts:        []email.BodyPart{{MimeType: "text/plain", Data: "body of " + id}},
		InternalDate: received.UnixMilli(),
	}
}

func newTestSession(t *testing.T, provider mailbox.Provider, generator scoring.Generator, opts Options) (*Session, *scoring.Cache) {
	t.Helper()
	logger := log.New(io.Discard)
	cache := scoring.NewCache(0)
	scorer, err := scoring.NewScorer(generator, cache, logger, scoring.DefaultBatchSize)
	require.NoError(t, err)
	fetcher := mailbox.NewFetcher(provider, logger)
	session := NewSession(logger, fetcher, scorer, cache, events.NewPublisher(nil, logger), opts)
	return session, cache
}

func defaultOpts() Options {
	return Options{Query: "in:inbox", MaxEmails: 50, Workers: 4, PassTimeout: 5 * time.Second}
}

func TestSessionPriorityAndCleanupViews(t *testing.T) {
	now := time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.add(envelope("u-low", 40, now, true))
	provider.add(envelope("u-high", 90, now.Add(time.Hour), true))
	provider.add(envelope("r-mid", 55, now.Add(2*time.Hour), false))

	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	priority, err := session.PriorityView(context.Background())
	require.NoError(t, err)
	require.Len(t, priority, 2, "read messages never rank in priority")
	assert.Equal(t, "u-high", priority[0].Record.ID)
	assert.Equal(t, 90, priority[0].Result.Score)
	assert.Equal(t, "u-low", priority[1].Record.ID)

	cleanup, err := session.CleanupView(context.Background())
	require.NoError(t, err)
	require.Len(t, cleanup, 1)
	assert.Equal(t, "r-mid", cleanup[0].Record.ID)

	stats := session.LastStats()
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 3, stats.Scored)
	assert.Equal(t, 0, stats.Failed)
}

func TestSessionReusesCacheAcrossPasses(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	generator := &autoGenerator{}
	for i := 0; i < 3; i++ {
		provider.add(envelope(fmt.Sprintf("m%d", i), 50+i, now, true))
	}

	session, cache := newTestSession(t, provider, generator, defaultOpts())

	_, err := session.PriorityView(context.Background())
	require.NoError(t, err)
	callsAfterFirst := generator.Calls()
	assert.Equal(t, 1, callsAfterFirst)
	assert.Equal(t, 3, cache.Len())

	_, err = session.CleanupView(context.Background())
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, generator.Calls(), "second pass must be served from cache")
	assert.Equal(t, 3, session.LastStats().CacheHits)
}

func TestSessionAnalysisFailureKeepsViewsPartial(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	for i := 0; i < 3; i++ {
		provider.add(envelope(fmt.Sprintf("m%d", i), 50, now, true))
	}

	session, _ := newTestSession(t, provider, &autoGenerator{garbage: true}, defaultOpts())

	priority, err := session.PriorityView(context.Background())
	require.NoError(t, err, "analysis failure is degradation, not an error")
	assert.Empty(t, priority)

	stats, err := session.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 0, stats.ScoredMessages)
	assert.Equal(t, 3, stats.FailedMessages)
}

func TestSessionFetchFailureFailsPass(t *testing.T) {
	provider := newFakeProvider()
	provider.listErrAt = 1

	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	_, err := session.PriorityView(context.Background())
	require.Error(t, err)
	assert.True(t, email.IsProviderError(err))
}

func TestSessionPartialFetchProceeds(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	provider.pageSize = 2
	provider.listErrAt = 2
	for i := 0; i < 4; i++ {
		provider.add(envelope(fmt.Sprintf("m%d", i), 50, now, true))
	}

	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	priority, err := session.PriorityView(context.Background())
	require.NoError(t, err, "partial mailbox still produces views")
	assert.Len(t, priority, 2)
	assert.Equal(t, 2, session.LastStats().Fetched)
}

func TestSessionTimeoutReturnsPartialResults(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	for i := 0; i < 3; i++ {
		provider.add(envelope(fmt.Sprintf("m%d", i), 50, now, true))
	}

	opts := defaultOpts()
	opts.PassTimeout = 100 * time.Millisecond
	session, _ := newTestSession(t, provider, &autoGenerator{delay: time.Second}, opts)

	start := time.Now()
	stats, err := session.Refresh(context.Background())
	require.NoError(t, err, "an expired pass reports what it has instead of failing")
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 0, stats.Scored)
	assert.Equal(t, 3, stats.Failed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSessionConcurrentRefreshCoalesces(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	provider.listDelay = 50 * time.Millisecond
	provider.add(envelope("m0", 50, now, true))

	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.listCalls, "concurrent refreshes share one pass")
}

func TestSessionSnapshotViewsAgree(t *testing.T) {
	now := time.Now()
	provider := newFakeProvider()
	provider.add(envelope("u1", 80, now, true))
	provider.add(envelope("r1", 20, now, false))

	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	snapshot, err := session.TakeSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Priority, 1)
	assert.Equal(t, "u1", snapshot.Priority[0].Record.ID)
	require.Len(t, snapshot.Cleanup, 1)
	assert.Equal(t, "r1", snapshot.Cleanup[0].Record.ID)
	assert.Equal(t, 2, snapshot.Stats.TotalMessages)
	assert.Equal(t, 2, snapshot.Pass.Scored)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.listCalls, "one snapshot runs one pass")
}

func TestSessionApplyActionPassthrough(t *testing.T) {
	provider := newFakeProvider()
	session, _ := newTestSession(t, provider, &autoGenerator{}, defaultOpts())

	require.NoError(t, session.ApplyAction(context.Background(), "m1", email.ActionDelete))

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, []string{"m1:delete"}, provider.actions)
}
