package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
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
	"github.com/EternisAI/mailsift/pkg/pipeline"
	"github.com/EternisAI/mailsift/pkg/scoring"
	"github.com/EternisAI/mailsift/pkg/views"
)

type stubProvider struct {
	mu        sync.Mutex
	envelopes []email.RawEnvelope
	listErr   error
	actionErr error
	actions   []string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ListMessages(ctx context.Context, query, pageToken string, maxResults int64) (*mailbox.MessagePage, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	page := &mailbox.MessagePage{}
	for _, envelope := range p.envelopes {
		page.IDs = append(page.IDs, envelope.ID)
	}
	return page, nil
}

func (p *stubProvider) GetMessage(ctx context.Context, id string) (email.RawEnvelope, error) {
	for _, envelope := range p.envelopes {
		if envelope.ID == id {
			return envelope, nil
		}
	}
	return email.RawEnvelope{}, errors.Errorf("no message %s", id)
}

func (p *stubProvider) ApplyAction(ctx context.Context, id string, action email.Action) error {
	if p.actionErr != nil {
		return p.actionErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, id+":"+string(action))
	return nil
}

var stubScoreRe = regexp.MustCompile(`Subject: score-(\d+)`)

type stubGenerator struct{}

func (g *stubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	matches := stubScoreRe.FindAllStringSubmatch(user, -1)
	items := make([]string, 0, len(matches))
	for _, match := range matches {
		items = append(items, fmt.Sprintf(`{"score": %s, "category": "Other", "summary": "stub"}`, match[1]))
	}
	return "[" + strings.Join(items, ",") + "]", nil
}

func stubEnvelope(id string, score int, unread bool) email.RawEnvelope {
	labels := []string{"INBOX"}
	if unread {
		labels = append(labels, "UNREAD")
	}
	return email.RawEnvelope{
		ID:     id,
		Labels: labels,
		Headers: []email.Header{
			{Name: "From", Value: "sender-" + id + "@example.com"},
			{Name: "Subject", Value: fmt.Sprintf("score-%d", score)},
		},
		Parts:        []email.BodyPart{{MimeType: "text/plain", Data: "body"}},
		InternalDate: time.Now().UnixMilli(),
	}
}

func newTestServer(t *testing.T, provider mailbox.Provider) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard)
	cache := scoring.NewCache(0)
	scorer, err := scoring.NewScorer(&stubGenerator{}, cache, logger, scoring.DefaultBatchSize)
	require.NoError(t, err)
	session := pipeline.NewSession(logger, mailbox.NewFetcher(provider, logger), scorer, cache,
		events.NewPublisher(nil, logger),
		pipeline.Options{Query: "in:inbox", MaxEmails: 10, PassTimeout: 5 * time.Second})

	ts := httptest.NewServer(New(session, nil, logger).Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubProvider{})

	var body map[string]interface{}
	status := getJSON(t, ts.URL+"/api/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "stub", body["provider"])
}

func TestPriorityViewEndpoint(t *testing.T) {
	provider := &stubProvider{envelopes: []email.RawEnvelope{
		stubEnvelope("m-low", 30, true),
		stubEnvelope("m-high", 95, true),
		stubEnvelope("m-read", 80, false),
	}}
	ts := newTestServer(t, provider)

	var entries []views.RankedEntry
	status := getJSON(t, ts.URL+"/api/views/priority", &entries)

	assert.Equal(t, http.StatusOK, status)
	require.Len(t, entries, 2)
	assert.Equal(t, "m-high", entries[0].Record.ID)
	assert.Equal(t, 95, entries[0].Result.Score)
}

func TestDashboardEndpoint(t *testing.T) {
	provider := &stubProvider{envelopes: []email.RawEnvelope{
		stubEnvelope("m1", 50, true),
		stubEnvelope("m2", 60, false),
	}}
	ts := newTestServer(t, provider)

	var stats views.DashboardStats
	status := getJSON(t, ts.URL+"/api/views/dashboard", &stats)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 2, stats.ScoredMessages)
}

func TestApplyActionEndpoint(t *testing.T) {
	provider := &stubProvider{}
	ts := newTestServer(t, provider)

	resp, err := http.Post(ts.URL+"/api/messages/m1/actions", "application/json",
		bytes.NewBufferString(`{"action": "archive"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, []string{"m1:archive"}, provider.actions)
}

func TestApplyActionRejectsUnknownAction(t *testing.T) {
	ts := newTestServer(t, &stubProvider{})

	resp, err := http.Post(ts.URL+"/api/messages/m1/actions", "application/json",
		bytes.NewBufferString(`{"action": "snooze"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApplyActionRejectsBadBody(t *testing.T) {
	ts := newTestServer(t, &stubProvider{})

	resp, err := http.Post(ts.URL+"/api/messages/m1/actions", "application/json",
		bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProviderFailureReturnsBadGateway(t *testing.T) {
	provider := &stubProvider{
		listErr: &email.ProviderError{Provider: "stub", Op: "list", Err: errors.New("token revoked")},
	}
	ts := newTestServer(t, provider)

	var body map[string]interface{}
	status := getJSON(t, ts.URL+"/api/views/priority", &body)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, true, body["reconnectRequired"])
}

func TestQuotaFailureReturnsServiceUnavailable(t *testing.T) {
	provider := &stubProvider{
		actionErr: &email.QuotaExceededError{Provider: "stub", Err: errors.New("rate limited")},
	}
	ts := newTestServer(t, provider)

	resp, err := http.Post(ts.URL+"/api/messages/m1/actions", "application/json",
		bytes.NewBufferString(`{"action": "delete"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProgressSocketUnavailableWithoutBroker(t *testing.T) {
	ts := newTestServer(t, &stubProvider{})

	status := getJSON(t, ts.URL+"/ws/progress", nil)

	assert.Equal(t, http.StatusServiceUnavailable, status)
}
