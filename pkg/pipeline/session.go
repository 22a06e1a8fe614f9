// Owner: august@eternis.ai

// Package pipeline owns one analysis session: fetch, normalize, score,
// aggregate. All state is session-scoped; two sessions share nothing but the
// process.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/events"
	"github.com/EternisAI/mailsift/pkg/helpers"
	"github.com/EternisAI/mailsift/pkg/mailbox"
	"github.com/EternisAI/mailsift/pkg/scoring"
	"github.com/EternisAI/mailsift/pkg/views"
)

// The scoring pool stays between these bounds no matter what the
// configuration asks for.
const (
	minScoreWorkers = 3
	maxScoreWorkers = 5
)

// Options bound one session's analysis passes.
type Options struct {
	Query       string
	MaxEmails   int
	BatchSize   int
	Workers     int
	PassTimeout time.Duration
}

// PassStats describes the last completed pass.
type PassStats struct {
	Fetched    int           `json:"fetched"`
	Normalized int           `json:"normalized"`
	Scored     int           `json:"scored"`
	Failed     int           `json:"failed"`
	CacheHits  int           `json:"cacheHits"`
	Duration   time.Duration `json:"duration"`
}

// Session ties a fetcher, scorer, and cache to one UI session. View queries
// trigger an analysis pass first; the cache keeps repeat passes cheap.
type Session struct {
	id      string
	opts    Options
	logger  *log.Logger
	fetcher *mailbox.Fetcher
	scorer  *scoring.Scorer
	cache   *scoring.Cache
	events  *events.Publisher

	group singleflight.Group

	mu      sync.RWMutex
	records []email.Record
	results map[string]email.ScoreResult
	stats   PassStats
}

func NewSession(logger *log.Logger, fetcher *mailbox.Fetcher, scorer *scoring.Scorer, cache *scoring.Cache, publisher *events.Publisher, opts Options) *Session {
	if opts.Workers < minScoreWorkers {
		opts.Workers = minScoreWorkers
	}
	if opts.Workers > maxScoreWorkers {
		opts.Workers = maxScoreWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = scoring.DefaultBatchSize
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 2 * time.Minute
	}

	return &Session{
		id:      uuid.New().String(),
		opts:    opts,
		logger:  logger,
		fetcher: fetcher,
		scorer:  scorer,
		cache:   cache,
		events:  publisher,
		results: make(map[string]email.ScoreResult),
	}
}

func (s *Session) ID() string {
	return s.id
}

// ProviderName names the mailbox backend this session reads from.
func (s *Session) ProviderName() string {
	return s.fetcher.ProviderName()
}

// Refresh runs an analysis pass. Concurrent calls coalesce into one pass and
// share its outcome; the pass itself is bounded by PassTimeout, so waiting on
// the shared flight is bounded too. An expired pass keeps whatever it scored.
func (s *Session) Refresh(ctx context.Context) (PassStats, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		return s.refreshPass(ctx)
	})

	res := <-ch
	if res.Err != nil {
		return PassStats{}, res.Err
	}
	return res.Val.(PassStats), nil
}

// scoreJob lets one batch ride the worker pool.
type scoreJob struct {
	scorer *scoring.Scorer
	batch  []email.Record
}

func (j scoreJob) Process(ctx context.Context) (map[string]scoring.Outcome, error) {
	return j.scorer.ScoreBatch(ctx, j.batch), nil
}

func (s *Session) refreshPass(ctx context.Context) (PassStats, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.PassTimeout)
	defer cancel()

	s.logger.Info("Starting analysis pass", "session", s.id, "query", s.opts.Query, "maxEmails", s.opts.MaxEmails)

	envelopes, fetchErr := s.fetcher.Fetch(ctx, s.opts.Query, s.opts.MaxEmails)
	if len(envelopes) == 0 && fetchErr != nil {
		return PassStats{}, errors.Wrap(fetchErr, "fetching mailbox")
	}
	if fetchErr != nil {
		s.logger.Warn("Continuing on partial mailbox", "fetched", len(envelopes), "error", fetchErr)
	}
	s.events.Progress(events.Progress{SessionID: s.id, Phase: events.PhaseFetch, Processed: len(envelopes), Total: len(envelopes)})

	records := normalizeAll(envelopes)
	s.events.Progress(events.Progress{SessionID: s.id, Phase: events.PhaseNormalize, Processed: len(records), Total: len(records)})

	cacheHits := 0
	for _, record := range records {
		if _, hit := s.cache.Get(record.ID); hit {
			cacheHits++
		}
	}

	batches := helpers.Batch(records, s.opts.BatchSize)
	jobs := make([]scoreJob, 0, len(batches))
	for _, batch := range batches {
		jobs = append(jobs, scoreJob{scorer: s.scorer, batch: batch})
	}

	results := make(map[string]email.ScoreResult, len(records))
	failed := 0

	pool := scoring.NewWorkerPool[scoreJob](s.opts.Workers, s.logger)
	for jobResult := range pool.Process(ctx, jobs, s.opts.PassTimeout) {
		if jobResult.Error != nil {
			failed += len(jobResult.Job.batch)
			s.logger.Warn("Batch aborted", "size", len(jobResult.Job.batch), "error", jobResult.Error)
		} else {
			for id, outcome := range jobResult.Result {
				if outcome.Err != nil {
					failed++
					continue
				}
				results[id] = *outcome.Result
			}
		}
		s.events.Progress(events.Progress{SessionID: s.id, Phase: events.PhaseScore, Processed: len(results), Total: len(records), Failed: failed})
	}

	// Batches still queued when the pass expires never emit a result.
	if unaccounted := len(records) - len(results) - failed; unaccounted > 0 {
		failed += unaccounted
		s.logger.Warn("Pass expired before scoring finished", "unscored", unaccounted)
	}

	stats := PassStats{
		Fetched:    len(envelopes),
		Normalized: len(records),
		Scored:     len(results),
		Failed:     failed,
		CacheHits:  cacheHits,
		Duration:   time.Since(started),
	}

	s.mu.Lock()
	s.records = records
	s.results = results
	s.stats = stats
	s.mu.Unlock()

	s.events.Progress(events.Progress{SessionID: s.id, Phase: events.PhaseComplete, Processed: stats.Scored, Total: stats.Normalized, Failed: stats.Failed})
	s.logger.Info("Analysis pass finished",
		"session", s.id,
		"fetched", stats.Fetched,
		"scored", stats.Scored,
		"failed", stats.Failed,
		"cacheHits", stats.CacheHits,
		"duration", stats.Duration)

	return stats, nil
}

// normalizeAll converts envelopes to records, dropping later duplicates of
// the same message ID.
func normalizeAll(envelopes []email.RawEnvelope) []email.Record {
	records := make([]email.Record, 0, len(envelopes))
	seen := make(map[string]struct{}, len(envelopes))
	for _, envelope := range envelopes {
		if _, dup := seen[envelope.ID]; dup {
			continue
		}
		seen[envelope.ID] = struct{}{}
		records = append(records, email.Normalize(envelope))
	}
	return records
}

// PriorityView returns the top unread messages after a fresh pass.
func (s *Session) PriorityView(ctx context.Context) ([]views.RankedEntry, error) {
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return views.Priority(s.records, s.results), nil
}

// CleanupView returns already-read messages safest to clear out.
func (s *Session) CleanupView(ctx context.Context) ([]views.RankedEntry, error) {
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return views.Cleanup(s.records, s.results), nil
}

// UnsubscribeView returns every message with an unsubscribe link.
func (s *Session) UnsubscribeView(ctx context.Context) ([]views.UnsubscribeEntry, error) {
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return views.Unsubscribe(s.records), nil
}

// DashboardStats aggregates the current record set.
func (s *Session) DashboardStats(ctx context.Context) (views.DashboardStats, error) {
	if _, err := s.Refresh(ctx); err != nil {
		return views.DashboardStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return views.Dashboard(s.records, s.results), nil
}

// Snapshot bundles every view computed from one analysis pass.
type Snapshot struct {
	Priority    []views.RankedEntry      `json:"priority"`
	Cleanup     []views.RankedEntry      `json:"cleanup"`
	Unsubscribe []views.UnsubscribeEntry `json:"unsubscribe"`
	Stats       views.DashboardStats     `json:"stats"`
	Pass        PassStats                `json:"pass"`
}

// TakeSnapshot runs a single pass and derives all views from the same record
// set, so the lists agree with each other and with the dashboard counts.
func (s *Session) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	pass, err := s.Refresh(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Priority:    views.Priority(s.records, s.results),
		Cleanup:     views.Cleanup(s.records, s.results),
		Unsubscribe: views.Unsubscribe(s.records),
		Stats:       views.Dashboard(s.records, s.results),
		Pass:        pass,
	}, nil
}

// ApplyAction forwards a mailbox mutation to the provider. Cached analysis is
// untouched; the next pass simply no longer sees the message.
func (s *Session) ApplyAction(ctx context.Context, id string, action email.Action) error {
	return s.fetcher.ApplyAction(ctx, id, action)
}

// LastStats reports the stats of the most recent completed pass.
func (s *Session) LastStats() PassStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
