// Owner: august@eternis.ai
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/helpers"
	"github.com/EternisAI/mailsift/pkg/prompts"
)

const (
	// DefaultBatchSize bounds how many records share one model call.
	DefaultBatchSize = 10
	// maxBatchAttempts is how often a failed batch call is retried before
	// every record in it is marked failed.
	maxBatchAttempts = 3
	retryBackoffBase = 1 * time.Second
	// bodyExcerptLimit caps how much body text each record contributes to
	// the prompt.
	bodyExcerptLimit = 4000
)

// Generator produces a completion for a system+user prompt pair. *ai.Service
// satisfies it; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Outcome is the per-record result of a scoring pass. Exactly one of Result
// and Err is set.
type Outcome struct {
	Result *email.ScoreResult
	Err    error
}

// scoreResponseItem pins the shape each response object must have. The
// reflected schema is embedded in the system prompt.
type scoreResponseItem struct {
	Score    int    `json:"score" jsonschema:"minimum=0,maximum=100"`
	Category string `json:"category" jsonschema:"enum=Urgent,enum=Informational,enum=Promotional,enum=Social,enum=Other"`
	Summary  string `json:"summary"`
}

// scoreItem is the tolerant parse target. Validation happens after unmarshal
// so one malformed object does not discard its batch.
type scoreItem struct {
	Score    json.Number `json:"score"`
	Category string      `json:"category"`
	Summary  string      `json:"summary"`
}

// Scorer assigns a score, category, and summary to email records in batches,
// consulting the cache before spending model calls.
type Scorer struct {
	generator  Generator
	cache      *Cache
	logger     *log.Logger
	batchSize  int
	schema     string
	categories string
	backoff    time.Duration
}

func NewScorer(generator Generator, cache *Cache, logger *log.Logger, batchSize int) (*Scorer, error) {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}

	schema, err := helpers.SchemaJSON(scoreResponseItem{})
	if err != nil {
		return nil, errors.Wrap(err, "reflecting score response schema")
	}

	categories := strings.Join(lo.Map(email.Categories(), func(c email.Category, _ int) string {
		return fmt.Sprintf("%q", string(c))
	}), ", ")

	return &Scorer{
		generator:  generator,
		cache:      cache,
		logger:     logger,
		batchSize:  batchSize,
		schema:     schema,
		categories: categories,
		backoff:    retryBackoffBase,
	}, nil
}

// BatchSize reports the effective batch bound callers should split with.
func (s *Scorer) BatchSize() int {
	return s.batchSize
}

// ScoreBatch scores one batch of records and returns an outcome per record ID.
// Cached records are served without a model call. A malformed object fails only
// its own record; a malformed or truncated response fails the whole batch after
// retries are exhausted.
func (s *Scorer) ScoreBatch(ctx context.Context, batch []email.Record) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(batch))

	pending := make([]email.Record, 0, len(batch))
	for _, record := range batch {
		if result, ok := s.cache.Get(record.ID); ok {
			outcomes[record.ID] = Outcome{Result: &result}
			continue
		}
		pending = append(pending, record)
	}
	if len(pending) == 0 {
		return outcomes
	}
	if len(pending) > s.batchSize {
		s.logger.Warn("Batch exceeds configured size, scoring anyway", "size", len(pending), "limit", s.batchSize)
	}

	items, err := s.requestScores(ctx, pending)
	if err != nil {
		for _, record := range pending {
			outcomes[record.ID] = Outcome{Err: &email.AnalysisError{
				Batch:  len(pending),
				Reason: "batch scoring failed",
				Err:    err,
			}}
		}
		return outcomes
	}

	for i, record := range pending {
		result, err := validateScoreItem(items[i])
		if err != nil {
			s.logger.Warn("Discarding invalid score object", "id", record.ID, "error", err)
			outcomes[record.ID] = Outcome{Err: &email.AnalysisError{
				Batch:  len(pending),
				Reason: "invalid score object",
				Err:    err,
			}}
			continue
		}

		s.cache.Put(record.ID, result)
		outcomes[record.ID] = Outcome{Result: &result}
	}

	return outcomes
}

// requestScores calls the model for the pending records, retrying
// whole-batch failures with doubling backoff.
func (s *Scorer) requestScores(ctx context.Context, pending []email.Record) ([]scoreItem, error) {
	system, err := prompts.BuildScoreBatchPrompt(prompts.ScoreBatchPrompt{
		Count:      len(pending),
		Categories: s.categories,
		Schema:     s.schema,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building system prompt")
	}

	user, err := prompts.BuildScoreBatchInput(prompts.ScoreBatchInput{
		Emails: lo.Map(pending, func(record email.Record, i int) prompts.ScoreBatchEmail {
			return prompts.ScoreBatchEmail{
				Index:   i + 1,
				Sender:  record.Sender,
				Subject: record.Subject,
				Excerpt: helpers.TruncateString(record.Body, bodyExcerptLimit),
			}
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "building batch input")
	}

	var lastErr error
	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		if attempt > 1 {
			backoff := s.backoff << (attempt - 2)
			s.logger.Debug("Retrying batch", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := s.generator.Generate(ctx, system, user)
		if err != nil {
			lastErr = err
			s.logger.Warn("Model call failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		items, err := parseScoreArray(raw, len(pending))
		if err != nil {
			lastErr = err
			s.logger.Warn("Unusable model response", "attempt", attempt, "error", err)
			continue
		}

		return items, nil
	}

	return nil, errors.Wrapf(lastErr, "after %d attempts", maxBatchAttempts)
}

// parseScoreArray strips code fences and unmarshals the response, requiring
// exactly want objects. A truncated or padded array fails the whole batch.
func parseScoreArray(raw string, want int) ([]scoreItem, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []scoreItem
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, errors.Wrap(err, "response is not a JSON array")
	}
	if len(items) != want {
		return nil, errors.Errorf("expected %d score objects, got %d", want, len(items))
	}
	return items, nil
}

func validateScoreItem(item scoreItem) (email.ScoreResult, error) {
	if item.Score == "" {
		return email.ScoreResult{}, errors.New("missing score")
	}
	value, err := item.Score.Float64()
	if err != nil {
		return email.ScoreResult{}, errors.Errorf("score %q is not numeric", item.Score.String())
	}
	if value < email.MinScore || value > email.MaxScore {
		return email.ScoreResult{}, errors.Errorf("score %v out of range", value)
	}

	category, ok := email.ParseCategory(item.Category)
	if !ok {
		return email.ScoreResult{}, errors.Errorf("unknown category %q", item.Category)
	}

	return email.ScoreResult{
		Score:    int(math.Round(value)),
		Category: category,
		Summary:  strings.TrimSpace(item.Summary),
	}, nil
}
