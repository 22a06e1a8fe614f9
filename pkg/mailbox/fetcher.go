package mailbox

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/EternisAI/mailsift/pkg/email"
)

const (
	quotaBackoffBase = 1 * time.Second
	quotaBackoffCap  = 8 * time.Second
	quotaMaxAttempts = 3
	listPageSize     = 100
)

// Fetcher pulls envelopes from a Provider, paginating and absorbing quota
// pressure. It never discards progress: quota exhaustion and provider
// failures return whatever was fetched alongside the error.
type Fetcher struct {
	provider Provider
	logger   *log.Logger
	backoff  time.Duration
}

func NewFetcher(provider Provider, logger *log.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		logger:   logger,
		backoff:  quotaBackoffBase,
	}
}

// ProviderName reports which backend this fetcher reads from.
func (f *Fetcher) ProviderName() string {
	return f.provider.Name()
}

// Fetch lists messages matching query and retrieves up to maxResults full
// envelopes. Duplicate IDs across pages are fetched once, first discovery
// wins. A single unfetchable message is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, query string, maxResults int) ([]email.RawEnvelope, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	envelopes := make([]email.RawEnvelope, 0, maxResults)
	seen := make(map[string]struct{}, maxResults)
	pageToken := ""
	skipped := 0
	var lastSkipErr error

	for len(envelopes) < maxResults {
		pageSize := int64(min(maxResults-len(envelopes), listPageSize))
		page, err := f.listPage(ctx, query, pageToken, pageSize)
		if err != nil {
			return envelopes, errors.Wrap(err, "listing messages")
		}

		for _, id := range page.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			envelope, err := f.getEnvelope(ctx, id)
			if err != nil {
				if email.IsQuotaExceeded(err) || ctx.Err() != nil {
					return envelopes, errors.Wrapf(err, "fetching message %s", id)
				}
				skipped++
				lastSkipErr = err
				f.logger.Warn("Skipping unfetchable message", "id", id, "error", err)
				continue
			}

			envelopes = append(envelopes, envelope)
			if len(envelopes) >= maxResults {
				break
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(envelopes) == 0 && skipped > 0 {
		return nil, errors.Wrapf(lastSkipErr, "all %d listed messages failed to fetch", skipped)
	}
	if skipped > 0 {
		f.logger.Info("Fetch finished with gaps", "fetched", len(envelopes), "skipped", skipped)
	}
	return envelopes, nil
}

// ApplyAction forwards a mailbox mutation to the provider. Analysis state is
// untouched; the provider is the source of truth for mailbox contents.
func (f *Fetcher) ApplyAction(ctx context.Context, id string, action email.Action) error {
	f.logger.Debug("Applying action", "id", id, "action", action)
	return f.provider.ApplyAction(ctx, id, action)
}

func (f *Fetcher) listPage(ctx context.Context, query, pageToken string, maxResults int64) (*MessagePage, error) {
	var page *MessagePage
	err := f.withQuotaRetry(ctx, "list", func() error {
		var err error
		page, err = f.provider.ListMessages(ctx, query, pageToken, maxResults)
		return err
	})
	return page, err
}

func (f *Fetcher) getEnvelope(ctx context.Context, id string) (email.RawEnvelope, error) {
	var envelope email.RawEnvelope
	err := f.withQuotaRetry(ctx, "get", func() error {
		var err error
		envelope, err = f.provider.GetMessage(ctx, id)
		return err
	})
	return envelope, err
}

// withQuotaRetry runs call, backing off and retrying when the provider
// reports quota exhaustion. Non-quota errors return immediately.
func (f *Fetcher) withQuotaRetry(ctx context.Context, op string, call func() error) error {
	backoff := f.backoff
	var lastErr error

	for attempt := 1; attempt <= quotaMaxAttempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !email.IsQuotaExceeded(err) {
			return err
		}
		if attempt == quotaMaxAttempts {
			break
		}

		f.logger.Warn("Provider quota exhausted, backing off", "op", op, "attempt", attempt, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return lastErr
		}
		backoff = min(backoff*2, quotaBackoffCap)
	}

	return lastErr
}
