// Package mailbox fetches raw messages from a mail provider and applies
// mailbox actions. Concrete providers live in the gmail and mbox subpackages.
package mailbox

import (
	"context"

	"github.com/EternisAI/mailsift/pkg/email"
)

// MessagePage is one page of a provider listing.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// Provider is the narrow surface the fetcher needs from a mail backend.
type Provider interface {
	ListMessages(ctx context.Context, query, pageToken string, maxResults int64) (*MessagePage, error)
	GetMessage(ctx context.Context, id string) (email.RawEnvelope, error)
	ApplyAction(ctx context.Context, id string, action email.Action) error
	Name() string
}
