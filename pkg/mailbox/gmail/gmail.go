package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/mailbox"
)

const (
	providerName = "gmail"
	inboxLabel   = "INBOX"
)

// quotaReasons are the googleapi error reasons Gmail uses for rate and quota
// pressure, distinct from auth failures on the same status codes.
var quotaReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"quotaExceeded":         {},
	"dailyLimitExceeded":    {},
}

// Provider reads and mutates a Gmail mailbox through the official API.
type Provider struct {
	service *gmailapi.Service
	logger  *log.Logger
}

// NewProvider builds a Gmail provider over an authenticated HTTP client.
func NewProvider(ctx context.Context, client *http.Client, logger *log.Logger) (*Provider, error) {
	service, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "creating gmail service")
	}
	return &Provider{service: service, logger: logger}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) ListMessages(ctx context.Context, query, pageToken string, maxResults int64) (*mailbox.MessagePage, error) {
	call := p.service.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, p.wrapError("list", err)
	}

	page := &mailbox.MessagePage{NextPageToken: resp.NextPageToken}
	for _, message := range resp.Messages {
		page.IDs = append(page.IDs, message.Id)
	}
	return page, nil
}

func (p *Provider) GetMessage(ctx context.Context, id string) (email.RawEnvelope, error) {
	message, err := p.service.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return email.RawEnvelope{}, p.wrapError("get", err)
	}
	return envelopeFromMessage(message), nil
}

func (p *Provider) ApplyAction(ctx context.Context, id string, action email.Action) error {
	switch action {
	case email.ActionArchive:
		_, err := p.service.Users.Messages.Modify("me", id, &gmailapi.ModifyMessageRequest{
			RemoveLabelIds: []string{inboxLabel},
		}).Context(ctx).Do()
		if err != nil {
			return p.wrapError("archive", err)
		}
	case email.ActionDelete:
		// Trash, not permanent delete: recoverable like the web UI.
		_, err := p.service.Users.Messages.Trash("me", id).Context(ctx).Do()
		if err != nil {
			return p.wrapError("trash", err)
		}
	default:
		return errors.Errorf("unsupported action %q", action)
	}

	p.logger.Info("Applied mailbox action", "id", id, "action", action)
	return nil
}

// wrapError folds googleapi failures into the provider error taxonomy. Quota
// pressure is recoverable by waiting; everything else needs a reconnect.
func (p *Provider) wrapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && isQuotaError(apiErr) {
		return &email.QuotaExceededError{Provider: providerName, Err: err}
	}
	return &email.ProviderError{Provider: providerName, Op: op, Err: err}
}

func isQuotaError(apiErr *googleapi.Error) bool {
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	for _, item := range apiErr.Errors {
		if _, ok := quotaReasons[item.Reason]; ok {
			return true
		}
	}
	for reason := range quotaReasons {
		if strings.Contains(apiErr.Body, reason) {
			return true
		}
	}
	return false
}

func envelopeFromMessage(message *gmailapi.Message) email.RawEnvelope {
	envelope := email.RawEnvelope{
		ID:           message.Id,
		Labels:       message.LabelIds,
		Snippet:      message.Snippet,
		InternalDate: message.InternalDate,
	}
	if message.Payload == nil {
		return envelope
	}

	for _, header := range message.Payload.Headers {
		envelope.Headers = append(envelope.Headers, email.Header{Name: header.Name, Value: header.Value})
	}
	collectTextParts(message.Payload, &envelope)
	return envelope
}

// collectTextParts walks the MIME tree depth-first and keeps decoded
// text/plain and text/html leaves in document order.
func collectTextParts(part *gmailapi.MessagePart, envelope *email.RawEnvelope) {
	if part == nil {
		return
	}

	if len(part.Parts) == 0 {
		if !strings.HasPrefix(part.MimeType, "text/plain") && !strings.HasPrefix(part.MimeType, "text/html") {
			return
		}
		if part.Body == nil {
			return
		}
		decoded, err := decodeBase64URL(part.Body.Data)
		if err != nil || decoded == "" {
			return
		}
		envelope.Parts = append(envelope.Parts, email.BodyPart{MimeType: part.MimeType, Data: decoded})
		return
	}

	for _, child := range part.Parts {
		collectTextParts(child, envelope)
	}
}

// decodeBase64URL tolerates the unpadded base64url Gmail emits.
func decodeBase64URL(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	b, err := base64.StdEncoding.DecodeString(s)
	return string(b), err
}
