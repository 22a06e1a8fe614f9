// Package mbox serves a local mailbox export through the provider interface,
// so a Google Takeout file works offline exactly like a live mailbox.
package mbox

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mnako/letters"
	"github.com/pkg/errors"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/mailbox"
)

const providerName = "mbox"

// Provider parses the export once, on first use, and serves pages out of
// memory. The file is never mutated: actions fail with a ProviderError.
type Provider struct {
	path   string
	logger *log.Logger

	once    sync.Once
	loadErr error
	order   []string
	byID    map[string]email.RawEnvelope
}

func NewProvider(path string, logger *log.Logger) *Provider {
	return &Provider{
		path:   path,
		logger: logger,
		byID:   make(map[string]email.RawEnvelope),
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) load() error {
	p.once.Do(func() {
		f, err := os.Open(p.path)
		if err != nil {
			p.loadErr = &email.ProviderError{Provider: providerName, Op: "open", Err: err}
			return
		}
		defer f.Close() //nolint:errcheck

		envelopes, err := parseMbox(f, p.logger)
		if err != nil {
			p.loadErr = &email.ProviderError{Provider: providerName, Op: "parse", Err: err}
			return
		}

		for _, envelope := range envelopes {
			if _, dup := p.byID[envelope.ID]; dup {
				continue
			}
			p.byID[envelope.ID] = envelope
			p.order = append(p.order, envelope.ID)
		}
		p.logger.Info("Loaded mailbox export", "path", p.path, "messages", len(p.order))
	})
	return p.loadErr
}

// ListMessages pages through the export with numeric continuation tokens.
// Query syntax is a live-mailbox concept and is ignored here.
func (p *Provider) ListMessages(ctx context.Context, query, pageToken string, maxResults int64) (*mailbox.MessagePage, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	if query != "" {
		p.logger.Debug("Ignoring query for mailbox export", "query", query)
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, &email.ProviderError{Provider: providerName, Op: "list", Err: errors.Errorf("bad page token %q", pageToken)}
		}
		start = n
	}
	if start >= len(p.order) {
		return &mailbox.MessagePage{}, nil
	}

	end := len(p.order)
	if maxResults > 0 && start+int(maxResults) < end {
		end = start + int(maxResults)
	}

	page := &mailbox.MessagePage{IDs: append([]string(nil), p.order[start:end]...)}
	if end < len(p.order) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (p *Provider) GetMessage(ctx context.Context, id string) (email.RawEnvelope, error) {
	if err := p.load(); err != nil {
		return email.RawEnvelope{}, err
	}
	envelope, ok := p.byID[id]
	if !ok {
		return email.RawEnvelope{}, &email.ProviderError{Provider: providerName, Op: "get", Err: errors.Errorf("no message %q in export", id)}
	}
	return envelope, nil
}

func (p *Provider) ApplyAction(ctx context.Context, id string, action email.Action) error {
	return &email.ProviderError{Provider: providerName, Op: "apply_action", Err: errors.New("mailbox export is read-only")}
}

// parseMbox splits the stream on mbox "From " separator lines and parses each
// message. The separator itself is not part of the message payload. A message
// that fails to parse is logged and skipped.
func parseMbox(r io.Reader, logger *log.Logger) ([]email.RawEnvelope, error) {
	reader := bufio.NewReader(r)

	var (
		envelopes []email.RawEnvelope
		buf       bytes.Buffer
		index     int
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		index++
		envelope, err := envelopeFromRaw(buf.String(), index)
		buf.Reset()
		if err != nil {
			logger.Warn("Skipping unparseable message in export", "index", index, "error", err)
			return
		}
		envelopes = append(envelopes, envelope)
	}

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if strings.HasPrefix(line, "From ") {
				flush()
			} else {
				buf.WriteString(line)
			}
		}
		if err == io.EOF {
			flush()
			return envelopes, nil
		}
		if err != nil {
			return envelopes, err
		}
	}
}

func envelopeFromRaw(raw string, index int) (email.RawEnvelope, error) {
	parsed, err := letters.ParseEmail(strings.NewReader(raw))
	if err != nil {
		return email.RawEnvelope{}, err
	}

	from := formatAddresses(parsed.Headers.From)
	envelope := email.RawEnvelope{
		ID: envelopeID(parsed.Headers.Date, from, parsed.Headers.Subject, index),
	}

	if from != "" {
		envelope.Headers = append(envelope.Headers, email.Header{Name: "From", Value: from})
	}
	if to := formatAddresses(parsed.Headers.To); to != "" {
		envelope.Headers = append(envelope.Headers, email.Header{Name: "To", Value: to})
	}
	if parsed.Headers.Subject != "" {
		envelope.Headers = append(envelope.Headers, email.Header{Name: "Subject", Value: parsed.Headers.Subject})
	}
	if !parsed.Headers.Date.IsZero() {
		envelope.Headers = append(envelope.Headers, email.Header{Name: "Date", Value: parsed.Headers.Date.Format(time.RFC1123Z)})
		envelope.InternalDate = parsed.Headers.Date.UnixMilli()
	}

	for name, values := range parsed.Headers.ExtraHeaders {
		if strings.EqualFold(name, "List-Unsubscribe") {
			for _, value := range values {
				envelope.Headers = append(envelope.Headers, email.Header{Name: "List-Unsubscribe", Value: value})
			}
		}
	}

	envelope.Labels = labelsFromExport(parsed.Headers.ExtraHeaders)

	if strings.TrimSpace(parsed.Text) != "" {
		envelope.Parts = append(envelope.Parts, email.BodyPart{MimeType: "text/plain", Data: parsed.Text})
	}
	if strings.TrimSpace(parsed.HTML) != "" {
		envelope.Parts = append(envelope.Parts, email.BodyPart{MimeType: "text/html", Data: parsed.HTML})
	}

	return envelope, nil
}

// envelopeID derives a stable ID from message identity fields, so cached
// analysis survives re-runs over the same export. Falls back to the message's
// position for degenerate messages.
func envelopeID(date time.Time, from, subject string, index int) string {
	if date.IsZero() && from == "" && subject == "" {
		return fmt.Sprintf("mbox-%06d", index)
	}
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%d-%s-%s", date.Unix(), from, subject)
	return "mbox-" + fmt.Sprintf("%x", hasher.Sum(nil))[:16]
}

func formatAddresses(addresses []*mail.Address) string {
	parts := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if address == nil {
			continue
		}
		parts = append(parts, address.String())
	}
	return strings.Join(parts, ", ")
}

// labelsFromExport maps Takeout's X-Gmail-Labels onto API-style label IDs.
// Without the header every message counts as read.
func labelsFromExport(extra map[string][]string) []string {
	var labels []string
	for name, values := range extra {
		if !strings.EqualFold(name, "X-Gmail-Labels") {
			continue
		}
		for _, value := range values {
			for _, label := range strings.Split(value, ",") {
				switch strings.ToLower(strings.TrimSpace(label)) {
				case "unread":
					labels = append(labels, "UNREAD")
				case "inbox":
					labels = append(labels, "INBOX")
				}
			}
		}
	}
	return labels
}
