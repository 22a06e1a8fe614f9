// Package email holds the canonical message types shared across the pipeline:
// the provider-native RawEnvelope, the normalized Record, and the score a
// model assigns to a record.
package email

import (
	"strings"
	"time"
)

// Header is one raw message header as reported by the provider.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BodyPart is one decoded body part. Data is text, not base64.
type BodyPart struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// RawEnvelope is the provider-native wrapper around one message. Produced by
// a mailbox provider, consumed only by Normalize. Immutable.
type RawEnvelope struct {
	ID           string     `json:"id"`
	Labels       []string   `json:"labels"`
	Headers      []Header   `json:"headers"`
	Parts        []BodyPart `json:"parts"`
	Snippet      string     `json:"snippet"`
	InternalDate int64      `json:"internalDate"` // unix milliseconds, 0 when unknown
}

// Header returns the first header with the given name, case-insensitive.
func (e RawEnvelope) Header(name string) string {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Record is the canonical, normalized representation of one message. Created
// by Normalize from exactly one RawEnvelope and immutable afterwards.
type Record struct {
	ID              string    `json:"id"`
	Sender          string    `json:"sender"`
	SenderName      string    `json:"senderName,omitempty"`
	Subject         string    `json:"subject"`
	Received        time.Time `json:"received"`
	Body            string    `json:"-"`
	Unread          bool      `json:"unread"`
	UnsubscribeURLs []string  `json:"unsubscribeUrls,omitempty"`
}

// Domain returns the part of the sender address after '@', or "" when the
// sender is missing or not an address.
func (r Record) Domain() string {
	if i := strings.LastIndex(r.Sender, "@"); i >= 0 && i < len(r.Sender)-1 {
		return r.Sender[i+1:]
	}
	return ""
}

// Category buckets a scored message.
type Category string

const (
	CategoryUrgent        Category = "Urgent"
	CategoryInformational Category = "Informational"
	CategoryPromotional   Category = "Promotional"
	CategorySocial        Category = "Social"
	CategoryOther         Category = "Other"
)

// Categories lists every valid category, in prompt order.
func Categories() []Category {
	return []Category{
		CategoryUrgent,
		CategoryInformational,
		CategoryPromotional,
		CategorySocial,
		CategoryOther,
	}
}

// ParseCategory matches a model-returned label against the fixed set,
// case-insensitively. Unknown labels are rejected, never coerced.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Score bounds for a valid ScoreResult.
const (
	MinScore = 0
	MaxScore = 100
)

// ScoreResult is the model output bound to one Record.
type ScoreResult struct {
	Score    int      `json:"score"`
	Category Category `json:"category"`
	Summary  string   `json:"summary"`
}

// Action is a provider-side mailbox mutation requested by the UI. The
// pipeline passes it through; it never participates in analysis.
type Action string

const (
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
)

// ParseAction validates a UI-supplied action string.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionArchive:
		return ActionArchive, true
	case ActionDelete:
		return ActionDelete, true
	}
	return "", false
}
