package email

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"
	"github.com/samber/lo"
)

const unreadLabel = "UNREAD"

var (
	angleAddrRe  = regexp.MustCompile(`<(.+?)>`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Date header layouts seen in the wild beyond what net/mail accepts.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
}

// Normalize converts one provider envelope into the canonical Record. It
// never fails: a missing header, an unparseable date or a non-UTF8 body
// degrades to a placeholder value, so one bad message cannot abort a batch.
func Normalize(env RawEnvelope) Record {
	sender, senderName := parseSender(env.Header("From"))

	rec := Record{
		ID:         env.ID,
		Sender:     sender,
		SenderName: senderName,
		Subject:    strings.TrimSpace(env.Header("Subject")),
		Unread:     lo.Contains(env.Labels, unreadLabel),
		Body:       extractBody(env),
	}

	if env.InternalDate > 0 {
		rec.Received = time.UnixMilli(env.InternalDate).UTC()
	} else if t, err := ParseDate(env.Header("Date")); err == nil {
		rec.Received = t.UTC()
	}

	rec.UnsubscribeURLs = extractUnsubscribeURLs(env)
	return rec
}

// ParseDate parses a Date header value, trying net/mail first and then the
// fallback layouts. Failure is reported as a MalformedInputError; callers
// absorb it into the zero time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &MalformedInputError{Field: "date", Err: fmt.Errorf("empty header")}
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &MalformedInputError{Field: "date", Err: fmt.Errorf("unrecognized layout %q", value)}
}

// parseSender extracts the bare address (lowercased) and display name from a
// From header. Unparseable values fall back to the angle-bracket capture and
// finally to the raw trimmed string.
func parseSender(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if a, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(a.Address), a.Name
	}
	if m := angleAddrRe.FindStringSubmatch(raw); m != nil {
		name := strings.Trim(strings.TrimSpace(raw[:strings.Index(raw, "<")]), `"`)
		return strings.ToLower(strings.TrimSpace(m[1])), name
	}
	return strings.ToLower(raw), ""
}

// extractBody picks the first text/plain part, falling back to the first
// text/html part converted to text, and finally to the provider snippet. A
// failed HTML conversion keeps the raw markup rather than dropping the body.
func extractBody(env RawEnvelope) string {
	var plain, htmlSrc string
	for _, p := range env.Parts {
		mt := strings.ToLower(p.MimeType)
		switch {
		case strings.HasPrefix(mt, "text/plain") && plain == "":
			plain = p.Data
		case strings.HasPrefix(mt, "text/html") && htmlSrc == "":
			htmlSrc = p.Data
		}
	}

	if strings.TrimSpace(plain) != "" {
		return cleanText(plain)
	}
	if htmlSrc != "" {
		if text, err := html2text.FromString(htmlSrc, html2text.Options{OmitLinks: true, TextOnly: true}); err == nil {
			return cleanText(text)
		}
		return cleanText(htmlSrc)
	}
	return cleanText(env.Snippet)
}

func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
