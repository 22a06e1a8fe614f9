package email

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// unsubscribeKeywords drive the anchor heuristic. They are matched
// case-insensitively against both the visible anchor text and the target URL.
var unsubscribeKeywords = []string{"unsubscribe", "opt-out", "manage preferences"}

var listUnsubURLRe = regexp.MustCompile(`<(https?://[^>]+)>`)

// ParseListUnsubscribe extracts the http(s) targets from a List-Unsubscribe
// header value, in order. mailto entries are skipped; only URLs the UI can
// open are actionable.
func ParseListUnsubscribe(value string) []string {
	matches := listUnsubURLRe.FindAllStringSubmatch(value, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}

// ExtractAnchorURLs walks an HTML fragment and returns the href of every
// anchor whose visible text or target matches an unsubscribe keyword,
// discovery order preserved. Malformed markup terminates the walk quietly
// with whatever was found up to that point.
func ExtractAnchorURLs(src string) []string {
	tok := html.NewTokenizer(strings.NewReader(src))

	var (
		urls     []string
		href     string
		text     strings.Builder
		inAnchor bool
	)
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return urls
		case html.StartTagToken:
			t := tok.Token()
			if t.DataAtom == atom.A {
				inAnchor = true
				href = ""
				text.Reset()
				for _, a := range t.Attr {
					if a.Key == "href" {
						href = strings.TrimSpace(a.Val)
					}
				}
			}
		case html.TextToken:
			if inAnchor {
				text.Write(tok.Text())
			}
		case html.EndTagToken:
			if t := tok.Token(); t.DataAtom == atom.A && inAnchor {
				inAnchor = false
				if href != "" && matchesUnsubscribe(text.String(), href) {
					urls = append(urls, href)
				}
			}
		}
	}
}

func matchesUnsubscribe(anchorText, href string) bool {
	t := strings.ToLower(anchorText)
	h := strings.ToLower(href)
	for _, kw := range unsubscribeKeywords {
		if strings.Contains(t, kw) || strings.Contains(h, kw) {
			return true
		}
	}
	return false
}

// extractUnsubscribeURLs collects candidates for one envelope: header targets
// first, then HTML anchors, duplicates removed with first occurrence winning.
func extractUnsubscribeURLs(env RawEnvelope) []string {
	urls := ParseListUnsubscribe(env.Header("List-Unsubscribe"))
	for _, p := range env.Parts {
		if strings.HasPrefix(strings.ToLower(p.MimeType), "text/html") {
			urls = append(urls, ExtractAnchorURLs(p.Data)...)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return lo.Uniq(urls)
}
