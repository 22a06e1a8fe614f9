// Package views derives the UI-facing lists from a scored record set. All
// functions are pure so every caller sees the same ranking for the same data.
package views

import (
	"sort"

	"github.com/samber/lo"

	"github.com/EternisAI/mailsift/pkg/email"
)

const (
	// ViewLimit caps the ranked views at what fits on one screen.
	ViewLimit = 5
	// TopListLimit caps the dashboard leaderboards.
	TopListLimit = 10
)

// RankedEntry is one row of a score-ordered view.
type RankedEntry struct {
	Record email.Record      `json:"record"`
	Result email.ScoreResult `json:"result"`
}

// UnsubscribeEntry points at the list a record can be removed from.
// PrimaryURL is the first URL discovered for the record.
type UnsubscribeEntry struct {
	Record     email.Record `json:"record"`
	PrimaryURL string       `json:"primaryUrl"`
	AllURLs    []string     `json:"allUrls"`
}

type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// DashboardStats summarizes the whole analyzed set. FailedMessages counts
// records that never got a ScoreResult.
type DashboardStats struct {
	TotalMessages  int            `json:"totalMessages"`
	UnreadMessages int            `json:"unreadMessages"`
	ScoredMessages int            `json:"scoredMessages"`
	FailedMessages int            `json:"failedMessages"`
	BySender       map[string]int `json:"bySender"`
	ByDomain       map[string]int `json:"byDomain"`
	ByHour         [24]int        `json:"byHour"`
	ByWeekday      [7]int         `json:"byWeekday"`
	TopSenders     []SenderCount  `json:"topSenders"`
	TopDomains     []DomainCount  `json:"topDomains"`
}

// Priority ranks unread scored records, highest score first. Ties go to the
// more recently received message. Records without a score never rank.
func Priority(records []email.Record, results map[string]email.ScoreResult) []RankedEntry {
	entries := collectRanked(records, results, func(record email.Record) bool {
		return record.Unread
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Result.Score != entries[j].Result.Score {
			return entries[i].Result.Score > entries[j].Result.Score
		}
		if !entries[i].Record.Received.Equal(entries[j].Record.Received) {
			return entries[i].Record.Received.After(entries[j].Record.Received)
		}
		return entries[i].Record.ID < entries[j].Record.ID
	})

	return capEntries(entries)
}

// Cleanup ranks already-read scored records, lowest score first, so the least
// valuable mail surfaces for archiving. Ties go to the older message.
func Cleanup(records []email.Record, results map[string]email.ScoreResult) []RankedEntry {
	entries := collectRanked(records, results, func(record email.Record) bool {
		return !record.Unread
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Result.Score != entries[j].Result.Score {
			return entries[i].Result.Score < entries[j].Result.Score
		}
		if !entries[i].Record.Received.Equal(entries[j].Record.Received) {
			return entries[i].Record.Received.Before(entries[j].Record.Received)
		}
		return entries[i].Record.ID < entries[j].Record.ID
	})

	return capEntries(entries)
}

// Unsubscribe lists every record carrying at least one candidate URL, in
// record order. Scoring state is irrelevant here.
func Unsubscribe(records []email.Record) []UnsubscribeEntry {
	entries := make([]UnsubscribeEntry, 0)
	for _, record := range records {
		if len(record.UnsubscribeURLs) == 0 {
			continue
		}
		entries = append(entries, UnsubscribeEntry{
			Record:     record,
			PrimaryURL: record.UnsubscribeURLs[0],
			AllURLs:    record.UnsubscribeURLs,
		})
	}
	return entries
}

// Dashboard aggregates counts over all records. Histograms skip records with
// no usable timestamp; sender and domain maps skip records with no sender.
func Dashboard(records []email.Record, results map[string]email.ScoreResult) DashboardStats {
	stats := DashboardStats{
		BySender: make(map[string]int),
		ByDomain: make(map[string]int),
	}

	for _, record := range records {
		stats.TotalMessages++
		if record.Unread {
			stats.UnreadMessages++
		}
		if _, ok := results[record.ID]; ok {
			stats.ScoredMessages++
		} else {
			stats.FailedMessages++
		}

		if record.Sender != "" {
			stats.BySender[record.Sender]++
			if domain := record.Domain(); domain != "" {
				stats.ByDomain[domain]++
			}
		}

		if !record.Received.IsZero() {
			stats.ByHour[record.Received.Hour()]++
			stats.ByWeekday[int(record.Received.Weekday())]++
		}
	}

	stats.TopSenders = topSenders(stats.BySender)
	stats.TopDomains = topDomains(stats.ByDomain)
	return stats
}

func collectRanked(records []email.Record, results map[string]email.ScoreResult, keep func(email.Record) bool) []RankedEntry {
	entries := make([]RankedEntry, 0)
	for _, record := range records {
		result, scored := results[record.ID]
		if !scored || !keep(record) {
			continue
		}
		entries = append(entries, RankedEntry{Record: record, Result: result})
	}
	return entries
}

func capEntries(entries []RankedEntry) []RankedEntry {
	if len(entries) > ViewLimit {
		return entries[:ViewLimit]
	}
	return entries
}

func topSenders(counts map[string]int) []SenderCount {
	out := lo.MapToSlice(counts, func(sender string, count int) SenderCount {
		return SenderCount{Sender: sender, Count: count}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sender < out[j].Sender
	})
	if len(out) > TopListLimit {
		out = out[:TopListLimit]
	}
	return out
}

func topDomains(counts map[string]int) []DomainCount {
	out := lo.MapToSlice(counts, func(domain string, count int) DomainCount {
		return DomainCount{Domain: domain, Count: count}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > TopListLimit {
		out = out[:TopListLimit]
	}
	return out
}
