package views

import (
	"fmt"
	"strings"
	"time"
)

const reportBarWidth = 40

// RenderReport formats the dashboard as a plain-text report for the CLI.
func RenderReport(stats DashboardStats) string {
	var b strings.Builder

	b.WriteString("Mailbox analysis\n")
	b.WriteString("================\n\n")
	fmt.Fprintf(&b, "Messages analyzed: %d (%d unread)\n", stats.TotalMessages, stats.UnreadMessages)
	fmt.Fprintf(&b, "Scored: %d, analysis failed: %d\n", stats.ScoredMessages, stats.FailedMessages)

	if len(stats.TopSenders) > 0 {
		fmt.Fprintf(&b, "\nMost frequent sender: %s (%d messages)\n", stats.TopSenders[0].Sender, stats.TopSenders[0].Count)
		b.WriteString("\nTop senders\n-----------\n")
		for i, sender := range stats.TopSenders {
			fmt.Fprintf(&b, "%2d. %-44s %d\n", i+1, sender.Sender, sender.Count)
		}
	}

	if len(stats.TopDomains) > 0 {
		fmt.Fprintf(&b, "\nBusiest domain: %s (%d messages)\n", stats.TopDomains[0].Domain, stats.TopDomains[0].Count)
		b.WriteString("\nTop domains\n-----------\n")
		for i, domain := range stats.TopDomains {
			fmt.Fprintf(&b, "%2d. %-44s %d\n", i+1, domain.Domain, domain.Count)
		}
	}

	if hour, count, ok := peakHour(stats.ByHour); ok {
		fmt.Fprintf(&b, "\nBusiest hour: %02d:00 (%d messages)\n", hour, count)
		b.WriteString("\nMessages by hour\n----------------\n")
		maxCount := maxOf(stats.ByHour[:])
		for hour, count := range stats.ByHour {
			fmt.Fprintf(&b, "%02d:00 %-*s %d\n", hour, reportBarWidth, bar(count, maxCount), count)
		}

		b.WriteString("\nMessages by weekday\n-------------------\n")
		maxCount = maxOf(stats.ByWeekday[:])
		for day, count := range stats.ByWeekday {
			fmt.Fprintf(&b, "%-9s %-*s %d\n", time.Weekday(day), reportBarWidth, bar(count, maxCount), count)
		}
	}

	return b.String()
}

func peakHour(byHour [24]int) (int, int, bool) {
	best, bestCount := 0, 0
	for hour, count := range byHour {
		if count > bestCount {
			best, bestCount = hour, count
		}
	}
	return best, bestCount, bestCount > 0
}

func maxOf(counts []int) int {
	best := 0
	for _, count := range counts {
		if count > best {
			best = count
		}
	}
	return best
}

func bar(count, maxCount int) string {
	if maxCount == 0 || count == 0 {
		return ""
	}
	width := count * reportBarWidth / maxCount
	if width == 0 {
		width = 1
	}
	return strings.Repeat("#", width)
}
