package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bugle/internal/report"
	"bugle/internal/slack"
	"bugle/pkg/logx"
)

var bugPriorities = []string{"P0", "P1", "P2"}

// WeeklyReport posts the month-to-date stats report into Slack. A failed
// fetch still posts, with a warning body, so the channel can tell a broken
// pipeline apart from a skipped run.
func (s *Service) WeeklyReport(ctx context.Context) error {
	today := s.now()
	firstOfMonth := today.AddDate(0, 0, 1-today.Day())

	blocks := []slack.Block{
		slack.Header("📊 Weekly Report"),
		slack.Section(fmt.Sprintf("Month to date: *%s* - *%s*", formatDateShort(firstOfMonth), formatDateShort(today))),
		slack.Divider(),
	}

	rep, err := s.reports.Weekly(ctx)
	if err != nil {
		s.log.Error("weekly report fetch failed; posting degraded message", logx.Err(err))
		blocks = append(blocks, slack.Section("⚠️ _Failed to fetch the weekly report data. Please check the execution log._"))
	} else {
		blocks = append(blocks, weeklyBlocks(rep)...)
	}

	if err := s.slack.PostMessage(ctx, s.cfg.SlackChannel, blocks); err != nil {
		return fmt.Errorf("digest: post weekly report: %w", err)
	}
	return nil
}

// weeklyBlocks renders each sub-report independently: one failing resource
// degrades to a warning line without hiding the others.
func weeklyBlocks(rep *report.WeeklyReport) []slack.Block {
	var blocks []slack.Block

	blocks = append(blocks, slack.Section("*🐛 Bugs*"))
	blocks = append(blocks, resourceBlocks(rep.Bugs, bugBlocks)...)
	blocks = append(blocks, slack.Divider())

	blocks = append(blocks, slack.Section("*⚡ Performance*"))
	blocks = append(blocks, resourceBlocks(rep.Performance, performanceBlocks)...)
	blocks = append(blocks, slack.Divider())

	blocks = append(blocks, slack.Section("*🤖 AIP*"))
	blocks = append(blocks, resourceBlocks(rep.AIP, aipBlocks)...)
	return blocks
}

func resourceBlocks[T any](res report.Resource[T], render func(T) []slack.Block) []slack.Block {
	if res.Data == nil {
		reason := "no data"
		if res.Error != nil && strings.TrimSpace(*res.Error) != "" {
			reason = strings.TrimSpace(*res.Error)
		}
		return []slack.Block{slack.Section("⚠️ _" + reason + "_")}
	}
	return render(*res.Data)
}

func bugBlocks(stats report.BugStats) []slack.Block {
	return []slack.Block{
		slack.Section("*Internal*\n" + bugCountLines(stats.Internal)),
		slack.Section("*External*\n" + bugCountLines(stats.External)),
	}
}

func bugCountLines(counts report.BugCounts) string {
	var b strings.Builder
	b.WriteString("Open: ")
	b.WriteString(countsByPriority(counts.Open))
	b.WriteString("\nClosed: ")
	b.WriteString(countsByPriority(counts.Closed))
	return b.String()
}

// countsByPriority labels counts P0..P2 in order; a fourth bucket, when
// present, is bugs closed as enhancements.
func countsByPriority(counts []int) string {
	if len(counts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(counts))
	for i, n := range counts {
		switch {
		case i < len(bugPriorities):
			parts = append(parts, fmt.Sprintf("%s `%d`", bugPriorities[i], n))
		case i == len(bugPriorities):
			parts = append(parts, fmt.Sprintf("Enhancement `%d`", n))
		}
	}
	return strings.Join(parts, " · ")
}

func performanceBlocks(lines []string) []slack.Block {
	if len(lines) == 0 {
		return []slack.Block{slack.Section("_no entries_")}
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("• ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return []slack.Block{slack.Section(strings.TrimRight(b.String(), "\n"))}
}

func aipBlocks(stats report.AIPStats) []slack.Block {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: `%s`\nActive users: `%d`", stats.Model, stats.Users)

	names := make([]string, 0, len(stats.Scenario))
	for name := range stats.Scenario {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc := stats.Scenario[name]
		fmt.Fprintf(&b, "\n%s: `%.2fs` (target %s)", name, sc.Seconds, sc.Target)
	}
	return []slack.Block{slack.Section(b.String())}
}
