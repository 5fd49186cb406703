package digest

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"bugle/internal/chat"
	"bugle/internal/tracker"
	"bugle/pkg/logx"
)

// degradedDailyText is posted when the digest body cannot be built. The
// space still hears from the bot so a silent failure never looks like a
// bug-free day.
const degradedDailyText = "*🐛 Active Bug List*\n\n⚠️ _Failed to process the daily bug report. Please check the execution log._"

// reporterSources maps known automated reporter logins to a display source.
var reporterSources = map[string]string{
	"infra-gl":    "Feedback Form",
	"sentry[bot]": "Sentry",
}

var bracketPrefix = regexp.MustCompile(`^\[(.+?)\]`)

// DailyReminder posts the active-bug digest into the daily Chat space.
//
// A token mint failure aborts the run entirely: without a token the bot
// cannot post at all, so there is no degraded message to send. Everything
// after the mint degrades instead of aborting.
func (s *Service) DailyReminder(ctx context.Context) error {
	token, err := s.minter.Mint(ctx)
	if err != nil {
		s.log.Error("token mint failed; skipping daily digest", logx.Err(err))
		return err
	}

	msg := &chat.Message{FormattedText: degradedDailyText}
	if built, err := s.buildDaily(ctx, token); err != nil {
		s.log.Error("daily digest build failed; posting degraded message", logx.Err(err))
	} else {
		msg = built
	}

	if err := s.chat.CreateMessage(ctx, token, s.cfg.DailySpace, msg); err != nil {
		return fmt.Errorf("digest: post daily reminder: %w", err)
	}
	return nil
}

func (s *Service) buildDaily(ctx context.Context, token string) (*chat.Message, error) {
	today := s.now()

	roster, err := s.reports.Schedule(ctx, today)
	if err != nil {
		return nil, err
	}
	pic := roster[0]
	picMention := pic.Email
	if handle := s.chat.FindMember(ctx, token, s.cfg.DailySpace, pic.Email); handle != "" {
		picMention = "<" + handle + ">"
	}

	bugs, err := s.bugs.ActiveBugs(ctx)
	if err != nil {
		// Degrades to a zero-bug digest rather than losing the PIC handoff.
		s.log.Error("bug fetch failed; reporting zero bugs", logx.Err(err))
		bugs = []tracker.Bug{}
	}
	bugs = s.resolver.Assignees(ctx, token, s.cfg.DailySpace, bugs)

	sort.SliceStable(bugs, func(i, j int) bool {
		return bugs[i].CreatedAt.Before(bugs[j].CreatedAt)
	})

	msg := &chat.Message{FormattedText: s.dailyText(today, len(bugs), picMention)}
	for _, bug := range bugs {
		msg.CardsV2 = append(msg.CardsV2, bugCard(bug, today))
	}
	return msg, nil
}

func (s *Service) dailyText(today time.Time, count int, picMention string) string {
	var b strings.Builder
	b.WriteString("*🐛 Active Bug List*\n\n")

	bugsLink := "currently active bugs"
	if s.cfg.IssuesURL != "" {
		bugsLink = fmt.Sprintf("<%s|currently active bugs>", s.cfg.IssuesURL)
	}
	tail := "🎉"
	if count > 0 {
		tail = ":"
	}
	fmt.Fprintf(&b, "There are *%d* %s per *%s*%s\n\n", count, bugsLink, formatDate(today), tail)

	b.WriteString("✅ *Things to do as an assignee:*\n\n")
	b.WriteString("- Investigate the issue that you've been assigned to.\n")
	b.WriteString("- Provide a status update in the issue page.\n")
	b.WriteString("- If you can't provide a status update to the issue, please state the reason in this thread.\n\n")

	b.WriteString("🧑 *Today's Bug PIC:*\n\n")
	b.WriteString(picMention)
	return b.String()
}

func bugCard(bug tracker.Bug, today time.Time) chat.CardV2 {
	age := int(math.Round(today.Sub(bug.CreatedAt).Hours() / 24))
	if age < 0 {
		age = 0
	}

	return chat.CardV2{
		CardID: fmt.Sprintf("bug-%d", bug.Number),
		Card: chat.Card{
			Header: &chat.CardHeader{
				Title:    fmt.Sprintf("#%d", bug.Number),
				Subtitle: bugSource(bug),
			},
			Sections: []chat.Section{
				{
					Collapsible: true,
					Widgets: []chat.Widget{
						{DecoratedText: &chat.DecoratedText{
							TopLabel:  "URL",
							StartIcon: &chat.Icon{KnownIcon: "BOOKMARK"},
							Text:      fmt.Sprintf(`<a href="%s">%s</a>`, bug.URL, bug.URL),
						}},
						{DecoratedText: &chat.DecoratedText{
							TopLabel:  "Title",
							StartIcon: &chat.Icon{KnownIcon: "DESCRIPTION"},
							Text:      bug.Title,
						}},
						{DecoratedText: &chat.DecoratedText{
							TopLabel:  "Age",
							StartIcon: &chat.Icon{KnownIcon: "CLOCK"},
							Text:      fmt.Sprintf("%d day(s) - since %s", age, formatDateShort(bug.CreatedAt)),
						}},
						{DecoratedText: &chat.DecoratedText{
							TopLabel:  "Assignee",
							StartIcon: &chat.Icon{KnownIcon: "PERSON"},
							Text:      assigneeLine(bug.Assignees),
						}},
					},
				},
			},
		},
	}
}

// bugSource labels where a bug came from: a [bracketed] title prefix wins,
// then the reporter map, then "Manual Report".
func bugSource(bug tracker.Bug) string {
	if m := bracketPrefix.FindStringSubmatch(bug.Title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if src, ok := reporterSources[bug.Reporter]; ok {
		return src
	}
	return "Manual Report"
}

// assigneeLine mentions resolved assignees and keeps unresolved ones as
// their raw identity, in the original order.
func assigneeLine(assignees []tracker.Assignee) string {
	if len(assignees) == 0 {
		return "⚠️"
	}
	parts := make([]string, 0, len(assignees))
	for _, a := range assignees {
		if a.Found {
			parts = append(parts, "<"+a.Handle+">")
		} else {
			parts = append(parts, a.Handle)
		}
	}
	return strings.Join(parts, " ")
}
