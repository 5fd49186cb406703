package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bugle/internal/chat"
	"bugle/internal/report"
	"bugle/internal/slack"
	"bugle/internal/tracker"
	"bugle/pkg/logx"
)

type fakeMinter struct {
	token string
	err   error
	calls int
}

func (f *fakeMinter) Mint(ctx context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeBugs struct {
	bugs []tracker.Bug
	err  error
}

func (f *fakeBugs) ActiveBugs(ctx context.Context) ([]tracker.Bug, error) {
	return f.bugs, f.err
}

// fakeResolver marks assignees found when their handle appears in handles.
type fakeResolver struct {
	handles map[string]string
}

func (f *fakeResolver) Assignees(ctx context.Context, token, space string, bugs []tracker.Bug) []tracker.Bug {
	out := make([]tracker.Bug, len(bugs))
	for i, bug := range bugs {
		out[i] = bug
		out[i].Assignees = make([]tracker.Assignee, len(bug.Assignees))
		for j, a := range bug.Assignees {
			if h, ok := f.handles[a.Handle]; ok {
				out[i].Assignees[j] = tracker.Assignee{Found: true, Handle: h}
			} else {
				out[i].Assignees[j] = a
			}
		}
	}
	return out
}

type fakeChat struct {
	members map[string]string

	gotToken string
	gotSpace string
	gotMsg   *chat.Message
	sendErr  error
	sends    int
}

func (f *fakeChat) FindMember(ctx context.Context, token, space, email string) string {
	return f.members[email]
}

func (f *fakeChat) CreateMessage(ctx context.Context, token, space string, msg *chat.Message) error {
	f.sends++
	f.gotToken = token
	f.gotSpace = space
	f.gotMsg = msg
	return f.sendErr
}

type fakeReports struct {
	roster      []report.Employee
	rosterErr   error
	weekly      *report.WeeklyReport
	weeklyErr   error
	gotDate     time.Time
	weeklyCalls int
}

func (f *fakeReports) Schedule(ctx context.Context, date time.Time) ([]report.Employee, error) {
	f.gotDate = date
	return f.roster, f.rosterErr
}

func (f *fakeReports) Weekly(ctx context.Context) (*report.WeeklyReport, error) {
	f.weeklyCalls++
	return f.weekly, f.weeklyErr
}

type fakeSlack struct {
	gotChannel string
	gotBlocks  []slack.Block
	err        error
	posts      int
}

func (f *fakeSlack) PostMessage(ctx context.Context, channel string, blocks []slack.Block) error {
	f.posts++
	f.gotChannel = channel
	f.gotBlocks = blocks
	return f.err
}

func newTestService(minter *fakeMinter, bugs *fakeBugs, resolver *fakeResolver, chatSink *fakeChat, reports *fakeReports, slackSink *fakeSlack) *Service {
	cfg := Config{
		DailySpace:   "spaces/AAA",
		SlackChannel: "#weekly",
		IssuesURL:    "https://github.com/acme/product/issues",
	}
	s := New(cfg, logx.Nop(), minter, bugs, resolver, chatSink, reports, slackSink)
	return s.WithClock(func() time.Time {
		return time.Date(2025, time.June, 16, 9, 0, 0, 0, time.UTC)
	})
}

func TestDailyReminder(t *testing.T) {
	t.Parallel()

	minter := &fakeMinter{token: "tok-1"}
	bugs := &fakeBugs{bugs: []tracker.Bug{
		{
			Number:    42,
			Title:     "[Sentry] crash on login",
			URL:       "https://github.com/acme/product/issues/42",
			CreatedAt: time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC),
			Reporter:  "alice",
			Assignees: []tracker.Assignee{
				{Handle: "alice@acme.test"},
				{Handle: "bob"},
			},
		},
	}}
	resolver := &fakeResolver{handles: map[string]string{"alice@acme.test": "users/111"}}
	chatSink := &fakeChat{members: map[string]string{"pic@acme.test": "users/999"}}
	reports := &fakeReports{roster: []report.Employee{{Name: "PIC", Email: "pic@acme.test"}}}

	s := newTestService(minter, bugs, resolver, chatSink, reports, &fakeSlack{})
	if err := s.DailyReminder(t.Context()); err != nil {
		t.Fatalf("DailyReminder: %v", err)
	}

	if chatSink.sends != 1 {
		t.Fatalf("sends = %d, want 1", chatSink.sends)
	}
	if chatSink.gotToken != "tok-1" || chatSink.gotSpace != "spaces/AAA" {
		t.Fatalf("posted with token %q space %q", chatSink.gotToken, chatSink.gotSpace)
	}

	text := chatSink.gotMsg.FormattedText
	for _, want := range []string{
		"*1*",
		"Monday, 16 June 2025",
		"<https://github.com/acme/product/issues|currently active bugs>",
		"<users/999>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("daily text missing %q:\n%s", want, text)
		}
	}

	if len(chatSink.gotMsg.CardsV2) != 1 {
		t.Fatalf("cards = %d, want 1", len(chatSink.gotMsg.CardsV2))
	}
	card := chatSink.gotMsg.CardsV2[0]
	if card.CardID != "bug-42" {
		t.Errorf("card id = %q", card.CardID)
	}
	if card.Card.Header.Title != "#42" || card.Card.Header.Subtitle != "Sentry" {
		t.Errorf("card header = %+v", card.Card.Header)
	}

	widgets := card.Card.Sections[0].Widgets
	if got := widgets[2].DecoratedText.Text; got != "6 day(s) - since 10 June 2025" {
		t.Errorf("age widget = %q", got)
	}
	// One resolved mention, one raw fallback, original order.
	if got := widgets[3].DecoratedText.Text; got != "<users/111> bob" {
		t.Errorf("assignee widget = %q", got)
	}
}

func TestDailyReminderNoBugs(t *testing.T) {
	t.Parallel()

	chatSink := &fakeChat{}
	reports := &fakeReports{roster: []report.Employee{{Email: "pic@acme.test"}}}
	s := newTestService(&fakeMinter{token: "t"}, &fakeBugs{}, &fakeResolver{}, chatSink, reports, &fakeSlack{})

	if err := s.DailyReminder(t.Context()); err != nil {
		t.Fatalf("DailyReminder: %v", err)
	}
	text := chatSink.gotMsg.FormattedText
	if !strings.Contains(text, "*0*") || !strings.Contains(text, "🎉") {
		t.Errorf("zero-bug text = %q", text)
	}
	// Unresolvable PIC falls back to the raw email.
	if !strings.Contains(text, "pic@acme.test") {
		t.Errorf("missing PIC fallback in %q", text)
	}
	if len(chatSink.gotMsg.CardsV2) != 0 {
		t.Errorf("cards = %d, want 0", len(chatSink.gotMsg.CardsV2))
	}
}

func TestDailyReminderMintFailureAborts(t *testing.T) {
	t.Parallel()

	chatSink := &fakeChat{}
	s := newTestService(&fakeMinter{err: errors.New("denied")}, &fakeBugs{}, &fakeResolver{}, chatSink,
		&fakeReports{roster: []report.Employee{{Email: "pic@acme.test"}}}, &fakeSlack{})

	if err := s.DailyReminder(t.Context()); err == nil {
		t.Fatal("expected error")
	}
	if chatSink.sends != 0 {
		t.Fatalf("sends = %d, want 0 after mint failure", chatSink.sends)
	}
}

func TestDailyReminderScheduleFailureDegrades(t *testing.T) {
	t.Parallel()

	chatSink := &fakeChat{}
	s := newTestService(&fakeMinter{token: "t"}, &fakeBugs{}, &fakeResolver{}, chatSink,
		&fakeReports{rosterErr: errors.New("sheet down")}, &fakeSlack{})

	if err := s.DailyReminder(t.Context()); err != nil {
		t.Fatalf("DailyReminder: %v", err)
	}
	if chatSink.sends != 1 {
		t.Fatalf("sends = %d, want 1", chatSink.sends)
	}
	if chatSink.gotMsg.FormattedText != degradedDailyText {
		t.Errorf("text = %q, want degraded message", chatSink.gotMsg.FormattedText)
	}
}

func TestDailyReminderBugFetchFailureDegrades(t *testing.T) {
	t.Parallel()

	chatSink := &fakeChat{}
	s := newTestService(&fakeMinter{token: "t"}, &fakeBugs{err: errors.New("api down")}, &fakeResolver{}, chatSink,
		&fakeReports{roster: []report.Employee{{Email: "pic@acme.test"}}}, &fakeSlack{})

	if err := s.DailyReminder(t.Context()); err != nil {
		t.Fatalf("DailyReminder: %v", err)
	}
	if !strings.Contains(chatSink.gotMsg.FormattedText, "*0*") {
		t.Errorf("text = %q, want zero-bug digest", chatSink.gotMsg.FormattedText)
	}
}

func TestWeeklyReport(t *testing.T) {
	t.Parallel()

	perfErr := "sheet range missing"
	reports := &fakeReports{weekly: &report.WeeklyReport{
		Bugs: report.Resource[report.BugStats]{Data: &report.BugStats{
			Internal: report.BugCounts{Open: []int{1, 2, 3}, Closed: []int{0, 1, 0, 4}},
			External: report.BugCounts{Open: []int{0, 0, 1}, Closed: []int{0, 0, 0}},
		}},
		Performance: report.Resource[[]string]{Error: &perfErr},
		AIP: report.Resource[report.AIPStats]{Data: &report.AIPStats{
			Model: "v3",
			Users: 12,
			Scenario: map[string]report.Scenario{
				"checkout": {Seconds: 1.5, Target: "< 2s"},
			},
		}},
	}}
	slackSink := &fakeSlack{}
	s := newTestService(&fakeMinter{}, &fakeBugs{}, &fakeResolver{}, &fakeChat{}, reports, slackSink)

	if err := s.WeeklyReport(t.Context()); err != nil {
		t.Fatalf("WeeklyReport: %v", err)
	}
	if slackSink.gotChannel != "#weekly" {
		t.Fatalf("channel = %q", slackSink.gotChannel)
	}

	var all strings.Builder
	for _, b := range slackSink.gotBlocks {
		if b.Text != nil {
			all.WriteString(b.Text.Text)
			all.WriteString("\n")
		}
	}
	text := all.String()
	for _, want := range []string{
		"📊 Weekly Report",
		"*1 June 2025* - *16 June 2025*",
		"P0 `1` · P1 `2` · P2 `3`",
		"Enhancement `4`",
		"⚠️ _sheet range missing_",
		"Model: `v3`",
		"checkout: `1.50s` (target < 2s)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("weekly blocks missing %q:\n%s", want, text)
		}
	}
}

func TestWeeklyReportFetchFailureDegrades(t *testing.T) {
	t.Parallel()

	slackSink := &fakeSlack{}
	s := newTestService(&fakeMinter{}, &fakeBugs{}, &fakeResolver{}, &fakeChat{},
		&fakeReports{weeklyErr: errors.New("script exploded")}, slackSink)

	if err := s.WeeklyReport(t.Context()); err != nil {
		t.Fatalf("WeeklyReport: %v", err)
	}
	if slackSink.posts != 1 {
		t.Fatalf("posts = %d, want 1", slackSink.posts)
	}
	found := false
	for _, b := range slackSink.gotBlocks {
		if b.Text != nil && strings.Contains(b.Text.Text, "Failed to fetch the weekly report") {
			found = true
		}
	}
	if !found {
		t.Error("degraded warning block not posted")
	}
}

func TestWeeklyReportPostFailure(t *testing.T) {
	t.Parallel()

	slackSink := &fakeSlack{err: errors.New("rate limited")}
	s := newTestService(&fakeMinter{}, &fakeBugs{}, &fakeResolver{}, &fakeChat{},
		&fakeReports{weekly: &report.WeeklyReport{}}, slackSink)

	if err := s.WeeklyReport(t.Context()); err == nil {
		t.Fatal("expected error when slack post fails")
	}
}
