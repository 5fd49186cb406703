// Package digest builds and posts the scheduled bug digests: the daily
// active-bug reminder into Google Chat and the weekly stats report into
// Slack.
//
// Collaborators are consumed through small ports so tests can fake each
// upstream independently. Failure policy follows one rule: a failed token
// mint aborts the run before anything is posted; every other failure
// degrades (empty data, raw identity, warning text) and the digest still
// goes out.
package digest

import (
	"context"
	"time"

	"bugle/internal/chat"
	"bugle/internal/report"
	"bugle/internal/slack"
	"bugle/internal/tracker"
	"bugle/pkg/logx"
)

// Task names, referenced from the schedules config section.
const (
	TaskDailyReminder = "daily_bug_reminder"
	TaskWeeklyReport  = "weekly_report"
)

type TokenMinter interface {
	Mint(ctx context.Context) (string, error)
}

type BugSource interface {
	ActiveBugs(ctx context.Context) ([]tracker.Bug, error)
}

type AssigneeResolver interface {
	Assignees(ctx context.Context, token, space string, bugs []tracker.Bug) []tracker.Bug
}

type ChatSink interface {
	FindMember(ctx context.Context, token, space, email string) string
	CreateMessage(ctx context.Context, token, space string, msg *chat.Message) error
}

type ReportSource interface {
	Schedule(ctx context.Context, date time.Time) ([]report.Employee, error)
	Weekly(ctx context.Context) (*report.WeeklyReport, error)
}

type SlackSink interface {
	PostMessage(ctx context.Context, channel string, blocks []slack.Block) error
}

type Config struct {
	// DailySpace is the Chat space resource name for the daily reminder.
	DailySpace string
	// SlackChannel receives the weekly report.
	SlackChannel string
	// IssuesURL is linked from the daily digest header.
	IssuesURL string
}

type Service struct {
	cfg Config
	log logx.Logger

	minter   TokenMinter
	bugs     BugSource
	resolver AssigneeResolver
	chat     ChatSink
	reports  ReportSource
	slack    SlackSink

	now func() time.Time
}

func New(cfg Config, log logx.Logger, minter TokenMinter, bugs BugSource, resolver AssigneeResolver, chatSink ChatSink, reports ReportSource, slackSink SlackSink) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		minter:   minter,
		bugs:     bugs,
		resolver: resolver,
		chat:     chatSink,
		reports:  reports,
		slack:    slackSink,
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}
