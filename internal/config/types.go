package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Telegram configures the operator alert channel. Optional; when omitted
	// the Telegram log sink and run-failure alerts are disabled.
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	Google  GoogleConfig  `json:"google"`
	Tracker TrackerConfig `json:"tracker"`
	Slack   SlackConfig   `json:"slack"`
	Report  ReportConfig  `json:"report"`
	Digest  DigestConfig  `json:"digest"`

	Scheduler SchedulerConfig `json:"scheduler"`

	// Schedules maps a cron spec to a task name, e.g.
	//
	//	"schedules": {
	//	  "0 3 * * *": "daily_bug_reminder",
	//	  "0 8 * * 5": "weekly_report"
	//	}
	//
	// Task names are registered by the app at startup.
	Schedules map[string]string `json:"schedules"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout string `json:"timeout,omitempty"`
}

// GoogleConfig holds the service-account credential used to mint Chat API
// tokens. Exactly one of PrivateKey (inline PEM) or PrivateKeyFile should be
// set.
type GoogleConfig struct {
	ServiceAccountEmail string   `json:"service_account_email"`
	PrivateKey          string   `json:"private_key,omitempty"`
	PrivateKeyFile      string   `json:"private_key_file,omitempty"`
	Scopes              []string `json:"scopes,omitempty"`

	// TokenURL and ChatBaseURL default to the public Google endpoints.
	// Overridable for tests.
	TokenURL    string `json:"token_url,omitempty"`
	ChatBaseURL string `json:"chat_base_url,omitempty"`
}

type TrackerConfig struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	// BaseURL overrides the GitHub API endpoint (tests, GHE).
	BaseURL string `json:"base_url,omitempty"`
}

type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	BaseURL string `json:"base_url,omitempty"`
}

type ReportConfig struct {
	// ScriptURL serves the weekly stats report, ShiftURL the on-call roster.
	// Both speak the Apps Script {status, data|message} envelope.
	ScriptURL string `json:"script_url"`
	ShiftURL  string `json:"shift_url"`
}

type DigestConfig struct {
	// DailySpace is the Chat space resource name, e.g. "spaces/AAAA".
	DailySpace string `json:"daily_space"`
	// ChunkSize bounds concurrent member lookups per bug. Defaults to 5.
	ChunkSize int `json:"chunk_size,omitempty"`
	// IssuesURL is linked from the daily digest header.
	IssuesURL string `json:"issues_url,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is an IANA TZ, e.g. "Asia/Jakarta". Empty means local time.
	Timezone string `json:"timezone,omitempty"`
	// DefaultTimeout is a Go duration string bounding each task run.
	// Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// Validate checks cross-field constraints that strict decoding cannot.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if c.Telegram != nil {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return errors.New("telegram.token is empty (omit the telegram section to disable)")
		}
		if _, err := ParseDurationField("telegram.timeout", c.Telegram.Timeout); err != nil {
			return err
		}
	}
	if c.Digest.ChunkSize < 0 {
		return errors.New("digest.chunk_size must be >= 0")
	}
	if c.Google.PrivateKey != "" && c.Google.PrivateKeyFile != "" {
		return errors.New("google: set private_key or private_key_file, not both")
	}
	for spec, task := range c.Schedules {
		if strings.TrimSpace(task) == "" {
			return fmt.Errorf("schedules[%q]: task name is empty", spec)
		}
	}
	return nil
}
