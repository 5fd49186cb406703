// Package app assembles the bot: config, logging, the upstream clients, the
// digest service, and the scheduler that drives it. It owns startup order,
// config reload fanout, and shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"bugle/internal/chat"
	"bugle/internal/config"
	"bugle/internal/digest"
	"bugle/internal/googleauth"
	"bugle/internal/report"
	"bugle/internal/resolve"
	"bugle/internal/scheduler"
	"bugle/internal/slack"
	"bugle/internal/tracker"
	"bugle/internal/transport"
	"bugle/internal/transport/telegram"
	"bugle/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	sched  *scheduler.Service
	digest *digest.Service

	watchCancel context.CancelFunc
	cfgCh       chan *config.Config
	wg          sync.WaitGroup
}

// New loads the config and wires every component. Nothing is started yet.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config %s: %w", configPath, err)
	}

	var sender transport.Sender
	if cfg.Telegram != nil {
		timeout, err := config.ParseDurationField("telegram.timeout", cfg.Telegram.Timeout)
		if err != nil {
			return nil, err
		}
		adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("app: telegram: %w", err)
		}
		sender = adapter
	}

	logSvc, log := logx.New(loggingConfig(cfg.Logging), sender)
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	minter, err := newMinter(cfg.Google)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	bugs, err := newTracker(cfg.Tracker, log.With(logx.String("comp", "tracker")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	var chatOpts []chat.Option
	if cfg.Google.ChatBaseURL != "" {
		chatOpts = append(chatOpts, chat.WithBaseURL(cfg.Google.ChatBaseURL))
	}
	chatClient := chat.New(log.With(logx.String("comp", "chat")), chatOpts...)

	resolver := resolve.New(chatClient, cfg.Digest.ChunkSize, log.With(logx.String("comp", "resolve")))
	reports := report.New(cfg.Report.ScriptURL, cfg.Report.ShiftURL)

	var slackOpts []slack.Option
	if cfg.Slack.BaseURL != "" {
		slackOpts = append(slackOpts, slack.WithBaseURL(cfg.Slack.BaseURL))
	}
	slackClient := slack.New(cfg.Slack.Token, slackOpts...)

	dig := digest.New(digest.Config{
		DailySpace:   cfg.Digest.DailySpace,
		SlackChannel: cfg.Slack.Channel,
		IssuesURL:    cfg.Digest.IssuesURL,
	}, log.With(logx.String("comp", "digest")), minter, bugs, resolver, chatClient, reports, slackClient)

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		sched:  sched,
		digest: dig,
	}
	if err := a.registerTasks(cfg.Schedules); err != nil {
		logSvc.Close()
		return nil, err
	}

	// Task names in schedules are fixed at startup; reloads may only reference
	// names that are already registered.
	mgr.SetValidator(func(ctx context.Context, next *config.Config) error {
		for spec, name := range next.Schedules {
			if _, ok := a.taskRuns()[name]; !ok {
				return fmt.Errorf("schedules[%q]: unknown task %q (restart required for new tasks)", spec, name)
			}
		}
		return nil
	})

	return a, nil
}

// taskRuns maps schedulable task names to their run funcs.
func (a *App) taskRuns() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		digest.TaskDailyReminder: a.digest.DailyReminder,
		digest.TaskWeeklyReport:  a.digest.WeeklyReport,
	}
}

func (a *App) registerTasks(schedules map[string]string) error {
	runs := a.taskRuns()
	for spec, name := range schedules {
		run, ok := runs[name]
		if !ok {
			return fmt.Errorf("app: schedules[%q]: unknown task %q", spec, name)
		}
		if err := a.sched.Register(scheduler.Task{Name: name, Spec: spec, Run: run}); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	return nil
}

// Start launches the config watcher, the reload fanout, and the scheduler.
func (a *App) Start(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.cfgCh = a.cfgMgr.Subscribe(1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(watchCtx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		for cfg := range a.cfgCh {
			a.applyReload(watchCtx, cfg)
		}
	}()

	a.sched.Start(ctx)
	a.log.Info("bugle started")
}

// applyReload pushes a validated config into the live services. Upstream
// endpoints and credentials are wired at startup and need a restart.
func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg.Logging))

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		// Durations were validated before publish; this indicates a bug.
		a.log.Error("reloaded scheduler config invalid", logx.Err(err))
		return
	}
	a.sched.Apply(ctx, schedCfg)
	a.log.Info("reload applied")
}

func (a *App) Stop(ctx context.Context) {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.sched.Stop(ctx)
	if a.cfgCh != nil {
		a.cfgMgr.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	a.wg.Wait()
	a.log.Info("bugle stopped")
	a.logSvc.Close()
}

func newMinter(cfg config.GoogleConfig) (*googleauth.Minter, error) {
	key := cfg.PrivateKey
	if cfg.PrivateKeyFile != "" {
		b, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("app: read private key file: %w", err)
		}
		key = string(b)
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("app: google private key is empty")
	}

	var opts []googleauth.Option
	if cfg.TokenURL != "" {
		opts = append(opts, googleauth.WithTokenURL(cfg.TokenURL))
	}
	cred := googleauth.Credential{Email: cfg.ServiceAccountEmail, PrivateKey: key}
	return googleauth.New(cred, cfg.Scopes, opts...), nil
}

func newTracker(cfg config.TrackerConfig, log logx.Logger) (*tracker.Client, error) {
	tc := tracker.Config{Token: cfg.Token, Owner: cfg.Owner, Repo: cfg.Repo}
	if cfg.BaseURL != "" {
		return tracker.NewWithBaseURL(&http.Client{Timeout: 30 * time.Second}, cfg.BaseURL, tc, log)
	}
	return tracker.New(tc, log), nil
}

func loggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			ChatID:     c.Telegram.ChatID,
			ThreadID:   c.Telegram.ThreadID,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}

func schedulerConfig(c config.SchedulerConfig) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.default_timeout", c.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        c.Enabled,
		Timezone:       c.Timezone,
		DefaultTimeout: timeout,
	}, nil
}
