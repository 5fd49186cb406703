// Package scheduler triggers named tasks on cron schedules.
//
// This is the only externally visible protocol of the bot: a mapping from
// cron spec to task, driven by the host clock. Execution is deliberately
// simple (one goroutine per firing, panic recovery, optional per-run
// timeout); anything a task needs beyond that lives in the task itself.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bugle/pkg/logx"
)

type Config struct {
	Enabled bool
	// Timezone is an IANA TZ name; empty means time.Local.
	Timezone string
	// DefaultTimeout bounds each task run; zero disables the bound.
	DefaultTimeout time.Duration
}

// Task is a named unit of scheduled work.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	parser cron.Parser

	tasks []Task

	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Register validates the spec and adds the task. All registrations must
// happen before Start.
func (s *Service) Register(task Task) error {
	if strings.TrimSpace(task.Name) == "" {
		return fmt.Errorf("scheduler: task name is empty")
	}
	if task.Run == nil {
		return fmt.Errorf("scheduler: task %q has no run func", task.Name)
	}
	if _, err := s.parser.Parse(task.Spec); err != nil {
		return fmt.Errorf("scheduler: task %q has invalid spec %q: %w", task.Name, task.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return fmt.Errorf("scheduler: cannot register %q while running", task.Name)
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Apply swaps the config. A timezone change restarts the cron runner so the
// new location takes effect; an enabled flip starts or stops it.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	oldEnabled := s.cfg.Enabled
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
	case !running && cfg.Enabled && oldEnabled != cfg.Enabled:
		s.Start(ctx)
	case running && oldTZ != strings.TrimSpace(cfg.Timezone):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil || !s.cfg.Enabled {
		return
	}

	loc := s.loadLocationLocked()
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for i := range s.tasks {
		task := s.tasks[i]
		if _, err := s.c.AddFunc(task.Spec, func() { s.runTask(task) }); err != nil {
			// Specs were validated at Register; this indicates a bug.
			s.log.Error("task registration failed", logx.String("task", task.Name), logx.Err(err))
		}
	}

	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("tasks", len(s.tasks)),
		logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	start := time.Now()
	// Wait for the cron runner first, then for in-flight task goroutines.
	<-c.Stop().Done()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; tasks abandoned")
	}
}

func (s *Service) runTask(task Task) {
	s.mu.Lock()
	base := s.runCtx
	timeout := s.cfg.DefaultTimeout
	s.mu.Unlock()
	if base == nil {
		return
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled task",
					logx.String("task", task.Name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()

		ctx := base
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(base, timeout)
			defer cancel()
		}

		start := time.Now()
		s.log.Info("task started", logx.String("task", task.Name))
		err := task.Run(ctx)
		if err != nil {
			s.log.Error("task failed",
				logx.String("task", task.Name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err))
			return
		}
		s.log.Info("task finished",
			logx.String("task", task.Name),
			logx.Duration("took", time.Since(start)))
	}()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
