package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/eventidx/eventidx/pkg/model"
)

// Runner is the part of the Indexer the Service schedules.
type Runner interface {
	Init(ctx context.Context) error
	RunOnce(ctx context.Context) (int, error)
	RunUntilCaughtUp(ctx context.Context) (int, error)
}

// ServiceConfig configures the indexing schedule.
type ServiceConfig struct {
	// Schedule is a cron spec, e.g. "@every 1s".
	Schedule string
	// CatchUpOnStart drains both queues once after Init.
	CatchUpOnStart bool
}

// Service initializes the indexer and runs RunOnce on a cron schedule. A
// run that is still going when the next one is due is skipped.
type Service struct {
	cfg    ServiceConfig
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "indexer-service"),
	}
}

// Start runs Init, the optional catch-up drain, and then schedules
// incremental runs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("service already running")
	}

	if err := s.runner.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize indexer: %w", err)
	}
	if s.cfg.CatchUpOnStart {
		n, err := s.runner.RunUntilCaughtUp(ctx)
		if err != nil {
			return fmt.Errorf("failed to catch up: %w", err)
		}
		s.logger.Info("Caught up with index queues", "indexed", n)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.Info("Indexer service started", "schedule", s.cfg.Schedule)
	return nil
}

func (s *Service) runOnce(ctx context.Context) {
	n, err := s.runner.RunOnce(ctx)
	switch {
	case err == nil:
		if n > 0 {
			s.logger.Debug("Indexed events", "count", n)
		}
	case model.IsCanceled(err):
		s.logger.Debug("Indexing run canceled")
	default:
		s.logger.Error("Indexing run failed", "indexed", n, "error", err)
	}
}

// Stop cancels the current run and waits for it to return.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("Indexer service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
