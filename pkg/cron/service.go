package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/config"
	"github.com/ebarros/kestrel/pkg/orchestrator"
)

// Runner is the slice of the orchestration layer scheduled goals need.
type Runner interface {
	Run(ctx context.Context, goal string) (*orchestrator.RunResult, error)
}

// Service runs configured goals on cron schedules. Runs for the same
// schedule never overlap; a tick that arrives while the previous run is
// still going is skipped.
type Service struct {
	runner Runner
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewService creates the schedule service and registers every enabled
// schedule. Invalid expressions fail construction.
func NewService(runner Runner, schedules []config.ScheduleConfig, logger zerolog.Logger) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	s := &Service{
		runner:  runner,
		cron:    cron.New(),
		logger:  logger,
		running: make(map[string]bool),
	}

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}
		schedule := schedule
		if _, err := s.cron.AddFunc(schedule.Expr, func() { s.fire(schedule) }); err != nil {
			return nil, fmt.Errorf("registering schedule %q: %w", schedule.Name, err)
		}
		logger.Info().Str("name", schedule.Name).Str("expr", schedule.Expr).Msg("registered schedule")
	}
	return s, nil
}

// Start begins firing schedules.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for in-flight runs started by it.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered schedules.
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

func (s *Service) fire(schedule config.ScheduleConfig) {
	s.mu.Lock()
	if s.running[schedule.Name] {
		s.mu.Unlock()
		s.logger.Warn().Str("name", schedule.Name).Msg("previous run still active, skipping tick")
		return
	}
	s.running[schedule.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[schedule.Name] = false
		s.mu.Unlock()
	}()

	s.logger.Info().Str("name", schedule.Name).Str("goal", schedule.Goal).Msg("schedule fired")
	result, err := s.runner.Run(context.Background(), schedule.Goal)
	if err != nil {
		s.logger.Error().Err(err).Str("name", schedule.Name).Msg("scheduled run aborted")
		return
	}
	s.logger.Info().
		Str("name", schedule.Name).
		Bool("success", result.Success).
		Msg("scheduled run finished")
}
