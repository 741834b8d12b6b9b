package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/plan"
)

// Runner executes one wave of ready steps under a bounded worker pool.
// The wave is synchronous: RunWave returns only after every dispatched
// step has resolved.
type Runner struct {
	executor    *StepExecutor
	maxWorkers  int
	stepTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// RunnerConfig holds runner construction parameters.
type RunnerConfig struct {
	Executor    *StepExecutor
	MaxWorkers  int
	StepTimeout time.Duration
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // optional
}

// NewRunner creates a wave runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("step executor is required")
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{
		executor:    cfg.Executor,
		maxWorkers:  workers,
		stepTimeout: timeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// RunWave dispatches every ready step to the pool and blocks until the
// wave resolves, recording each outcome into state. A panic or timeout
// in one step becomes a failed result; it never takes the wave down.
func (r *Runner) RunWave(ctx context.Context, steps []plan.Step, state *State) {
	if len(steps) == 0 {
		return
	}
	if r.metrics != nil {
		r.metrics.WaveSize.Observe(float64(len(steps)))
	}
	r.logger.Debug().Int("steps", len(steps)).Msg("running wave")

	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup

	for _, step := range steps {
		wg.Add(1)
		sem <- struct{}{}
		go func(step plan.Step) {
			defer wg.Done()
			defer func() { <-sem }()

			result := r.runStep(ctx, step)
			if result.Status == StatusSuccess {
				state.MarkSuccess(result)
			} else {
				state.MarkFailed(result)
			}
		}(step)
	}

	wg.Wait()
}

// runStep executes one step with a timeout. The capability call itself
// is not cancelled on timeout; the goroutine may outlive the step's
// failed result (known limitation, the tool layer owns its own
// deadlines).
func (r *Runner) runStep(ctx context.Context, step plan.Step) *StepResult {
	done := make(chan *StepResult, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- &StepResult{
					StepNumber: step.Number,
					Status:     StatusFailed,
					Error:      fmt.Sprintf("step panicked: %v", p),
				}
			}
		}()
		done <- r.executor.Execute(ctx, step)
	}()

	timer := time.NewTimer(r.stepTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result
	case <-timer.C:
		r.logger.Warn().Int("step", step.Number).Dur("timeout", r.stepTimeout).Msg("step timed out")
		return &StepResult{
			StepNumber: step.Number,
			Status:     StatusFailed,
			Error:      fmt.Sprintf("step timed out after %s", r.stepTimeout),
		}
	case <-ctx.Done():
		return &StepResult{
			StepNumber: step.Number,
			Status:     StatusFailed,
			Error:      ctx.Err().Error(),
		}
	}
}
