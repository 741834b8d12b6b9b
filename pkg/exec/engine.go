package exec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/pkg/plan"
)

// Result is the aggregate outcome of one plan execution.
type Result struct {
	Steps          []*StepResult `json:"steps"`
	StepsCompleted int           `json:"steps_completed"`
	OverallSuccess bool          `json:"overall_success"`
	FinalResult    string        `json:"final_result"`
	StoppedAt      int           `json:"stopped_at_step,omitempty"`
	NextAction     string        `json:"next_action,omitempty"`
}

// Engine drives a plan through waves until every step resolves or the
// scheduler deadlocks.
type Engine struct {
	runner *Runner
	logger zerolog.Logger
}

// NewEngine creates an execution engine.
func NewEngine(runner *Runner, logger zerolog.Logger) (*Engine, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Engine{runner: runner, logger: logger}, nil
}

// Execute runs the plan to exhaustion. A deadlock aborts with a
// DeadlockError and partial results; any other return resolves every
// step.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	graph := BuildGraph(p.Steps)
	state := NewState(graph.StepNumbers())

	wave := 0
	for {
		ready, err := graph.NextWave(state)
		if err != nil {
			var deadlock *DeadlockError
			if errors.As(err, &deadlock) {
				e.logger.Error().Ints("blocked", deadlock.Remaining).Msg("execution deadlocked")
				return e.summarize(p, state), err
			}
			return e.summarize(p, state), err
		}
		if len(ready) == 0 {
			break
		}

		wave++
		e.logger.Info().Int("wave", wave).Int("steps", len(ready)).Msg("executing wave")
		e.runner.RunWave(ctx, ready, state)
	}

	result := e.summarize(p, state)
	e.logger.Info().
		Bool("overall_success", result.OverallSuccess).
		Int("steps_completed", result.StepsCompleted).
		Int("waves", wave).
		Msg("execution finished")
	return result, nil
}

func (e *Engine) summarize(p *plan.Plan, state *State) *Result {
	results := state.Results()
	result := &Result{
		Steps:          results,
		StepsCompleted: state.CompletedCount(),
		OverallSuccess: state.CompletedCount() == len(p.Steps),
	}

	for _, r := range results {
		if r.Status == StatusFailed || r.Status == StatusSkipped {
			result.StoppedAt = r.StepNumber
			if r.Recovery != nil && r.Recovery.NextStep != "" {
				result.NextAction = r.Recovery.NextStep
			} else {
				result.NextAction = "replan"
			}
			break
		}
	}

	result.FinalResult = e.describe(p, results, result.OverallSuccess)
	return result
}

func (e *Engine) describe(p *plan.Plan, results []*StepResult, success bool) string {
	var b strings.Builder
	if success {
		fmt.Fprintf(&b, "All %d steps completed.\n", len(p.Steps))
		for _, r := range results {
			if r.Summary != "" {
				fmt.Fprintf(&b, "Step %d: %s\n", r.StepNumber, r.Summary)
			}
		}
	} else {
		fmt.Fprintf(&b, "Execution incomplete.\n")
		for _, r := range results {
			switch r.Status {
			case StatusFailed:
				fmt.Fprintf(&b, "Step %d failed: %s\n", r.StepNumber, r.Error)
			case StatusSkipped:
				fmt.Fprintf(&b, "Step %d skipped: %s\n", r.StepNumber, r.Error)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
