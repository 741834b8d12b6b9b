package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/exec"
	"github.com/ebarros/kestrel/pkg/plan"
	"github.com/ebarros/kestrel/pkg/review"
)

// Planner generates a validated plan for a goal.
type Planner interface {
	Generate(ctx context.Context, req plan.Request) (*plan.Plan, error)
}

// Engine executes a plan to exhaustion.
type Engine interface {
	Execute(ctx context.Context, p *plan.Plan) (*exec.Result, error)
}

// Reviewer judges an execution against the goal.
type Reviewer interface {
	Review(ctx context.Context, goal string, p *plan.Plan, result *exec.Result) (*review.Verdict, error)
}

// MemoryStore is the slice of the memory layer the loop needs.
type MemoryStore interface {
	Context(ctx context.Context, goal string) (string, error)
	Save(ctx context.Context, content string, tags []string, source string) error
}

// Committer snapshots the workspace after an approved run.
type Committer interface {
	Commit(ctx context.Context, message string) error
}

// Inferencer writes the auto-commit message. The retrying inference
// client satisfies this.
type Inferencer interface {
	Infer(ctx context.Context, system, prompt string) (string, error)
}

// Orchestrator is the bounded plan→execute→review loop.
type Orchestrator struct {
	planner       Planner
	engine        Engine
	reviewer      Reviewer
	memory        MemoryStore // optional
	committer     Committer   // optional
	inference     Inferencer  // optional
	maxIterations int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// Config holds orchestrator construction parameters.
type Config struct {
	Planner       Planner
	Engine        Engine
	Reviewer      Reviewer
	Memory        MemoryStore // optional, retrieval and persistence are skipped without it
	Committer     Committer   // optional, auto-commit is skipped without it
	Inference     Inferencer  // optional, commit messages fall back to the goal without it
	MaxIterations int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics // optional
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Reviewer == nil {
		return nil, fmt.Errorf("reviewer is required")
	}
	iterations := cfg.MaxIterations
	if iterations < 1 {
		iterations = 3
	}
	return &Orchestrator{
		planner:       cfg.Planner,
		engine:        cfg.Engine,
		reviewer:      cfg.Reviewer,
		memory:        cfg.Memory,
		committer:     cfg.Committer,
		inference:     cfg.Inference,
		maxIterations: iterations,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Run drives the goal through bounded iterations of plan, execute and
// review. It always returns a RunResult; the error return is reserved
// for context cancellation.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*RunResult, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("goal is required")
	}

	runCtx := newContext(goal)
	start := time.Now()
	o.logger.Info().Str("run_id", runCtx.RunID).Str("goal", goal).Msg("run started")

	runCtx.Memories = o.retrieve(ctx, goal)

	var feedback string
	var lastErr error

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		runCtx.Iteration = iteration
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		outcome, err := o.iterate(ctx, runCtx, feedback)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if errors.Is(err, errInfeasible) {
				// An infeasible plan ends the run; more iterations will
				// not make the goal achievable with the same tools.
				o.countIteration("infeasible")
				o.finish(runCtx, start, "infeasible")
				return &RunResult{
					Success: false,
					Error:   err.Error(),
					Context: runCtx,
				}, nil
			}
			// Iteration-level failures burn an iteration and retry.
			lastErr = err
			runCtx.ErrorsRecovered++
			o.countIteration("error")
			o.logger.Warn().Err(err).Int("iteration", iteration).Msg("iteration failed")
			continue
		}

		switch outcome.verdict.Status {
		case review.StatusApproved:
			o.persistSuccess(ctx, runCtx, outcome)
			o.finish(runCtx, start, "approved")
			o.countIteration("approved")
			return &RunResult{
				Success: true,
				Result:  outcome.result.FinalResult,
				Review:  outcome.verdict,
				Context: runCtx,
			}, nil

		case review.StatusNeedsRefinement:
			feedback = outcome.verdict.Feedback()
			o.countIteration("refine")
			o.logger.Info().Int("iteration", iteration).Msg("review requested refinement")

		default:
			feedback = outcome.verdict.Feedback()
			runCtx.ErrorsRecovered++
			o.countIteration("recover")
			o.logger.Info().Int("iteration", iteration).Msg("review judged the run failed, replanning")
		}
	}

	o.finish(runCtx, start, "exhausted")
	reason := fmt.Sprintf("iteration budget of %d exhausted", o.maxIterations)
	if lastErr != nil {
		reason = fmt.Sprintf("%s, last error: %v", reason, lastErr)
	}
	return &RunResult{
		Success: false,
		Error:   reason,
		Context: runCtx,
	}, nil
}

// iterationOutcome bundles what one successful iteration produced.
type iterationOutcome struct {
	plan    *plan.Plan
	result  *exec.Result
	verdict *review.Verdict
}

// errInfeasible aborts the whole run, not just the iteration.
var errInfeasible = errors.New("plan is infeasible")

func (o *Orchestrator) iterate(ctx context.Context, runCtx *Context, feedback string) (*iterationOutcome, error) {
	p, err := o.planner.Generate(ctx, plan.Request{
		Goal:          runCtx.Goal,
		MemoryContext: runCtx.Memories,
		Feedback:      feedback,
	})
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	runCtx.Plan = p

	if !p.Feasible {
		return nil, fmt.Errorf("%w: %s", errInfeasible, p.Strategy)
	}

	result, err := o.engine.Execute(ctx, p)
	if result != nil {
		runCtx.record(result)
	}
	if err != nil {
		return nil, fmt.Errorf("execution: %w", err)
	}

	verdict, err := o.reviewer.Review(ctx, runCtx.Goal, p, result)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	return &iterationOutcome{plan: p, result: result, verdict: verdict}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, goal string) string {
	if o.memory == nil {
		return ""
	}
	memories, err := o.memory.Context(ctx, goal)
	if err != nil {
		o.logger.Warn().Err(err).Msg("memory retrieval failed, planning without context")
		return ""
	}
	return memories
}

func (o *Orchestrator) persistSuccess(ctx context.Context, runCtx *Context, outcome *iterationOutcome) {
	if o.memory != nil {
		content := fmt.Sprintf("Goal %q achieved: %s", runCtx.Goal, outcome.verdict.Summary)
		if err := o.memory.Save(ctx, content, []string{"run", "approved"}, "orchestrator"); err != nil {
			o.logger.Warn().Err(err).Msg("persisting success record failed")
		}
	}
	if o.committer != nil {
		if err := o.committer.Commit(ctx, o.commitMessage(ctx, runCtx, outcome)); err != nil {
			o.logger.Warn().Err(err).Msg("auto-commit failed")
		}
	}
}

const commitSystem = "You write git commit messages. Respond with one concise conventional-commit line and nothing else."

const maxCommitMessage = 100

// commitMessage asks the inference client for a one-line commit message,
// falling back to a goal prefix when generation fails.
func (o *Orchestrator) commitMessage(ctx context.Context, runCtx *Context, outcome *iterationOutcome) string {
	goal := runCtx.Goal
	if len(goal) > 50 {
		goal = goal[:50]
	}
	fallback := "Auto: " + goal

	if o.inference == nil {
		return fallback
	}
	prompt := fmt.Sprintf("Goal: %s\nOutcome: %s", runCtx.Goal, outcome.verdict.Summary)
	msg, err := o.inference.Infer(ctx, commitSystem, prompt)
	if err != nil {
		o.logger.Warn().Err(err).Msg("commit message generation failed, using fallback")
		return fallback
	}
	msg = strings.TrimSpace(msg)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	if msg == "" {
		return fallback
	}
	if len(msg) > maxCommitMessage {
		msg = msg[:maxCommitMessage]
	}
	return msg
}

func (o *Orchestrator) finish(runCtx *Context, start time.Time, result string) {
	runCtx.FinishedAt = time.Now()
	if o.metrics != nil {
		o.metrics.RunsTotal.WithLabelValues(result).Inc()
		o.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	o.logger.Info().
		Str("run_id", runCtx.RunID).
		Str("result", result).
		Int("iterations", runCtx.Iteration).
		Dur("elapsed", time.Since(start)).
		Msg("run finished")
}

func (o *Orchestrator) countIteration(outcome string) {
	if o.metrics != nil {
		o.metrics.IterationsTotal.WithLabelValues(outcome).Inc()
	}
}
