package exec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/plan"
	"github.com/ebarros/kestrel/pkg/tools"
)

const (
	maxOutputChars  = 500
	maxSummaryChars = 100
)

// InferenceClient is the slice of the inference layer the recovery
// advisor needs.
type InferenceClient interface {
	InferJSON(ctx context.Context, system, prompt string) (map[string]interface{}, error)
}

// MemorySaver persists knowledge produced by successful steps.
type MemorySaver interface {
	Save(ctx context.Context, content string, tags []string, source string) error
}

// StepExecutor runs a single step: registry dispatch, output shaping,
// and a recovery diagnosis on failure. It never retries a step itself.
type StepExecutor struct {
	registry *tools.Registry
	advisor  InferenceClient
	memory   MemorySaver
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// ExecutorConfig holds step executor construction parameters.
type ExecutorConfig struct {
	Registry *tools.Registry
	Advisor  InferenceClient // optional, recovery is skipped without it
	Memory   MemorySaver     // optional
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // optional
}

// NewStepExecutor creates a step executor.
func NewStepExecutor(cfg ExecutorConfig) (*StepExecutor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	return &StepExecutor{
		registry: cfg.Registry,
		advisor:  cfg.Advisor,
		memory:   cfg.Memory,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Execute runs one step and returns its result. Failures are contained
// in the result; the returned StepResult always carries a terminal
// status.
func (e *StepExecutor) Execute(ctx context.Context, step plan.Step) *StepResult {
	start := time.Now()
	result := &StepResult{StepNumber: step.Number, Status: StatusRunning}

	output, err := e.registry.Invoke(ctx, step.Capability, step.Action, step.Arguments)
	result.Duration = time.Since(start)

	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		e.metrics.StepExecutionsTotal.WithLabelValues(string(step.Capability), status).Inc()
		e.metrics.StepDuration.WithLabelValues(string(step.Capability)).Observe(result.Duration.Seconds())
	}

	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		e.logger.Warn().
			Int("step", step.Number).
			Str("capability", string(step.Capability)).
			Str("action", step.Action).
			Err(err).
			Msg("step failed")

		var unsupported *tools.UnsupportedActionError
		if !errors.As(err, &unsupported) {
			result.Recovery = e.diagnose(ctx, step, err)
		}
		return result
	}

	result.Status = StatusSuccess
	result.Output = truncate(output, maxOutputChars)
	result.Summary = truncate(output, maxSummaryChars)
	e.logger.Debug().
		Int("step", step.Number).
		Str("capability", string(step.Capability)).
		Dur("elapsed", result.Duration).
		Msg("step succeeded")

	e.remember(ctx, step, result)
	return result
}

// diagnose asks the recovery advisor for a root cause and fix strategy.
// Advisor failures degrade to a generic diagnosis; they never fail the
// step twice.
func (e *StepExecutor) diagnose(ctx context.Context, step plan.Step, stepErr error) *Recovery {
	fallback := &Recovery{
		RootCause:   stepErr.Error(),
		FixStrategy: "retry with an adjusted plan",
		NextStep:    "replan",
	}
	if e.advisor == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`A task step failed.
Step: %s
Tool: %s/%s
Error: %s

Respond with JSON: {"root_cause": "...", "fix_strategy": "...", "next_step": "..."}`,
		step.Description, step.Capability, step.Action, stepErr.Error())

	payload, err := e.advisor.InferJSON(ctx, "You diagnose failed automation steps.", prompt)
	if err != nil {
		e.logger.Warn().Err(err).Int("step", step.Number).Msg("recovery advisor unavailable")
		return fallback
	}

	rec := &Recovery{
		RootCause:   stringField(payload, "root_cause"),
		FixStrategy: stringField(payload, "fix_strategy"),
		NextStep:    stringField(payload, "next_step"),
	}
	if rec.RootCause == "" {
		return fallback
	}
	return rec
}

// remember saves a compact success record so later runs can retrieve it.
func (e *StepExecutor) remember(ctx context.Context, step plan.Step, result *StepResult) {
	if e.memory == nil {
		return
	}
	content := fmt.Sprintf("Step %q (%s/%s) succeeded: %s",
		step.Description, step.Capability, step.Action, result.Summary)
	if err := e.memory.Save(ctx, content, []string{"step", string(step.Capability)}, "executor"); err != nil {
		e.logger.Warn().Err(err).Int("step", step.Number).Msg("memory save failed")
	}
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
