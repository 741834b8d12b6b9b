package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/tools"
)

const systemPrompt = `You are a planning engine for an autonomous task runner.
Break the goal into concrete, atomic steps. Each step invokes exactly one
tool action. Declare dependencies between steps by step number. If the goal
cannot be achieved with the available tools, set "feasible": false and
return no steps. Respond with a single JSON object only.`

// InferenceClient is the slice of the inference layer the generator needs.
type InferenceClient interface {
	InferJSON(ctx context.Context, system, prompt string) (map[string]interface{}, error)
}

// Generator turns a goal plus optional context into a validated Plan.
type Generator struct {
	client   InferenceClient
	registry *tools.Registry
	schema   *gojsonschema.Schema
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// GeneratorConfig holds generator construction parameters.
type GeneratorConfig struct {
	Client   InferenceClient
	Registry *tools.Registry
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // optional
}

// NewGenerator creates a plan generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("inference client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(planSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling plan schema: %w", err)
	}
	return &Generator{
		client:   cfg.Client,
		registry: cfg.Registry,
		schema:   schema,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Request carries everything a single plan generation needs.
type Request struct {
	Goal string

	// MemoryContext is retrieved past experience, already formatted.
	MemoryContext string

	// Feedback folds review findings from a previous iteration into the
	// next planning attempt.
	Feedback string
}

// Generate produces a validated plan for the goal. Structurally invalid
// output fails with a ValidationError; the caller decides whether to
// re-plan.
func (g *Generator) Generate(ctx context.Context, req Request) (*Plan, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, fmt.Errorf("goal is required")
	}

	payload, err := g.client.InferJSON(ctx, systemPrompt, g.buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	result, err := g.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validating plan schema: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &ValidationError{Problems: problems}
	}

	p, err := decodePlan(req.Goal, payload)
	if err != nil {
		return nil, err
	}
	if err := Validate(p, g.registry); err != nil {
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.PlansGeneratedTotal.WithLabelValues(fmt.Sprintf("%t", p.Feasible)).Inc()
	}
	g.logger.Info().
		Str("plan_id", p.ID).
		Bool("feasible", p.Feasible).
		Int("steps", len(p.Steps)).
		Msg("generated plan")
	return p, nil
}

func (g *Generator) buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", req.Goal)

	b.WriteString("Available tools:\n")
	b.WriteString(g.registry.Describe())
	b.WriteByte('\n')

	if req.MemoryContext != "" {
		b.WriteString(req.MemoryContext)
		b.WriteString("\n\n")
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "Feedback from the previous attempt, address it in this plan:\n%s\n\n", req.Feedback)
	}

	b.WriteString(`Respond with JSON:
{
  "feasible": true,
  "overall_strategy": "...",
  "steps": [
    {
      "step_number": 1,
      "description": "...",
      "tool": "filesystem",
      "action": "read_file",
      "arguments": {"path": "..."},
      "expected_output": "...",
      "dependencies": []
    }
  ],
  "risks": [{"description": "...", "mitigation": "..."}],
  "assumptions": ["..."],
  "estimated_duration_minutes": 5
}`)
	return b.String()
}

// decodePlan converts the schema-checked payload into a Plan via JSON
// round-trip so field tags drive the mapping.
func decodePlan(goal string, payload map[string]interface{}) (*Plan, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("re-encoding plan payload: %w", err)
	}

	p := NewPlan(goal)
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	// Unmarshal overwrites stamped fields when the payload carries them.
	if p.Goal == "" {
		p.Goal = goal
	}
	return &p, nil
}
