package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ebarros/kestrel/pkg/exec"
	"github.com/ebarros/kestrel/pkg/plan"
)

// Status is the reviewer's decision about what the loop does next.
type Status string

const (
	StatusApproved        Status = "approved"
	StatusNeedsRefinement Status = "needs_refinement"
	StatusFailed          Status = "failed"
)

// Verdict is the reviewer's judgment of one execution against the goal.
type Verdict struct {
	GoalAchieved   bool     `json:"goal_achieved"`
	Status         Status   `json:"status"`
	Summary        string   `json:"summary"`
	Issues         []string `json:"issues"`
	Confidence     float64  `json:"confidence"`
	Recommendation string   `json:"recommendation"`
}

// Feedback renders the verdict's findings for the next planning prompt.
func (v *Verdict) Feedback() string {
	var b strings.Builder
	b.WriteString(v.Summary)
	for _, issue := range v.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	if v.Recommendation != "" {
		b.WriteString("\nRecommendation: ")
		b.WriteString(v.Recommendation)
	}
	return strings.TrimSpace(b.String())
}

const verdictSchema = `{
	"type": "object",
	"required": ["goal_achieved", "status"],
	"properties": {
		"goal_achieved": {"type": "boolean"},
		"status": {"type": "string"},
		"summary": {"type": "string"},
		"issues": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"recommendation": {"type": "string"}
	}
}`

const systemPrompt = `You review the outcome of an automated task run.
Judge strictly: the goal is achieved only when the execution evidence
shows it. Respond with a single JSON object only.`

// InferenceClient is the slice of the inference layer the evaluator needs.
type InferenceClient interface {
	InferJSON(ctx context.Context, system, prompt string) (map[string]interface{}, error)
}

// Evaluator judges execution results against the goal.
type Evaluator struct {
	client InferenceClient
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// NewEvaluator creates a review evaluator.
func NewEvaluator(client InferenceClient, logger zerolog.Logger) (*Evaluator, error) {
	if client == nil {
		return nil, fmt.Errorf("inference client is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(verdictSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling verdict schema: %w", err)
	}
	return &Evaluator{client: client, schema: schema, logger: logger}, nil
}

// Review produces a verdict for one executed plan. Verdicts with an
// unrecognized status degrade to failed rather than guessing approval.
func (e *Evaluator) Review(ctx context.Context, goal string, p *plan.Plan, result *exec.Result) (*Verdict, error) {
	payload, err := e.client.InferJSON(ctx, systemPrompt, buildPrompt(goal, p, result))
	if err != nil {
		return nil, fmt.Errorf("reviewing execution: %w", err)
	}

	validation, err := e.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validating verdict schema: %w", err)
	}
	if !validation.Valid() {
		return nil, fmt.Errorf("malformed verdict: %s", validation.Errors()[0].String())
	}

	v := decodeVerdict(payload)
	e.logger.Info().
		Str("status", string(v.Status)).
		Bool("goal_achieved", v.GoalAchieved).
		Float64("confidence", v.Confidence).
		Msg("review complete")
	return v, nil
}

func buildPrompt(goal string, p *plan.Plan, result *exec.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Strategy: %s\n", p.Strategy)
	fmt.Fprintf(&b, "Steps completed: %d of %d\n", result.StepsCompleted, len(p.Steps))
	fmt.Fprintf(&b, "Execution result:\n%s\n\n", result.FinalResult)

	for _, r := range result.Steps {
		switch r.Status {
		case exec.StatusFailed:
			fmt.Fprintf(&b, "Step %d FAILED: %s\n", r.StepNumber, r.Error)
			if r.Recovery != nil {
				fmt.Fprintf(&b, "  diagnosis: %s\n", r.Recovery.RootCause)
			}
		case exec.StatusSkipped:
			fmt.Fprintf(&b, "Step %d SKIPPED: %s\n", r.StepNumber, r.Error)
		}
	}

	b.WriteString(`
Respond with JSON:
{
  "goal_achieved": true,
  "status": "approved",
  "summary": "...",
  "issues": ["..."],
  "confidence": 0.9,
  "recommendation": "..."
}
Status must be one of: approved, needs_refinement, failed.`)
	return b.String()
}

// decodeVerdict maps the payload into a Verdict, normalizing the loose
// status spellings models produce.
func decodeVerdict(payload map[string]interface{}) *Verdict {
	v := &Verdict{}
	v.GoalAchieved, _ = payload["goal_achieved"].(bool)
	v.Summary, _ = payload["summary"].(string)
	v.Recommendation, _ = payload["recommendation"].(string)
	if c, ok := payload["confidence"].(float64); ok {
		v.Confidence = c
	}
	if issues, ok := payload["issues"].([]interface{}); ok {
		for _, issue := range issues {
			if s, ok := issue.(string); ok {
				v.Issues = append(v.Issues, s)
			}
		}
	}

	status, _ := payload["status"].(string)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "approve", "success":
		v.Status = StatusApproved
	case "needs_refinement", "needs_revision", "refine":
		v.Status = StatusNeedsRefinement
	default:
		v.Status = StatusFailed
	}

	// An approval that contradicts the achievement flag is downgraded.
	if v.Status == StatusApproved && !v.GoalAchieved {
		v.Status = StatusNeedsRefinement
	}
	return v
}
