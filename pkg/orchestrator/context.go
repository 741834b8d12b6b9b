package orchestrator

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ebarros/kestrel/pkg/exec"
	"github.com/ebarros/kestrel/pkg/plan"
	"github.com/ebarros/kestrel/pkg/review"
)

// Context accumulates everything one run produces. It is created once
// per Run call, mutated each iteration, and returned as the audit
// record; it is never persisted except through the memory collaborator
// on success.
type Context struct {
	RunID           string             `json:"run_id"`
	Goal            string             `json:"goal"`
	Plan            *plan.Plan         `json:"plan,omitempty"`
	History         []*exec.StepResult `json:"history"`
	Memories        string             `json:"memories,omitempty"`
	Iteration       int                `json:"iteration"`
	ErrorsRecovered int                `json:"errors_recovered"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
}

func newContext(goal string) *Context {
	id, err := gonanoid.New()
	if err != nil {
		id = "run"
	}
	return &Context{
		RunID:     id,
		Goal:      goal,
		StartedAt: time.Now(),
	}
}

func (c *Context) record(result *exec.Result) {
	c.History = append(c.History, result.Steps...)
}

// RunResult is the terminal outcome of one Run call.
type RunResult struct {
	Success bool            `json:"success"`
	Result  string          `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Review  *review.Verdict `json:"review,omitempty"`
	Context *Context        `json:"context"`
}
