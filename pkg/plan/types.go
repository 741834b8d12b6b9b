package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/ebarros/kestrel/pkg/tools"
)

// Step is one atomic unit of work in a plan. Steps declare the
// capability/action pair they invoke and the step ids they depend on.
type Step struct {
	Number         int                    `json:"step_number"`
	Description    string                 `json:"description"`
	Capability     tools.Capability       `json:"tool"`
	Action         string                 `json:"action"`
	Arguments      map[string]interface{} `json:"arguments"`
	ExpectedOutput string                 `json:"expected_output"`
	Dependencies   []int                  `json:"dependencies"`
}

// Risk names a foreseen failure mode and how to mitigate it.
type Risk struct {
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
}

// Plan is a feasibility-checked, dependency-ordered breakdown of a goal.
// An infeasible plan carries no schedulable steps.
type Plan struct {
	ID               string    `json:"id"`
	Goal             string    `json:"goal"`
	Feasible         bool      `json:"feasible"`
	Strategy         string    `json:"overall_strategy"`
	Steps            []Step    `json:"steps"`
	Risks            []Risk    `json:"risks"`
	Assumptions      []string  `json:"assumptions"`
	EstimatedMinutes int       `json:"estimated_duration_minutes"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewPlan stamps identity and creation time onto a decoded plan.
func NewPlan(goal string) Plan {
	return Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		CreatedAt: time.Now(),
	}
}

// Step returns the step with the given number, or nil.
func (p *Plan) Step(number int) *Step {
	for i := range p.Steps {
		if p.Steps[i].Number == number {
			return &p.Steps[i]
		}
	}
	return nil
}
