package plan

import (
	"fmt"

	"github.com/ebarros/kestrel/pkg/tools"
)

// ValidationError reports a structurally invalid plan. Validation failures
// are never retried against the same plan; the generator produces a fresh
// one instead.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid plan: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid plan: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Validate checks plan semantics: unique step numbers, dependency
// references that resolve within the plan, no self-dependencies, no
// cycles, and capability/action pairs the registry can dispatch.
// An infeasible plan must carry no steps.
func Validate(p *Plan, registry *tools.Registry) error {
	var problems []string

	if !p.Feasible {
		if len(p.Steps) > 0 {
			problems = append(problems, "infeasible plan must not carry steps")
		}
		if len(problems) > 0 {
			return &ValidationError{Problems: problems}
		}
		return nil
	}

	if len(p.Steps) == 0 {
		problems = append(problems, "feasible plan has no steps")
	}

	seen := make(map[int]bool, len(p.Steps))
	for _, step := range p.Steps {
		if step.Number < 1 {
			problems = append(problems, fmt.Sprintf("step number %d must be >= 1", step.Number))
			continue
		}
		if seen[step.Number] {
			problems = append(problems, fmt.Sprintf("duplicate step number %d", step.Number))
		}
		seen[step.Number] = true
	}

	for _, step := range p.Steps {
		for _, dep := range step.Dependencies {
			if dep == step.Number {
				problems = append(problems, fmt.Sprintf("step %d depends on itself", step.Number))
			} else if !seen[dep] {
				problems = append(problems, fmt.Sprintf("step %d depends on unknown step %d", step.Number, dep))
			}
		}
		if registry != nil && !registry.Supports(step.Capability, step.Action) {
			problems = append(problems, fmt.Sprintf("step %d uses unsupported %s/%s", step.Number, step.Capability, step.Action))
		}
	}

	// Cycle detection only makes sense once references resolve.
	if len(problems) == 0 {
		if cycle := findCycle(p.Steps); len(cycle) > 0 {
			problems = append(problems, fmt.Sprintf("dependency cycle through steps %v", cycle))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// findCycle runs a depth-first search over the dependency edges and
// returns the step numbers on the first cycle found.
func findCycle(steps []Step) []int {
	deps := make(map[int][]int, len(steps))
	for _, step := range steps {
		deps[step.Number] = step.Dependencies
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int]int, len(steps))
	var stack []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range deps[n] {
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						cycle = append(cycle, stack[i:]...)
						break
					}
				}
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, step := range steps {
		if state[step.Number] == unvisited && visit(step.Number) {
			return cycle
		}
	}
	return nil
}
