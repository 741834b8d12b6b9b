package exec

import (
	"fmt"
	"sort"

	"github.com/ebarros/kestrel/pkg/plan"
)

// DeadlockError reports that no remaining step can ever become ready.
type DeadlockError struct {
	Remaining []int
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("dependency deadlock: steps %v can never become ready", e.Remaining)
}

// Graph holds a plan's dependency edges keyed by step number.
type Graph struct {
	steps map[int]plan.Step
	deps  map[int][]int
}

// BuildGraph indexes the plan's steps and dependency edges. Plans reach
// this point already validated, so references are assumed to resolve.
func BuildGraph(steps []plan.Step) *Graph {
	g := &Graph{
		steps: make(map[int]plan.Step, len(steps)),
		deps:  make(map[int][]int, len(steps)),
	}
	for _, s := range steps {
		g.steps[s.Number] = s
		g.deps[s.Number] = s.Dependencies
	}
	return g
}

// Step returns the step with the given number.
func (g *Graph) Step(number int) plan.Step {
	return g.steps[number]
}

// StepNumbers returns all step numbers, sorted.
func (g *Graph) StepNumbers() []int {
	out := make([]int, 0, len(g.steps))
	for n := range g.steps {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// NextWave computes the next set of ready steps. It first cascades
// failure: any remaining step with a failed dependency is marked skipped,
// repeatedly, until the cascade settles. Then every remaining step whose
// dependencies are all completed is ready. If steps remain but none are
// ready, the plan can never finish and a DeadlockError is returned.
func (g *Graph) NextWave(state *State) ([]plan.Step, error) {
	for {
		completed, failed, remaining := state.Snapshot()
		if len(remaining) == 0 {
			return nil, nil
		}

		cascaded := false
		for n := range remaining {
			for _, dep := range g.deps[n] {
				if failed[dep] {
					state.MarkSkipped(n, fmt.Sprintf("dependency step %d failed", dep))
					cascaded = true
					break
				}
			}
		}
		if cascaded {
			continue
		}

		var ready []plan.Step
		for n := range remaining {
			if g.satisfied(n, completed) {
				ready = append(ready, g.steps[n])
			}
		}
		if len(ready) == 0 {
			blocked := make([]int, 0, len(remaining))
			for n := range remaining {
				blocked = append(blocked, n)
			}
			sort.Ints(blocked)
			return nil, &DeadlockError{Remaining: blocked}
		}

		sort.Slice(ready, func(i, j int) bool { return ready[i].Number < ready[j].Number })
		return ready, nil
	}
}

func (g *Graph) satisfied(stepNumber int, completed map[int]bool) bool {
	for _, dep := range g.deps[stepNumber] {
		if !completed[dep] {
			return false
		}
	}
	return true
}
