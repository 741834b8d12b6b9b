package exec

import (
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of a step. Terminal statuses are
// monotonic and never change once set.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status never changes again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Recovery is the recovery advisor's diagnosis of a failed step.
type Recovery struct {
	RootCause   string `json:"root_cause"`
	FixStrategy string `json:"fix_strategy"`
	NextStep    string `json:"next_step"`
}

// StepResult records one step's outcome.
type StepResult struct {
	StepNumber int           `json:"step_number"`
	Status     Status        `json:"status"`
	Output     string        `json:"output,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
	Recovery   *Recovery     `json:"recovery,omitempty"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
}

// State tracks step outcomes for one plan execution. completed, failed
// and remaining partition the step set at all times; a cascaded skip
// counts as failed for scheduling even though its result says skipped.
// One coarse mutex guards everything; it is only taken at wave
// boundaries so contention is irrelevant.
type State struct {
	mu        sync.Mutex
	results   map[int]*StepResult
	completed map[int]bool
	failed    map[int]bool
	remaining map[int]bool
}

// NewState creates execution state for the given step numbers.
func NewState(stepNumbers []int) *State {
	s := &State{
		results:   make(map[int]*StepResult, len(stepNumbers)),
		completed: make(map[int]bool),
		failed:    make(map[int]bool),
		remaining: make(map[int]bool, len(stepNumbers)),
	}
	for _, n := range stepNumbers {
		s.remaining[n] = true
		s.results[n] = &StepResult{StepNumber: n, Status: StatusPending}
	}
	return s
}

// MarkSuccess records a successful result and moves the step to completed.
func (s *State) MarkSuccess(result *StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal(result.StepNumber) {
		return
	}
	result.Status = StatusSuccess
	s.results[result.StepNumber] = result
	s.completed[result.StepNumber] = true
	delete(s.remaining, result.StepNumber)
}

// MarkFailed records a failed result and moves the step to failed.
func (s *State) MarkFailed(result *StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal(result.StepNumber) {
		return
	}
	result.Status = StatusFailed
	s.results[result.StepNumber] = result
	s.failed[result.StepNumber] = true
	delete(s.remaining, result.StepNumber)
}

// MarkSkipped records a step that was never dispatched because a
// dependency failed. Skipped steps join the failed set so nothing
// downstream of them ever becomes ready.
func (s *State) MarkSkipped(stepNumber int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal(stepNumber) {
		return
	}
	s.results[stepNumber] = &StepResult{
		StepNumber: stepNumber,
		Status:     StatusSkipped,
		Error:      reason,
	}
	s.failed[stepNumber] = true
	delete(s.remaining, stepNumber)
}

func (s *State) terminal(stepNumber int) bool {
	r, ok := s.results[stepNumber]
	return ok && r.Status.Terminal()
}

// Snapshot returns copies of the completed, failed and remaining sets.
func (s *State) Snapshot() (completed, failed, remaining map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySet(s.completed), copySet(s.failed), copySet(s.remaining)
}

// Result returns the recorded result for a step, or nil.
func (s *State) Result(stepNumber int) *StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[stepNumber]
}

// Results returns all results ordered by step number.
func (s *State) Results() []*StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StepResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

// Remaining returns the count of unresolved steps.
func (s *State) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remaining)
}

// CompletedCount returns the number of successful steps.
func (s *State) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func copySet(in map[int]bool) map[int]bool {
	out := make(map[int]bool, len(in))
	for k := range in {
		out[k] = true
	}
	return out
}
