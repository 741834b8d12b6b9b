package review

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarros/kestrel/pkg/exec"
	"github.com/ebarros/kestrel/pkg/plan"
)

type fakeInference struct {
	payload map[string]interface{}
	err     error
	prompts []string
}

func (f *fakeInference) InferJSON(_ context.Context, _, prompt string) (map[string]interface{}, error) {
	f.prompts = append(f.prompts, prompt)
	return f.payload, f.err
}

func newTestEvaluator(t *testing.T, payload map[string]interface{}) (*Evaluator, *fakeInference) {
	t.Helper()
	fake := &fakeInference{payload: payload}
	e, err := NewEvaluator(fake, zerolog.Nop())
	require.NoError(t, err)
	return e, fake
}

func sampleRun() (*plan.Plan, *exec.Result) {
	p := &plan.Plan{
		Feasible: true,
		Strategy: "write then verify",
		Steps:    []plan.Step{{Number: 1}, {Number: 2}},
	}
	r := &exec.Result{
		Steps: []*exec.StepResult{
			{StepNumber: 1, Status: exec.StatusSuccess, Summary: "file written"},
			{StepNumber: 2, Status: exec.StatusSuccess, Summary: "file verified"},
		},
		StepsCompleted: 2,
		OverallSuccess: true,
		FinalResult:    "All 2 steps completed.",
	}
	return p, r
}

func TestReviewApproved(t *testing.T) {
	e, _ := newTestEvaluator(t, map[string]interface{}{
		"goal_achieved":  true,
		"status":         "approved",
		"summary":        "file created as requested",
		"confidence":     0.95,
		"recommendation": "none",
	})

	p, r := sampleRun()
	v, err := e.Review(context.Background(), "create the file", p, r)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, v.Status)
	assert.True(t, v.GoalAchieved)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
}

func TestReviewMapsLooseStatusSpellings(t *testing.T) {
	cases := map[string]Status{
		"approved":         StatusApproved,
		"Approve":          StatusApproved,
		"needs_refinement": StatusNeedsRefinement,
		"needs_revision":   StatusNeedsRefinement,
		"failed":           StatusFailed,
		"catastrophe":      StatusFailed,
	}

	for raw, want := range cases {
		goalAchieved := want == StatusApproved
		e, _ := newTestEvaluator(t, map[string]interface{}{
			"goal_achieved": goalAchieved,
			"status":        raw,
		})

		p, r := sampleRun()
		v, err := e.Review(context.Background(), "goal", p, r)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v.Status, raw)
	}
}

func TestReviewDowngradesContradictoryApproval(t *testing.T) {
	e, _ := newTestEvaluator(t, map[string]interface{}{
		"goal_achieved": false,
		"status":        "approved",
	})

	p, r := sampleRun()
	v, err := e.Review(context.Background(), "goal", p, r)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsRefinement, v.Status)
}

func TestReviewRejectsMalformedVerdict(t *testing.T) {
	e, _ := newTestEvaluator(t, map[string]interface{}{
		"status": "approved",
	})

	p, r := sampleRun()
	_, err := e.Review(context.Background(), "goal", p, r)
	assert.Error(t, err)
}

func TestReviewPromptCarriesFailures(t *testing.T) {
	e, fake := newTestEvaluator(t, map[string]interface{}{
		"goal_achieved": false,
		"status":        "needs_refinement",
	})

	p, r := sampleRun()
	r.Steps[1] = &exec.StepResult{
		StepNumber: 2,
		Status:     exec.StatusFailed,
		Error:      "permission denied",
		Recovery:   &exec.Recovery{RootCause: "file owned by root"},
	}
	r.StepsCompleted = 1
	r.OverallSuccess = false

	_, err := e.Review(context.Background(), "create the file", p, r)
	require.NoError(t, err)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Step 2 FAILED: permission denied")
	assert.Contains(t, fake.prompts[0], "file owned by root")
	assert.Contains(t, fake.prompts[0], "Steps completed: 1 of 2")
}

func TestVerdictFeedback(t *testing.T) {
	v := &Verdict{
		Summary:        "partially done",
		Issues:         []string{"file missing", "tests not run"},
		Recommendation: "add a verification step",
	}

	feedback := v.Feedback()
	assert.Contains(t, feedback, "partially done")
	assert.Contains(t, feedback, "- file missing")
	assert.Contains(t, feedback, "Recommendation: add a verification step")
}
