package plan

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"feasible":         true,
		"overall_strategy": "list then read",
		"steps": []interface{}{
			map[string]interface{}{
				"step_number":     1,
				"description":     "list workspace files",
				"tool":            "filesystem",
				"action":          "list_dir",
				"arguments":       map[string]interface{}{"path": "."},
				"expected_output": "file listing",
				"dependencies":    []interface{}{},
			},
			map[string]interface{}{
				"step_number":     2,
				"description":     "read the readme",
				"tool":            "filesystem",
				"action":          "read_file",
				"arguments":       map[string]interface{}{"path": "README.md"},
				"expected_output": "readme contents",
				"dependencies":    []interface{}{1},
			},
		},
		"risks": []interface{}{
			map[string]interface{}{"description": "readme missing", "mitigation": "list first"},
		},
		"assumptions":                []interface{}{"workspace is readable"},
		"estimated_duration_minutes": 2,
	}
}

func newTestGenerator(t *testing.T, client InferenceClient) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{
		Client:   client,
		Registry: testRegistry(t),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return g
}

func TestGenerateDecodesValidPlan(t *testing.T) {
	g := newTestGenerator(t, &fakeInference{payload: validPayload()})

	p, err := g.Generate(context.Background(), Request{Goal: "summarize the repo"})
	require.NoError(t, err)

	assert.True(t, p.Feasible)
	assert.Equal(t, "summarize the repo", p.Goal)
	assert.Equal(t, "list then read", p.Strategy)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, []int{1}, p.Steps[1].Dependencies)
	assert.Equal(t, "README.md", p.Steps[1].Arguments["path"])
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 2, p.EstimatedMinutes)
}

func TestGenerateInfeasiblePlan(t *testing.T) {
	g := newTestGenerator(t, &fakeInference{payload: map[string]interface{}{
		"feasible":         false,
		"overall_strategy": "goal requires tools that are not available",
		"steps":            []interface{}{},
	}})

	p, err := g.Generate(context.Background(), Request{Goal: "launch a satellite"})
	require.NoError(t, err)
	assert.False(t, p.Feasible)
	assert.Empty(t, p.Steps)
}

func TestGenerateRejectsSchemaViolation(t *testing.T) {
	g := newTestGenerator(t, &fakeInference{payload: map[string]interface{}{
		"feasible": "yes",
		"steps":    []interface{}{},
	}})

	_, err := g.Generate(context.Background(), Request{Goal: "anything"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerateRejectsDanglingDependencies(t *testing.T) {
	payload := validPayload()
	payload["steps"].([]interface{})[1].(map[string]interface{})["dependencies"] = []interface{}{9}
	g := newTestGenerator(t, &fakeInference{payload: payload})

	_, err := g.Generate(context.Background(), Request{Goal: "anything"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerateRequiresGoal(t *testing.T) {
	g := newTestGenerator(t, &fakeInference{payload: validPayload()})

	_, err := g.Generate(context.Background(), Request{Goal: "  "})
	assert.Error(t, err)
}

func TestGeneratePromptCarriesContextAndFeedback(t *testing.T) {
	fake := &fakeInference{payload: validPayload()}
	g := newTestGenerator(t, fake)

	_, err := g.Generate(context.Background(), Request{
		Goal:          "summarize the repo",
		MemoryContext: "Relevant past experience:\n1. readme lives at the root",
		Feedback:      "previous plan skipped the docs directory",
	})
	require.NoError(t, err)
	require.Len(t, fake.prompts, 1)

	prompt := fake.prompts[0]
	assert.Contains(t, prompt, "Goal: summarize the repo")
	assert.Contains(t, prompt, "readme lives at the root")
	assert.Contains(t, prompt, "previous plan skipped the docs directory")
	assert.Contains(t, prompt, "- filesystem: read_file, write_file, list_dir")
}
