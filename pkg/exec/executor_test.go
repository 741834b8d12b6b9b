package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarros/kestrel/pkg/tools"
)

// scriptedInvoker runs a function per action name.
type scriptedInvoker struct {
	cap     tools.Capability
	actions map[string]func(args map[string]interface{}) (string, error)
}

func (s *scriptedInvoker) Capability() tools.Capability { return s.cap }

func (s *scriptedInvoker) Actions() []string {
	out := make([]string, 0, len(s.actions))
	for a := range s.actions {
		out = append(out, a)
	}
	return out
}

func (s *scriptedInvoker) Invoke(_ context.Context, action string, args map[string]interface{}) (string, error) {
	fn, ok := s.actions[action]
	if !ok {
		return "", &tools.UnsupportedActionError{Capability: s.cap, Action: action}
	}
	return fn(args)
}

type recordingMemory struct {
	mu    sync.Mutex
	saved []string
}

func (m *recordingMemory) Save(_ context.Context, content string, _ []string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, content)
	return nil
}

type stubAdvisor struct {
	payload map[string]interface{}
	err     error
	calls   int
}

func (s *stubAdvisor) InferJSON(_ context.Context, _, _ string) (map[string]interface{}, error) {
	s.calls++
	return s.payload, s.err
}

func terminalRegistry(t *testing.T, run func(args map[string]interface{}) (string, error)) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(&scriptedInvoker{
		cap:     tools.CapabilityTerminal,
		actions: map[string]func(args map[string]interface{}) (string, error){"run_command": run},
	})
	require.NoError(t, err)
	return r
}

func TestExecuteSuccess(t *testing.T) {
	registry := terminalRegistry(t, func(map[string]interface{}) (string, error) {
		return "it worked", nil
	})
	memory := &recordingMemory{}
	e, err := NewStepExecutor(ExecutorConfig{Registry: registry, Memory: memory, Logger: zerolog.Nop()})
	require.NoError(t, err)

	result := e.Execute(context.Background(), mkStep(1))

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "it worked", result.Output)
	require.Len(t, memory.saved, 1)
	assert.Contains(t, memory.saved[0], "it worked")
}

func TestExecuteTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 2000)
	registry := terminalRegistry(t, func(map[string]interface{}) (string, error) {
		return long, nil
	})
	e, err := NewStepExecutor(ExecutorConfig{Registry: registry, Logger: zerolog.Nop()})
	require.NoError(t, err)

	result := e.Execute(context.Background(), mkStep(1))

	assert.Len(t, result.Output, maxOutputChars+3)
	assert.Len(t, result.Summary, maxSummaryChars+3)
}

func TestExecuteFailureInvokesAdvisor(t *testing.T) {
	registry := terminalRegistry(t, func(map[string]interface{}) (string, error) {
		return "", fmt.Errorf("disk full")
	})
	advisor := &stubAdvisor{payload: map[string]interface{}{
		"root_cause":   "no space left on device",
		"fix_strategy": "clean the workspace first",
		"next_step":    "add a cleanup step",
	}}
	e, err := NewStepExecutor(ExecutorConfig{Registry: registry, Advisor: advisor, Logger: zerolog.Nop()})
	require.NoError(t, err)

	result := e.Execute(context.Background(), mkStep(1))

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "disk full", result.Error)
	require.NotNil(t, result.Recovery)
	assert.Equal(t, "no space left on device", result.Recovery.RootCause)
	assert.Equal(t, 1, advisor.calls)
}

func TestExecuteAdvisorFailureFallsBack(t *testing.T) {
	registry := terminalRegistry(t, func(map[string]interface{}) (string, error) {
		return "", fmt.Errorf("disk full")
	})
	advisor := &stubAdvisor{err: fmt.Errorf("backend down")}
	e, err := NewStepExecutor(ExecutorConfig{Registry: registry, Advisor: advisor, Logger: zerolog.Nop()})
	require.NoError(t, err)

	result := e.Execute(context.Background(), mkStep(1))

	require.NotNil(t, result.Recovery)
	assert.Equal(t, "disk full", result.Recovery.RootCause)
	assert.Equal(t, "replan", result.Recovery.NextStep)
}

func TestExecuteUnsupportedActionSkipsAdvisor(t *testing.T) {
	registry := terminalRegistry(t, func(map[string]interface{}) (string, error) {
		return "ok", nil
	})
	advisor := &stubAdvisor{}
	e, err := NewStepExecutor(ExecutorConfig{Registry: registry, Advisor: advisor, Logger: zerolog.Nop()})
	require.NoError(t, err)

	step := mkStep(1)
	step.Action = "reboot"
	result := e.Execute(context.Background(), step)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "unsupported action")
	assert.Nil(t, result.Recovery)
	assert.Equal(t, 0, advisor.calls)
}
