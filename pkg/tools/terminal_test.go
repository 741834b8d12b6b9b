package tools

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalRunCommand(t *testing.T) {
	term := NewTerminal(TerminalConfig{Workdir: t.TempDir(), Logger: zerolog.Nop()})

	out, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{
		"command": "echo hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestTerminalRejectsForbiddenCommands(t *testing.T) {
	term := NewTerminal(TerminalConfig{Workdir: t.TempDir(), Logger: zerolog.Nop()})

	for _, command := range []string{
		"rm -rf /",
		"sudo apt install curl",
		"echo ok && sudo reboot",
	} {
		_, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{
			"command": command,
		})
		require.Error(t, err, command)
		assert.Contains(t, err.Error(), "forbidden pattern")
	}
}

func TestTerminalCommandFailure(t *testing.T) {
	term := NewTerminal(TerminalConfig{Workdir: t.TempDir(), Logger: zerolog.Nop()})

	_, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{
		"command": "false",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")
}

func TestTerminalTimeout(t *testing.T) {
	term := NewTerminal(TerminalConfig{
		Workdir: t.TempDir(),
		Timeout: 100 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})

	start := time.Now()
	_, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{
		"command": "sleep 5",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminalTimeoutWithBackgroundChild(t *testing.T) {
	term := NewTerminal(TerminalConfig{
		Workdir: t.TempDir(),
		Timeout: 100 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})

	// A child that outlives sh keeps the output pipes open; Run must
	// still return once the wait delay expires.
	start := time.Now()
	_, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{
		"command": "sleep 5 & wait",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestTerminalMissingCommand(t *testing.T) {
	term := NewTerminal(TerminalConfig{Workdir: t.TempDir(), Logger: zerolog.Nop()})

	_, err := term.Invoke(context.Background(), "run_command", map[string]interface{}{})
	assert.Error(t, err)
}
