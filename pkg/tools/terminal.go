package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultForbiddenCommands lists command substrings that are never run,
// regardless of how the plan phrases the step.
var DefaultForbiddenCommands = []string{"rm -rf", "sudo", "su", "format", "diskpart"}

// Terminal runs shell commands inside the workspace with a hard timeout
// and a deny-list for destructive commands.
type Terminal struct {
	workdir   string
	timeout   time.Duration
	forbidden []string
	logger    zerolog.Logger
}

// TerminalConfig configures the terminal invoker.
type TerminalConfig struct {
	Workdir   string
	Timeout   time.Duration
	Forbidden []string
	Logger    zerolog.Logger
}

// NewTerminal creates the terminal invoker.
func NewTerminal(cfg TerminalConfig) *Terminal {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	forbidden := cfg.Forbidden
	if forbidden == nil {
		forbidden = DefaultForbiddenCommands
	}
	return &Terminal{
		workdir:   cfg.Workdir,
		timeout:   timeout,
		forbidden: forbidden,
		logger:    cfg.Logger,
	}
}

func (t *Terminal) Capability() Capability { return CapabilityTerminal }

func (t *Terminal) Actions() []string { return []string{"run_command"} }

func (t *Terminal) Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	if action != "run_command" {
		return "", &UnsupportedActionError{Capability: CapabilityTerminal, Action: action}
	}

	command, err := requiredStringArg(args, "command")
	if err != nil {
		return "", err
	}
	if blocked := t.blockedBy(command); blocked != "" {
		return "", fmt.Errorf("command rejected: contains forbidden pattern %q", blocked)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workdir
	// Children of sh can hold the output pipes open past the kill;
	// WaitDelay stops Run from blocking on them after the deadline.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	t.logger.Debug().
		Str("command", command).
		Dur("elapsed", elapsed).
		Bool("ok", runErr == nil).
		Msg("ran command")

	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s: %s", t.timeout, command)
	}
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("command failed: %w: %s", runErr, detail)
	}

	out := strings.TrimRight(stdout.String(), "\n")
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}

func (t *Terminal) blockedBy(command string) string {
	lowered := strings.ToLower(command)
	for _, pattern := range t.forbidden {
		if strings.Contains(lowered, pattern) {
			return pattern
		}
	}
	return ""
}
