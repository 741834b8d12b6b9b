package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrBackendUnavailable wraps transient backend failures after the retry
// budget is exhausted.
var ErrBackendUnavailable = errors.New("inference backend unavailable")

// ErrNoJSON is returned when a response contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found in response")

// MalformedOutputError is returned when the backend keeps producing output
// that cannot be parsed as the requested structure.
type MalformedOutputError struct {
	Attempts int
	Last     error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed structured output after %d attempts: %v", e.Attempts, e.Last)
}

func (e *MalformedOutputError) Unwrap() error { return e.Last }

// IsTransient reports whether an error is worth retrying with backoff:
// connection failures, timeouts, and backend overload responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"timeout",
		"timed out",
		"temporarily unavailable",
		"too many requests",
		"429",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
