package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Capability identifies a tool family a plan step may invoke.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityTerminal   Capability = "terminal"
	CapabilityGit        Capability = "git"
	CapabilityWeb        Capability = "web"
	CapabilityMemory     Capability = "memory"
)

// Invoker executes actions for a single capability.
type Invoker interface {
	// Capability returns the capability this invoker serves.
	Capability() Capability

	// Actions lists the action names the invoker supports.
	Actions() []string

	// Invoke runs a named action with the given arguments and returns its
	// textual output.
	Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error)
}

// UnsupportedActionError is returned when a step names a capability or
// action outside the registered set. It is never retried.
type UnsupportedActionError struct {
	Capability Capability
	Action     string
}

func (e *UnsupportedActionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("unsupported capability %q", e.Capability)
	}
	return fmt.Sprintf("unsupported action %q for capability %q", e.Action, e.Capability)
}

// Registry maps capabilities to their invokers. The set is closed at
// construction; untrusted plan output can only reach what was registered.
type Registry struct {
	invokers map[Capability]Invoker
}

// NewRegistry builds a registry from the given invokers. Duplicate
// capabilities are rejected.
func NewRegistry(invokers ...Invoker) (*Registry, error) {
	r := &Registry{invokers: make(map[Capability]Invoker, len(invokers))}
	for _, inv := range invokers {
		cap := inv.Capability()
		if _, exists := r.invokers[cap]; exists {
			return nil, fmt.Errorf("duplicate invoker for capability %q", cap)
		}
		r.invokers[cap] = inv
	}
	return r, nil
}

// Invoke dispatches an action to the invoker registered for the capability.
func (r *Registry) Invoke(ctx context.Context, cap Capability, action string, args map[string]interface{}) (string, error) {
	inv, ok := r.invokers[cap]
	if !ok {
		return "", &UnsupportedActionError{Capability: cap}
	}
	return inv.Invoke(ctx, action, args)
}

// Supports reports whether the capability/action pair is registered.
// An empty action checks the capability alone.
func (r *Registry) Supports(cap Capability, action string) bool {
	inv, ok := r.invokers[cap]
	if !ok {
		return false
	}
	if action == "" {
		return true
	}
	for _, a := range inv.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// Capabilities returns the registered capability names, sorted.
func (r *Registry) Capabilities() []Capability {
	caps := make([]Capability, 0, len(r.invokers))
	for cap := range r.invokers {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Describe renders the registered capabilities and actions for inclusion
// in planning prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, cap := range r.Capabilities() {
		inv := r.invokers[cap]
		fmt.Fprintf(&b, "- %s: %s\n", cap, strings.Join(inv.Actions(), ", "))
	}
	return b.String()
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func requiredStringArg(args map[string]interface{}, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}
