package tools

import (
	"context"
	"fmt"
	"strings"
)

// MemoryStore is the slice of the memory layer the memory tool needs.
type MemoryStore interface {
	Save(ctx context.Context, content string, tags []string, source string) error
	Search(ctx context.Context, query string, topK int) ([]MemoryHit, error)
}

// MemoryHit is a single retrieval result.
type MemoryHit struct {
	Content    string
	Tags       []string
	Similarity float64
}

// Memory exposes the persistent memory store as a tool capability so
// plans can save and retrieve knowledge explicitly.
type Memory struct {
	store MemoryStore
	topK  int
}

// NewMemory creates the memory invoker.
func NewMemory(store MemoryStore, topK int) *Memory {
	if topK <= 0 {
		topK = 5
	}
	return &Memory{store: store, topK: topK}
}

func (m *Memory) Capability() Capability { return CapabilityMemory }

func (m *Memory) Actions() []string {
	return []string{"save_embedding", "search_similar"}
}

func (m *Memory) Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	switch action {
	case "save_embedding":
		return m.save(ctx, args)
	case "search_similar":
		return m.search(ctx, args)
	default:
		return "", &UnsupportedActionError{Capability: CapabilityMemory, Action: action}
	}
}

func (m *Memory) save(ctx context.Context, args map[string]interface{}) (string, error) {
	content, err := requiredStringArg(args, "content")
	if err != nil {
		return "", err
	}
	tags := toStringSlice(args["tags"])
	if err := m.store.Save(ctx, content, tags, "tool"); err != nil {
		return "", fmt.Errorf("saving memory: %w", err)
	}
	return "memory saved", nil
}

func (m *Memory) search(ctx context.Context, args map[string]interface{}) (string, error) {
	query, err := requiredStringArg(args, "query")
	if err != nil {
		return "", err
	}
	hits, err := m.store.Search(ctx, query, m.topK)
	if err != nil {
		return "", fmt.Errorf("searching memory: %w", err)
	}
	if len(hits) == 0 {
		return "no similar memories found", nil
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [%.2f] %s", i+1, hit.Similarity, hit.Content)
		if len(hit.Tags) > 0 {
			fmt.Fprintf(&b, " (tags: %s)", strings.Join(hit.Tags, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
