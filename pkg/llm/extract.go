package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of free-form model output.
//
// It first looks for a ```json fenced block and parses its interior. Failing
// that it scans for the first balanced {...} span by brace depth. If neither
// yields a parseable object the error is fatal; partial data is never
// returned.
func ExtractJSON(text string) (map[string]interface{}, error) {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		end := strings.Index(rest, "```")
		if end < 0 {
			end = len(rest)
		}
		return parseObject(strings.TrimSpace(rest[:end]))
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: %.100q", ErrNoJSON, text)
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseObject(text[start : i+1])
			}
		}
	}

	return nil, fmt.Errorf("%w: unbalanced braces in %.100q", ErrNoJSON, text)
}

func parseObject(s string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return payload, nil
}
