package plan

// planSchema validates the shape of generated plans before decoding.
// Semantic checks (dependency references, capability dispatch) happen in
// Validate afterwards.
const planSchema = `{
	"type": "object",
	"required": ["feasible", "overall_strategy", "steps"],
	"properties": {
		"feasible": {"type": "boolean"},
		"overall_strategy": {"type": "string"},
		"steps": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["step_number", "description", "tool", "action"],
				"properties": {
					"step_number": {"type": "integer", "minimum": 1},
					"description": {"type": "string"},
					"tool": {"type": "string"},
					"action": {"type": "string"},
					"arguments": {"type": "object"},
					"expected_output": {"type": "string"},
					"dependencies": {
						"type": "array",
						"items": {"type": "integer", "minimum": 1}
					}
				}
			}
		},
		"risks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"description": {"type": "string"},
					"mitigation": {"type": "string"}
				}
			}
		},
		"assumptions": {
			"type": "array",
			"items": {"type": "string"}
		},
		"estimated_duration_minutes": {"type": "integer", "minimum": 0}
	}
}`
