package grading

import "github.com/shortmark/shortmark/internal/llm"

// PromptVersion tags prompts and rubric content hashes. Bump when the
// prompt or schema changes in a way that invalidates cached rubrics.
const PromptVersion = "v1"

// GradeSchema defines the JSON schema every grader response must satisfy.
var GradeSchema = &llm.Schema{
	Name:        "answer-grading",
	Description: "Structured grading of a free-text student answer against a reference answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"overall": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pct": map[string]any{
						"type":        "number",
						"minimum":     0,
						"maximum":     1,
						"description": "Overall correctness in [0,1]",
					},
					"label": map[string]any{
						"type":        "string",
						"enum":        []any{"correct", "mostly-correct", "partial", "incorrect"},
						"description": "Must match the deterministic label rule for pct",
					},
					"confidence": map[string]any{
						"type":        "number",
						"minimum":     0,
						"maximum":     1,
						"description": "Grader's confidence in its own assessment",
					},
				},
				"required":             []any{"pct", "label", "confidence"},
				"additionalProperties": false,
			},
			"inferred_key_facts": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 8,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":   map[string]any{"type": "string"},
						"text": map[string]any{"type": "string"},
					},
					"required":             []any{"id", "text"},
					"additionalProperties": false,
				},
				"description": "Facts a correct answer must address, inferred from the reference answer",
			},
			"concepts": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"hit": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"partial": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"id":     map[string]any{"type": "string"},
								"reason": map[string]any{"type": "string"},
							},
							"required":             []any{"id", "reason"},
							"additionalProperties": false,
						},
					},
					"missing": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required":             []any{"hit", "partial", "missing"},
				"additionalProperties": false,
			},
			"misconceptions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"contradictions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"explanations": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"student_friendly": map[string]any{"type": "string"},
					"parent_friendly":  map[string]any{"type": "string"},
				},
				"required":             []any{"student_friendly", "parent_friendly"},
				"additionalProperties": false,
			},
		},
		"required": []any{
			"overall", "inferred_key_facts", "concepts",
			"misconceptions", "contradictions", "explanations",
		},
		"additionalProperties": false,
	},
}
