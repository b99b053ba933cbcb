package prompts

// EvaluationSchemaName identifies the evaluation response schema.
const EvaluationSchemaName = "answer-evaluation"

// Evaluation response keys. Downstream parsing depends on these exact names.
const (
	KeyMarksAwarded      = "marks_awarded"
	KeyEvaluationSummary = "evaluation_summary"
	KeyMistakes          = "mistakes"
	KeyModelAnswer       = "model_answer"
	KeyError             = "error"
)

// EvaluationSchema returns the JSON Schema the remote model is constrained to
// when grading an answer. A fresh map is returned on every call.
func EvaluationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			KeyMarksAwarded: map[string]any{
				"type":        "number",
				"description": "Marks awarded, between 0 and the maximum marks.",
			},
			KeyEvaluationSummary: map[string]any{
				"type":        "string",
				"description": "Examiner's remarks on the answer.",
			},
			KeyMistakes: map[string]any{
				"type":        "array",
				"description": "Each mistake or omission as a separate item.",
				"items":       map[string]any{"type": "string"},
			},
			KeyModelAnswer: map[string]any{
				"type":        "string",
				"description": "A complete answer that earns full marks.",
			},
		},
		"required": []any{
			KeyMarksAwarded,
			KeyEvaluationSummary,
			KeyMistakes,
			KeyModelAnswer,
		},
		"additionalProperties": false,
	}
}
