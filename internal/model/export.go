package model

import "time"

// EvaluationExport is the JSON document printed by the evaluate command.
type EvaluationExport struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	MaxMarks    float64   `json:"max_marks"`
	RubricHints string    `json:"rubric_hints"`
	Source      string    `json:"source"`
	Model       string    `json:"model"`
	Percentage  float64   `json:"percentage"`
	Outcome     Outcome   `json:"outcome"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
