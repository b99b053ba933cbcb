package views

import (
	"encoding/base64"

	"github.com/pavelanni/companion/internal/model"
)

// IndexData drives the single page: question step, answer step and the
// latest evaluation.
type IndexData struct {
	Topics       []model.Topic
	Difficulties []model.Difficulty
	Mode         model.QuestionMode
	Topic        model.Topic
	Difficulty   model.Difficulty

	// Question is the session's active question; empty hides the answer step.
	Question   string
	ManualText string

	// Notice is an already translated message shown above the forms.
	Notice string

	MaxMarks float64
	Rubric   string
	Model    string

	Report *ReportView
}

// ReportView is an evaluation prepared for display.
type ReportView struct {
	Outcome  model.Outcome
	MaxMarks float64
	// Percent is the clamped score as a whole percentage for the bar.
	Percent int
	// ImageURL is a data URL of the normalized page, or empty.
	ImageURL string
}

// NewReportView converts a graded outcome and its page image for display.
func NewReportView(outcome model.Outcome, maxMarks, percentage float64, png []byte) *ReportView {
	rv := &ReportView{
		Outcome:  outcome,
		MaxMarks: maxMarks,
		Percent:  int(percentage*100 + 0.5),
	}
	if len(png) > 0 {
		rv.ImageURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	return rv
}
