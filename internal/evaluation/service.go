package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/companion/internal/document"
	"github.com/pavelanni/companion/internal/llm"
	"github.com/pavelanni/companion/internal/llm/prompts"
	"github.com/pavelanni/companion/internal/model"
)

// Input is what the evaluate form submits.
type Input struct {
	Question    string
	MaxMarks    float64
	RubricHints string
	Document    model.UploadedDocument
}

// Report is one graded answer, ready for display.
type Report struct {
	ID          uuid.UUID
	Question    string
	MaxMarks    float64
	RubricHints string
	Outcome     model.Outcome
	// Raw is the model's reply as received, or the error payload when the
	// call itself failed.
	Raw         string
	Percentage  float64
	ImagePNG    []byte
	Model       string
	EvaluatedAt time.Time
}

// Export converts the report into its JSON export form.
func (r *Report) Export(source string) model.EvaluationExport {
	return model.EvaluationExport{
		ID:          r.ID.String(),
		Question:    r.Question,
		MaxMarks:    r.MaxMarks,
		RubricHints: r.RubricHints,
		Source:      source,
		Model:       r.Model,
		Percentage:  r.Percentage,
		Outcome:     r.Outcome,
		EvaluatedAt: r.EvaluatedAt,
	}
}

// Service runs the question and evaluation steps against one model client.
type Service struct {
	normalizer *document.Normalizer
	client     *llm.Client
	variant    prompts.PromptVariant
}

// NewService creates a service grading with the given prompt variant.
func NewService(normalizer *document.Normalizer, client *llm.Client, variant prompts.PromptVariant) *Service {
	return &Service{normalizer: normalizer, client: client, variant: variant}
}

// ModelID reports the model behind the service.
func (s *Service) ModelID() string {
	return s.client.ModelID()
}

// GenerateQuestion returns a fresh question or the model's error.
func (s *Service) GenerateQuestion(ctx context.Context, topic model.Topic, difficulty model.Difficulty) (string, error) {
	return s.client.GenerateQuestion(ctx, topic, difficulty)
}

// Evaluate normalizes the upload, asks the model to grade it and interprets
// the reply. A document that cannot be decoded, or an invalid form, is
// returned as an error; a model failure becomes an ErrorResult in the report.
func (s *Service) Evaluate(ctx context.Context, in Input) (*Report, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, fmt.Errorf("no active question")
	}
	if in.MaxMarks <= 0 {
		return nil, fmt.Errorf("max marks must be greater than zero")
	}

	img, err := s.normalizer.Normalize(ctx, in.Document)
	if err != nil {
		return nil, err
	}
	req := model.EvaluationRequest{
		Question:    in.Question,
		MaxMarks:    in.MaxMarks,
		RubricHints: in.RubricHints,
		Image:       img,
	}

	prompt, err := prompts.BuildEvalPrompt(s.variant, prompts.EvalData{
		Question:    req.Question,
		MaxMarks:    req.MaxMarks,
		RubricHints: req.RubricHints,
	})
	if err != nil {
		return nil, fmt.Errorf("build evaluation prompt: %w", err)
	}

	pngData, err := document.EncodePNG(req.Image)
	if err != nil {
		return nil, fmt.Errorf("encode answer image: %w", err)
	}

	report := &Report{
		ID:          uuid.New(),
		Question:    req.Question,
		MaxMarks:    req.MaxMarks,
		RubricHints: req.RubricHints,
		ImagePNG:    pngData,
		Model:       s.client.ModelID(),
		EvaluatedAt: time.Now().UTC(),
	}

	raw, err := s.client.Evaluate(ctx, prompt, llm.Image{MIMEType: "image/png", Data: pngData})
	if err != nil {
		slog.WarnContext(ctx, "evaluation call failed", "report", report.ID, "error", err)
		report.Raw = llm.ErrorPayload(err)
		report.Outcome = FromError(err)
	} else {
		report.Raw = raw
		report.Outcome = Interpret(raw)
	}

	if report.Outcome.OK() {
		report.Percentage = model.Percentage(report.Outcome.Result.MarksAwarded, req.MaxMarks)
	}
	slog.InfoContext(ctx, "answer evaluated",
		"report", report.ID,
		"ok", report.Outcome.OK(),
		"variant", s.variant,
	)
	return report, nil
}
