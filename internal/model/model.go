package model

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
)

// Topic is one of the fixed subject areas a question can be generated for.
type Topic string

const (
	TopicSystems     Topic = "Computer Systems and Organization"
	TopicPython      Topic = "Computational Thinking and Programming with Python"
	TopicNetworks    Topic = "Computer Networks"
	TopicDatabases   Topic = "Database Management System"
	TopicSociety     Topic = "Society Law and Ethics"
	TopicEmerging    Topic = "Emerging Trends"
	TopicIntelligent Topic = "Artificial Intelligence"
)

var topics = []Topic{
	TopicSystems,
	TopicPython,
	TopicNetworks,
	TopicDatabases,
	TopicSociety,
	TopicEmerging,
	TopicIntelligent,
}

// Topics returns the selectable topics in display order.
func Topics() []Topic {
	out := make([]Topic, len(topics))
	copy(out, topics)
	return out
}

// ParseTopic validates a topic name.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	for _, t := range topics {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties returns the difficulty levels from easiest to hardest.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// ParseDifficulty accepts a difficulty name in any letter case.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties() {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// QuestionMode selects how the active question is obtained.
type QuestionMode string

const (
	ModeGenerate QuestionMode = "generate"
	ModeManual   QuestionMode = "manual"
)

// ParseMode returns the mode for s, or "" when s names no mode.
func ParseMode(s string) QuestionMode {
	switch QuestionMode(s) {
	case ModeGenerate, ModeManual:
		return QuestionMode(s)
	}
	return ""
}

const (
	// DefaultMaxMarks is the max-marks value offered on the evaluation form.
	DefaultMaxMarks = 4.0
	// DefaultRubric is the rubric hint offered on the evaluation form.
	DefaultRubric = "Standard CBSE marking scheme"
)

// UploadedDocument is an answer sheet as received from the browser.
type UploadedDocument struct {
	Name        string
	ContentType string
	Data        []byte
}

// EvaluationRequest is built fresh for every evaluate action.
type EvaluationRequest struct {
	Question    string
	MaxMarks    float64
	RubricHints string
	Image       *image.RGBA
}

// EvaluationResult is the grading returned by the remote model.
// The JSON keys are the wire contract with the model.
type EvaluationResult struct {
	MarksAwarded      float64  `json:"marks_awarded"`
	EvaluationSummary string   `json:"evaluation_summary"`
	Mistakes          []string `json:"mistakes"`
	ModelAnswer       string   `json:"model_answer"`
}

// ErrorResult describes why no EvaluationResult could be produced.
// Raw holds the model text that failed to parse, if any.
type ErrorResult struct {
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// Outcome holds exactly one of Result or Error.
type Outcome struct {
	Result *EvaluationResult `json:"result,omitempty"`
	Error  *ErrorResult      `json:"error,omitempty"`
}

// OK reports whether the outcome carries a result.
func (o Outcome) OK() bool {
	return o.Result != nil && o.Error == nil
}

// Succeeded wraps a result.
func Succeeded(r EvaluationResult) Outcome {
	return Outcome{Result: &r}
}

// Failed wraps an error message and the raw text that caused it.
func Failed(message, raw string) Outcome {
	return Outcome{Error: &ErrorResult{Message: message, Raw: raw}}
}

// Percentage returns marks/maxMarks clamped to [0, 1] for the progress bar.
// A non-positive maxMarks yields 0.
func Percentage(marks, maxMarks float64) float64 {
	if maxMarks <= 0 {
		return 0
	}
	p := marks / maxMarks
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Session is the per-browser state shared between the question and evaluation steps.
type Session struct {
	ID             string
	ActiveQuestion string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// HasQuestion reports whether the evaluation step may be shown.
func (s *Session) HasQuestion() bool {
	return s != nil && strings.TrimSpace(s.ActiveQuestion) != ""
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath       string // URL prefix for sub-path deployments
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	PromptVariant  string // Grading prompt variant (strict, standard, lenient)
	MaxUploadBytes int64
	SessionTTL     time.Duration
}

type sessionCtxKey struct{}

// ContextWithSession stores the session in the request context.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the session from context, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return s
}

type sessionTokenCtxKey struct{}

// ContextWithSessionToken stores the raw session cookie value in context.
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenCtxKey{}, token)
}

// SessionTokenFromContext retrieves the raw session cookie value from context.
func SessionTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(sessionTokenCtxKey{}).(string)
	return t
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
