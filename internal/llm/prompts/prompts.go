package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/companion/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// QuestionMarks is the mark value every generated question is written for.
const QuestionMarks = 4

const (
	maxQuestionRunes = 4000
	maxRubricRunes   = 2000
)

var structureTagRegex = regexp.MustCompile(`(?i)</?\s*(question|rubric)\b[^>]*>`)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades like a strict board examiner. It is the default.
	PromptStrict PromptVariant = "strict"
	// PromptStandard follows the marking scheme with step marks.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards understanding over terminology.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// QuestionData holds template data for question generation prompts.
type QuestionData struct {
	Topic      model.Topic
	Difficulty model.Difficulty
	Marks      int
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	Question    string
	MaxMarks    float64
	RubricHints string
}

var (
	loadOnce      sync.Once
	loadErr       error
	questionTmpl  *template.Template
	evalTemplates map[PromptVariant]*template.Template
)

func load() error {
	loadOnce.Do(func() {
		questionTmpl, loadErr = parse("templates/question.txt")
		if loadErr != nil {
			return
		}
		evalTemplates = make(map[PromptVariant]*template.Template)
		for v := range validVariants {
			tmpl, err := parse("templates/eval_" + string(v) + ".txt")
			if err != nil {
				loadErr = err
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildQuestionPrompt builds the prompt asking for a single descriptive
// question worth QuestionMarks marks, without an answer.
func BuildQuestionPrompt(topic model.Topic, difficulty model.Difficulty) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}

	var buf bytes.Buffer
	err := questionTmpl.Execute(&buf, QuestionData{
		Topic:      topic,
		Difficulty: difficulty,
		Marks:      QuestionMarks,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildEvalPrompt builds an evaluation prompt using the specified variant.
func BuildEvalPrompt(variant PromptVariant, data EvalData) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	if data.MaxMarks <= 0 {
		return "", fmt.Errorf("max marks must be positive, got %v", data.MaxMarks)
	}

	data.Question = sanitize(data.Question, maxQuestionRunes, "[No question provided]")
	data.RubricHints = sanitize(data.RubricHints, maxRubricRunes, model.DefaultRubric)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitize(s string, limit int, fallback string) string {
	s = structureTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return fallback
	}

	if utf8.RuneCountInString(s) > limit {
		runes := []rune(s)
		s = string(runes[:limit]) + "\n\n[Truncated due to length]"
	}
	return s
}
