package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/model"
)

func TestFormatMarks(t *testing.T) {
	tests := map[float64]string{
		0:    "0",
		3:    "3",
		3.5:  "3.5",
		2.25: "2.25",
		10:   "10",
	}
	for in, want := range tests {
		if got := FormatMarks(in); got != want {
			t.Errorf("FormatMarks(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNewReportView(t *testing.T) {
	rv := NewReportView(model.Succeeded(model.EvaluationResult{MarksAwarded: 1}), 3, 1.0/3, []byte{1, 2})
	if rv.Percent != 33 {
		t.Errorf("Percent = %d, want 33", rv.Percent)
	}
	if !strings.HasPrefix(string(rv.ImageURL), "data:image/png;base64,") {
		t.Errorf("ImageURL = %q", rv.ImageURL)
	}

	rv = NewReportView(model.Failed("x", ""), 4, 0, nil)
	if rv.ImageURL != "" {
		t.Error("no image expected")
	}
}

func renderIndex(t *testing.T, data IndexData) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := model.ContextWithBasePath(context.Background(), "/app")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")

	var buf bytes.Buffer
	if err := IndexPage(data).Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestIndexPageModes(t *testing.T) {
	data := IndexData{
		Topics:       model.Topics(),
		Difficulties: model.Difficulties(),
		Mode:         model.ModeGenerate,
		Topic:        model.TopicPython,
		Difficulty:   model.DifficultyHard,
	}

	html := renderIndex(t, data)
	if !strings.Contains(html, `action="/app/question/generate"`) {
		t.Error("generate form missing")
	}
	if strings.Contains(html, `action="/app/question/manual"`) {
		t.Error("manual form should be hidden in generate mode")
	}
	if !strings.Contains(html, `value="tok123"`) {
		t.Error("csrf token missing")
	}
	if !strings.Contains(html, `<option value="Hard" selected>`) {
		t.Error("selected difficulty not marked")
	}

	data.Mode = model.ModeManual
	data.ManualText = "draft"
	html = renderIndex(t, data)
	if !strings.Contains(html, `action="/app/question/manual"`) || !strings.Contains(html, ">draft</textarea>") {
		t.Error("manual form missing or lost its text")
	}
}

func TestIndexPageReport(t *testing.T) {
	data := IndexData{
		Mode:     model.ModeGenerate,
		Question: "Explain <script>",
		MaxMarks: 4,
		Report: NewReportView(model.Succeeded(model.EvaluationResult{
			MarksAwarded:      2.5,
			EvaluationSummary: "Partly correct",
			Mistakes:          []string{},
			ModelAnswer:       "Full answer",
		}), 4, 0.625, nil),
	}

	html := renderIndex(t, data)
	if !strings.Contains(html, "Marks: 2.5 / 4") {
		t.Error("marks line missing")
	}
	if strings.Contains(html, "Mistakes and omissions") {
		t.Error("empty mistake list must not be shown")
	}
	if strings.Contains(html, "<script>") {
		t.Error("question text must be escaped")
	}
	if !strings.Contains(html, `<progress class="bar" max="100" value="63">`) {
		t.Error("progress bar width missing")
	}
}

func TestIndexPageErrorReport(t *testing.T) {
	data := IndexData{
		Mode:   model.ModeManual,
		Report: NewReportView(model.Failed("could not read AI response", `{"marks_awarded": <b>`), 4, 0, nil),
	}

	html := renderIndex(t, data)
	if !strings.Contains(html, "The answer could not be evaluated. could not read AI response") {
		t.Error("error message missing")
	}
	if !strings.Contains(html, "<pre>{&#34;marks_awarded&#34;: &lt;b&gt;</pre>") {
		t.Error("raw reply must be shown escaped")
	}
	if strings.Contains(html, `<progress`) {
		t.Error("no progress bar without a result")
	}
	if !strings.Contains(html, `href="/app/?mode=manual" aria-current>`) {
		t.Error("manual tab should be marked current")
	}
}
