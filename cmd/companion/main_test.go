package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/companion/internal/model"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "question", "evaluate"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, root.Flags().Lookup("addr"), "serve flags must be on root")
}

func TestLLMConfigFromEnv(t *testing.T) {
	t.Setenv("COMPANION_LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cmd := questionCmd()
	cfg := llmConfig(viperForCmd(cmd))

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Zero(t, cfg.MaxTokens, "no reply cap unless one is configured")
	assert.Zero(t, cfg.Timeout)
}

func TestPromptVariantFallback(t *testing.T) {
	cmd := serveCmd()
	require.NoError(t, cmd.Flags().Set("prompt-variant", "harsh"))
	assert.Equal(t, "strict", string(promptVariant(viperForCmd(cmd))))

	require.NoError(t, cmd.Flags().Set("prompt-variant", "Lenient"))
	assert.Equal(t, "lenient", string(promptVariant(viperForCmd(cmd))))
}

func writeAnswer(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	path := filepath.Join(t.TempDir(), "answer.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestEvaluateCommand(t *testing.T) {
	answer := writeAnswer(t)

	// The mock provider starts with no replies, so the call fails and the
	// failure is reported as an error outcome.
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"evaluate", answer, "--question", "What is RAM?", "--llm-provider", "mock"})
	require.NoError(t, root.Execute())

	var exp model.EvaluationExport
	require.NoError(t, json.Unmarshal(out.Bytes(), &exp))
	assert.Equal(t, "answer.png", exp.Source)
	assert.Equal(t, "What is RAM?", exp.Question)
	assert.Equal(t, model.DefaultMaxMarks, exp.MaxMarks)
	assert.Equal(t, "mock", exp.Model)
	require.NotNil(t, exp.Outcome.Error)
	assert.Contains(t, exp.Outcome.Error.Message, "unavailable")
}

func TestEvaluateCommandRaw(t *testing.T) {
	answer := writeAnswer(t)
	outPath := filepath.Join(t.TempDir(), "raw.json")

	root := rootCmd()
	root.SetArgs([]string{"evaluate", answer, "-q", "Q", "--llm-provider", "mock", "--raw", "-o", outPath})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &payload))
	assert.True(t, strings.Contains(payload["error"], "unavailable"))
}

func TestEvaluateCommandRequiresQuestion(t *testing.T) {
	root := rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"evaluate", writeAnswer(t), "--llm-provider", "mock"})
	assert.Error(t, root.Execute())
}

func TestEvaluateCommandQuestionFromEnv(t *testing.T) {
	t.Setenv("COMPANION_QUESTION", "What is ROM?")

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"evaluate", writeAnswer(t), "--llm-provider", "mock"})
	require.NoError(t, root.Execute())

	var exp model.EvaluationExport
	require.NoError(t, json.Unmarshal(out.Bytes(), &exp))
	assert.Equal(t, "What is ROM?", exp.Question)
}
