package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/companion/internal/document"
	"github.com/pavelanni/companion/internal/evaluation"
	"github.com/pavelanni/companion/internal/handler"
	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/llm"
	"github.com/pavelanni/companion/internal/llm/prompts"
	"github.com/pavelanni/companion/internal/model"
	"github.com/pavelanni/companion/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "companion",
		Short:        "CBSE answer practice companion powered by a multimodal model",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, questionCmd(), evaluateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `companion --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", "gemini", "Model provider (gemini, openai, anthropic, mock)")
	f.String("llm-key", "", "API key (or GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY)")
	f.String("llm-model", "", "Model name (default depends on provider)")
	f.String("llm-url", "", "Base URL for OpenAI-compatible or proxied endpoints")
	f.Duration("llm-timeout", 0, "Timeout for one model call (0 = none)")
	f.Int("llm-max-tokens", 0, "Maximum tokens in one model reply (0 = provider default)")
	f.String("prompt-variant", string(prompts.PromptStrict), "Grading prompt variant (strict, standard, lenient)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web companion",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", store.MemoryDSN, "SQLite database for sessions (:memory: keeps nothing across restarts)")
	f.StringP("lang", "l", "en", "Fallback UI language (en, hi)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /companion)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Int64("max-upload-mb", 10, "Largest accepted answer upload in MB")
	f.Duration("session-ttl", store.DefaultSessionTTL, "Idle lifetime of a browser session")
	addLLMFlags(cmd)
	return cmd
}

func questionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Generate one practice question and print it",
		RunE:  runQuestion,
	}
	f := cmd.Flags()
	f.StringP("topic", "t", string(model.TopicSystems), "Topic (one of the syllabus units)")
	f.StringP("difficulty", "d", string(model.DifficultyMedium), "Difficulty (easy, medium, hard)")
	addLLMFlags(cmd)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <answer-file>",
		Short: "Grade a photographed or scanned answer and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.StringP("question", "q", "", "The question the answer responds to (required)")
	f.Float64P("max-marks", "m", model.DefaultMaxMarks, "Maximum marks for the question")
	f.StringP("rubric", "r", model.DefaultRubric, "Marking hints")
	f.Bool("raw", false, "Print the model's reply exactly as received")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(cmd)

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(v.GetString("log-level"))}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("companion")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/companion")
	v.AddConfigPath("/etc/companion")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// llmConfig reads the provider settings shared by every command.
func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.Config{
		Provider:  strings.ToLower(strings.TrimSpace(v.GetString("llm-provider"))),
		APIKey:    v.GetString("llm-key"),
		Model:     v.GetString("llm-model"),
		BaseURL:   v.GetString("llm-url"),
		Timeout:   v.GetDuration("llm-timeout"),
		MaxTokens: v.GetInt("llm-max-tokens"),
	}
	return cfg.WithEnvKey()
}

func promptVariant(v *viper.Viper) prompts.PromptVariant {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using strict", "variant", variant)
		return prompts.PromptStrict
	}
	return prompts.PromptVariant(variant)
}

// newService builds the grading pipeline. No model call is made here.
func newService(ctx context.Context, v *viper.Viper) (*evaluation.Service, error) {
	cfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	client := llm.NewClient(provider, cfg.Timeout)
	client.SetMaxTokens(cfg.MaxTokens)
	return evaluation.NewService(document.NewNormalizer(document.FitzRenderer{}), client, promptVariant(v)), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"), v.GetDuration("session-ttl"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	svc, err := newService(ctx, v)
	if err != nil {
		return err
	}

	maxUploadMB := v.GetInt64("max-upload-mb")
	if maxUploadMB <= 0 {
		return fmt.Errorf("max-upload-mb must be positive, got %d", maxUploadMB)
	}
	appCfg := model.AppConfig{
		BasePath:       handler.NormalizeBasePath(v.GetString("base-path")),
		SecureCookies:  v.GetBool("secure-cookies"),
		PromptVariant:  string(promptVariant(v)),
		MaxUploadBytes: maxUploadMB << 20,
		SessionTTL:     db.TTL(),
	}

	h, err := handler.New(db, svc, appCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Mount(r)

	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"provider", llmConfig(v).Provider,
		"model", svc.ModelID(),
		"lang", lang,
		"base_path", appCfg.BasePath,
		"prompt_variant", appCfg.PromptVariant,
		"max_upload_mb", maxUploadMB,
		"session_ttl", appCfg.SessionTTL,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}

func runQuestion(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	topic, err := model.ParseTopic(v.GetString("topic"))
	if err != nil {
		return err
	}
	difficulty, err := model.ParseDifficulty(v.GetString("difficulty"))
	if err != nil {
		return err
	}

	svc, err := newService(cmd.Context(), v)
	if err != nil {
		return err
	}
	q, err := svc.GenerateQuestion(cmd.Context(), topic, difficulty)
	if err != nil {
		return fmt.Errorf("generate question: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), q)
	return err
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	question := v.GetString("question")
	if strings.TrimSpace(question) == "" {
		return errors.New("a question is required: set --question or COMPANION_QUESTION")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}

	svc, err := newService(cmd.Context(), v)
	if err != nil {
		return err
	}
	report, err := svc.Evaluate(cmd.Context(), evaluation.Input{
		Question:    question,
		MaxMarks:    v.GetFloat64("max-marks"),
		RubricHints: v.GetString("rubric"),
		Document:    model.UploadedDocument{Name: filepath.Base(path), Data: data},
	})
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", path, err)
	}

	var out []byte
	if v.GetBool("raw") {
		out = []byte(report.Raw)
	} else {
		out, err = json.MarshalIndent(report.Export(filepath.Base(path)), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
	}

	return writeOutput(cmd, v.GetString("output"), out)
}

func writeOutput(cmd *cobra.Command, outPath string, data []byte) error {
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
