package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/companion/internal/evaluation"
	"github.com/pavelanni/companion/internal/handler/views"
	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/model"
	"github.com/pavelanni/companion/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	svc    *evaluation.Service
	config model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, svc *evaluation.Service, cfg model.AppConfig) (*Handler, error) {
	cfg.BasePath = NormalizeBasePath(cfg.BasePath)
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{store: s, svc: svc, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleIndex)
		r.Post("/question/generate", h.handleGenerateQuestion)
		r.Post("/question/manual", h.handleManualQuestion)
		r.Post("/evaluate", h.handleEvaluate)
		r.Post("/session/reset", h.handleReset)
	})
}

// Mount wires the routes onto r, under the configured base path if any.
func (h *Handler) Mount(r chi.Router) {
	r.Use(appI18n.Middleware(h.config.SecureCookies, h.config.BasePath))

	basePath := h.config.BasePath
	if basePath == "" {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
		return
	}
	r.Route(basePath, func(sub chi.Router) {
		sub.Use(h.BasePathMiddleware)
		h.Routes(sub)
	})
	r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
	})
}

// indexData builds the page state shared by every render of the index.
func (h *Handler) indexData(r *http.Request) views.IndexData {
	data := views.IndexData{
		Topics:       model.Topics(),
		Difficulties: model.Difficulties(),
		Mode:         model.ModeGenerate,
		Topic:        model.TopicSystems,
		Difficulty:   model.DifficultyMedium,
		MaxMarks:     model.DefaultMaxMarks,
		Rubric:       model.DefaultRubric,
		Model:        h.svc.ModelID(),
	}
	if m := model.ParseMode(r.URL.Query().Get("mode")); m != "" {
		data.Mode = m
	}
	if sess := model.SessionFromContext(r.Context()); sess.HasQuestion() {
		data.Question = sess.ActiveQuestion
	}
	return data
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data views.IndexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, h.indexData(r))
}

func (h *Handler) handleGenerateQuestion(w http.ResponseWriter, r *http.Request) {
	data := h.indexData(r)
	data.Mode = model.ModeGenerate

	topic, err := model.ParseTopic(r.FormValue("topic"))
	if err != nil {
		data.Notice = appI18n.T(r.Context(), "InvalidForm")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	difficulty, err := model.ParseDifficulty(r.FormValue("difficulty"))
	if err != nil {
		data.Notice = appI18n.T(r.Context(), "InvalidForm")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	data.Topic, data.Difficulty = topic, difficulty

	question, err := h.svc.GenerateQuestion(r.Context(), topic, difficulty)
	if err != nil {
		slog.Error("question generation failed", "topic", topic, "difficulty", difficulty, "error", err)
		data.Notice = appI18n.Td(r.Context(), "GenerationFailed", map[string]any{"Error": err.Error()})
		h.render(w, r, http.StatusBadGateway, data)
		return
	}

	if err := h.store.SetActiveQuestion(model.SessionTokenFromContext(r.Context()), question); err != nil {
		slog.Error("failed to store question", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("question generated", "topic", topic, "difficulty", difficulty)
	http.Redirect(w, r, h.path("/?mode=generate"), http.StatusSeeOther)
}

func (h *Handler) handleManualQuestion(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		data := h.indexData(r)
		data.Mode = model.ModeManual
		data.Notice = appI18n.T(r.Context(), "ManualEmpty")
		h.render(w, r, http.StatusUnprocessableEntity, data)
		return
	}

	if err := h.store.SetActiveQuestion(model.SessionTokenFromContext(r.Context()), question); err != nil {
		slog.Error("failed to store question", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/?mode=manual"), http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSession(model.SessionTokenFromContext(r.Context())); err != nil {
		slog.Error("failed to delete session", "error", err)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok", "model": h.svc.ModelID()}
	if _, err := h.store.SessionCount(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
