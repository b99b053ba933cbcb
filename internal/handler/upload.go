package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/companion/internal/document"
	"github.com/pavelanni/companion/internal/evaluation"
	"github.com/pavelanni/companion/internal/handler/views"
	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/model"
)

// DefaultMaxUploadBytes caps an answer upload.
const DefaultMaxUploadBytes = 10 << 20

// formOverhead leaves room for the text fields and multipart framing.
const formOverhead = 1 << 20

// parseForm caps the body and parses either form encoding.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+formOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(h.config.MaxUploadBytes + formOverhead)
	}
	return r.ParseForm()
}

// readUpload returns the uploaded answer file, or nil if none was sent.
func (h *Handler) readUpload(r *http.Request) (*model.UploadedDocument, error) {
	file, header, err := r.FormFile("answer")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.config.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.config.MaxUploadBytes {
		return nil, &http.MaxBytesError{Limit: h.config.MaxUploadBytes}
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &model.UploadedDocument{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := h.indexData(r)

	sess := model.SessionFromContext(ctx)
	if !sess.HasQuestion() {
		data.Notice = appI18n.T(ctx, "NoActiveQuestion")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}

	maxMarks, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("max_marks")), 64)
	if err != nil || maxMarks <= 0 {
		data.Notice = appI18n.T(ctx, "InvalidMaxMarks")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	data.MaxMarks = maxMarks

	rubric := strings.TrimSpace(r.FormValue("rubric"))
	if rubric == "" {
		rubric = model.DefaultRubric
	}
	data.Rubric = rubric

	doc, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			data.Notice = appI18n.Td(ctx, "UploadTooLarge", map[string]any{"MB": h.config.MaxUploadBytes >> 20})
			h.render(w, r, http.StatusRequestEntityTooLarge, data)
			return
		}
		slog.Warn("failed to read upload", "error", err)
		data.Notice = appI18n.T(ctx, "InvalidForm")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	if doc == nil {
		data.Notice = appI18n.T(ctx, "MissingUpload")
		h.render(w, r, http.StatusBadRequest, data)
		return
	}

	report, err := h.svc.Evaluate(ctx, evaluation.Input{
		Question:    sess.ActiveQuestion,
		MaxMarks:    maxMarks,
		RubricHints: rubric,
		Document:    *doc,
	})
	if err != nil {
		var decErr *document.DecodeError
		if errors.As(err, &decErr) {
			slog.Warn("could not decode upload", "file", doc.Name, "kind", decErr.Kind, "error", decErr.Err)
			data.Notice = appI18n.T(ctx, "DecodeFailed")
			h.render(w, r, http.StatusUnprocessableEntity, data)
			return
		}
		slog.Error("evaluation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("answer graded",
		"report", report.ID,
		"file", doc.Name,
		"bytes", len(doc.Data),
		"ok", report.Outcome.OK(),
	)
	data.Report = views.NewReportView(report.Outcome, report.MaxMarks, report.Percentage, report.ImagePNG)
	h.render(w, r, http.StatusOK, data)
}
