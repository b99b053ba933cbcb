package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/model"
)

const (
	sessionCookieName = "companion_session"
	csrfCookieName    = "csrf_token"
)

// NormalizeBasePath turns "app/", "/app" and "/app/" into "/app"; "/" and
// "" mean no prefix.
func NormalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// BasePathMiddleware makes the base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute app path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// sessionMiddleware attaches the browser's session, starting a new one when
// the cookie is missing, unknown or expired.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			token = c.Value
		}

		sess, err := h.store.GetSession(token)
		if err != nil {
			slog.Error("failed to load session", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if sess == nil {
			token, sess, err = h.store.CreateSession()
			if err != nil {
				slog.Error("failed to create session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			slog.Debug("session started", "session", sess.ID[:12])
		} else if err := h.store.Touch(token); err != nil {
			slog.Warn("failed to extend session", "error", err)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     h.cookiePath(),
			MaxAge:   int(h.store.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   h.config.SecureCookies,
		})

		ctx := model.ContextWithSession(r.Context(), sess)
		ctx = model.ContextWithSessionToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// csrfMiddleware uses the double-submit cookie pattern. Unsafe requests
// have their body size capped and their form parsed here, before the token
// can be read.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if !h.checkCSRF(w, r) {
				return
			}
		}

		token, err := h.setCSRFCookie(w)
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if err := h.parseForm(w, r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("request body too large", "limit", tooLarge.Limit)
			if token, err := h.setCSRFCookie(w); err == nil {
				r = r.WithContext(model.ContextWithCSRFToken(r.Context(), token))
			}
			data := h.indexData(r)
			data.Notice = appI18n.Td(r.Context(), "UploadTooLarge", map[string]any{"MB": h.config.MaxUploadBytes >> 20})
			h.render(w, r, http.StatusRequestEntityTooLarge, data)
			return false
		}
		slog.Warn("failed to parse form", "error", err)
		http.Error(w, appI18n.T(r.Context(), "InvalidForm"), http.StatusBadRequest)
		return false
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		slog.Warn("CSRF cookie missing")
		http.Error(w, "csrf token missing", http.StatusForbidden)
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		slog.Warn("CSRF form token missing")
		http.Error(w, "csrf token missing", http.StatusForbidden)
		return false
	}

	if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
		slog.Warn("CSRF token mismatch")
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return false
	}
	return true
}
