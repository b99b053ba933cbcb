package i18n

import (
	"net/http"
	"strings"
	"time"
)

// LangCookie remembers an explicit language choice.
const LangCookie = "companion_lang"

// Middleware picks a language per request and injects its localizer. An
// explicit ?lang= choice wins and is remembered in a cookie, then the cookie,
// then Accept-Language, then the fallback given to Init. The cookie is
// scoped to basePath, which is "" or a prefix such as "/app".
func Middleware(secureCookies bool, basePath string) func(http.Handler) http.Handler {
	cookiePath := strings.TrimRight(basePath, "/") + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieLang string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookieLang = c.Value
			}
			queryLang := r.URL.Query().Get("lang")

			tag := Match(queryLang, cookieLang, r.Header.Get("Accept-Language"))
			if queryLang != "" {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    tag.String(),
					Path:     cookiePath,
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithLang(r.Context(), tag)
			ctx = WithLocalizer(ctx, NewLocalizer(tag.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
