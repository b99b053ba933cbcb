package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "CBSE Answer Companion" {
		t.Errorf("T(AppTitle) = %q, want 'CBSE Answer Companion'", got)
	}

	got = T(ctx, "ManualEmpty")
	if got != "Please type a question first." {
		t.Errorf("T(ManualEmpty) = %q", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	got := T(ctx, "EvaluateButton")
	if got != "उत्तर जाँचें" {
		t.Errorf("T(EvaluateButton) = %q, want 'उत्तर जाँचें'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "MistakesCount", 1); got != "1 mistake found" {
		t.Errorf("Tp(MistakesCount, 1) = %q", got)
	}
	if got := Tp(ctx, "MistakesCount", 3); got != "3 mistakes found" {
		t.Errorf("Tp(MistakesCount, 3) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MarksAwarded", map[string]any{"Marks": "3.5", "Max": "4"})
	if got != "Marks: 3.5 / 4" {
		t.Errorf("Td(MarksAwarded) = %q, want 'Marks: 3.5 / 4'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocaleKeysMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	read := func(name string) map[string]any {
		data, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		var m map[string]any
		if err := jsonUnmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		return m
	}
	en, hi := read("en.json"), read("hi.json")
	for k := range en {
		if _, ok := hi[k]; !ok {
			t.Errorf("hi.json is missing %q", k)
		}
	}
	for k := range hi {
		if _, ok := en[k]; !ok {
			t.Errorf("en.json is missing %q", k)
		}
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name  string
		prefs []string
		want  language.Tag
	}{
		{"nothing", nil, language.English},
		{"hindi header", []string{"", "", "hi-IN,hi;q=0.9,en;q=0.8"}, language.Hindi},
		{"unknown language", []string{"fr-FR"}, language.English},
		{"explicit beats header", []string{"en", "hi"}, language.English},
		{"garbage skipped", []string{"@@@", "hi"}, language.Hindi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.prefs...)
			base, _ := got.Base()
			wantBase, _ := tt.want.Base()
			if base != wantBase {
				t.Errorf("Match(%v) = %v, want %v", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var gotTitle string
	h := Middleware(false, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = T(r.Context(), "AppTitle")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "hi")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if gotTitle != "सीबीएसई उत्तर साथी" {
		t.Errorf("title = %q", gotTitle)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("header negotiation must not set a cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "hi")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if gotTitle != "CBSE Answer Companion" {
		t.Errorf("title = %q", gotTitle)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != LangCookie {
		t.Fatalf("expected language cookie, got %v", cookies)
	}
	if cookies[0].Path != "/" {
		t.Errorf("cookie path = %q, want /", cookies[0].Path)
	}
}

func TestMiddlewareCookieUnderBasePath(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := Middleware(true, "/companion")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/companion/?lang=hi", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %v", cookies)
	}
	if cookies[0].Path != "/companion/" {
		t.Errorf("cookie path = %q, want /companion/", cookies[0].Path)
	}
	if !cookies[0].Secure {
		t.Error("cookie should be Secure when secure cookies are enabled")
	}
}
