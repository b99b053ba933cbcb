package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/companion/internal/document"
	"github.com/pavelanni/companion/internal/evaluation"
	appI18n "github.com/pavelanni/companion/internal/i18n"
	"github.com/pavelanni/companion/internal/llm"
	"github.com/pavelanni/companion/internal/llm/prompts"
	"github.com/pavelanni/companion/internal/model"
	"github.com/pavelanni/companion/internal/store"
)

type testApp struct {
	srv    *httptest.Server
	client *http.Client
	mock   *llm.MockProvider
	base   string
}

func newTestApp(t *testing.T, cfg model.AppConfig) *testApp {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))

	s, err := store.New(store.MemoryDSN, 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mock := llm.NewMockProvider()
	svc := evaluation.NewService(document.NewNormalizer(document.FitzRenderer{}), llm.NewClient(mock, 0), prompts.PromptStrict)

	h, err := New(s, svc, cfg)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	app := &testApp{srv: srv, mock: mock, base: NormalizeBasePath(cfg.BasePath)}
	app.client = app.newClient(t)
	return app
}

func (a *testApp) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (a *testApp) url(p string) string {
	return a.srv.URL + a.base + p
}

func (a *testApp) get(t *testing.T, c *http.Client, p string) (int, string) {
	t.Helper()
	resp, err := c.Get(a.url(p))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// csrf loads the page if needed and returns the current CSRF cookie.
func (a *testApp) csrf(t *testing.T, c *http.Client) string {
	t.Helper()
	u, _ := url.Parse(a.url("/"))
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	a.get(t, c, "/")
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	t.Fatal("no csrf cookie")
	return ""
}

func (a *testApp) postForm(t *testing.T, c *http.Client, p string, form url.Values) (int, string) {
	t.Helper()
	form.Set("csrf_token", a.csrf(t, c))
	resp, err := c.PostForm(a.url(p), form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (a *testApp) postUpload(t *testing.T, c *http.Client, fields map[string]string, fileName string, file []byte) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("csrf_token", a.csrf(t, c)))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("answer", fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := c.Post(a.url("/evaluate"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		img.Set(x, 4, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIndex(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	status, body := app.get(t, app.client, "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Step 1: Choose a question")
	assert.Contains(t, body, string(model.TopicDatabases))
	assert.NotContains(t, body, "Step 2: Upload your answer")
}

func TestManualQuestion(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	status, body := app.postForm(t, app.client, "/question/manual", url.Values{"question": {"   "}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "Please type a question first.")
	assert.NotContains(t, body, "Step 2: Upload your answer")

	status, body = app.postForm(t, app.client, "/question/manual", url.Values{"question": {"  Define a <b>primary key</b>.  "}})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Step 2: Upload your answer")
	assert.Contains(t, body, "Define a &lt;b&gt;primary key&lt;/b&gt;.")
	assert.Zero(t, app.mock.CallCount())
}

func TestGenerateQuestion(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	app.mock.AddResponse(llm.MockResponse{Text: "Explain the OSI model with a diagram."})

	status, body := app.postForm(t, app.client, "/question/generate", url.Values{
		"topic":      {string(model.TopicNetworks)},
		"difficulty": {"hard"},
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Explain the OSI model with a diagram.")
	req, ok := app.mock.LastCall()
	require.True(t, ok)
	assert.Contains(t, req.Prompt, string(model.TopicNetworks))
	assert.Contains(t, req.Prompt, "Hard")
}

func TestGenerateQuestionFailure(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	status, body := app.postForm(t, app.client, "/question/generate", url.Values{
		"topic":      {string(model.TopicNetworks)},
		"difficulty": {"Easy"},
	})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body, "Could not generate a question")
	assert.NotContains(t, body, "Step 2: Upload your answer")
}

func TestGenerateQuestionTruncated(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	app.mock.AddResponse(llm.MockResponse{Text: "Explain the difference between DDL and", StopReason: "max_tokens"})

	status, body := app.postForm(t, app.client, "/question/generate", url.Values{
		"topic":      {string(model.TopicDatabases)},
		"difficulty": {"Easy"},
	})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body, "Could not generate a question")
	assert.NotContains(t, body, "Step 2: Upload your answer")
}

func TestGenerateQuestionInvalidTopic(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	status, _ := app.postForm(t, app.client, "/question/generate", url.Values{
		"topic":      {"Astrology"},
		"difficulty": {"Easy"},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Zero(t, app.mock.CallCount())
}

func TestEvaluate(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"What is RAM?"}})
	app.mock.AddResponse(llm.MockResponse{
		Text: `{"marks_awarded":3,"evaluation_summary":"Mostly right","mistakes":["No example of volatility"],"model_answer":"RAM is volatile memory."}`,
	})

	status, body := app.postUpload(t, app.client, map[string]string{"max_marks": "4", "rubric": ""}, "answer.png", testPNG(t))

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Marks: 3 / 4")
	assert.Contains(t, body, `value="75"`)
	assert.Contains(t, body, "Mostly right")
	assert.Contains(t, body, "No example of volatility")
	assert.Contains(t, body, "1 mistake found")
	assert.Contains(t, body, "RAM is volatile memory.")
	assert.Contains(t, body, "data:image/png;base64,")

	req, ok := app.mock.LastCall()
	require.True(t, ok)
	assert.Contains(t, req.Prompt, "What is RAM?")
	assert.Contains(t, req.Prompt, model.DefaultRubric)
	require.Len(t, req.Images, 1)
}

func TestEvaluateShowsModelError(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"What is RAM?"}})
	app.mock.AddResponse(llm.MockResponse{Text: "{not json"})

	status, body := app.postUpload(t, app.client, map[string]string{"max_marks": "4"}, "answer.png", testPNG(t))

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "The answer could not be evaluated.")
	assert.Contains(t, body, "could not read AI response")
	assert.Contains(t, body, "<pre>{not json</pre>")
}

func TestEvaluateRejects(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	status, body := app.postUpload(t, app.client, map[string]string{"max_marks": "4"}, "answer.png", testPNG(t))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Choose a question before uploading an answer.")

	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"Q"}})

	for _, marks := range []string{"0", "-1", "abc", ""} {
		status, body = app.postUpload(t, app.client, map[string]string{"max_marks": marks}, "answer.png", testPNG(t))
		assert.Equal(t, http.StatusBadRequest, status, marks)
		assert.Contains(t, body, "Maximum marks must be a number greater than zero.")
	}

	status, body = app.postUpload(t, app.client, map[string]string{"max_marks": "4"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Please choose a file to upload.")

	status, body = app.postUpload(t, app.client, map[string]string{"max_marks": "4"}, "notes.txt", []byte("plain text answer"))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "could not be read as an image or PDF")

	assert.Zero(t, app.mock.CallCount())
}

func TestEvaluateTooLarge(t *testing.T) {
	app := newTestApp(t, model.AppConfig{MaxUploadBytes: 1024})
	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"Q"}})

	status, body := app.postUpload(t, app.client, map[string]string{"max_marks": "4"}, "big.png", bytes.Repeat([]byte{0}, 4096))

	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Contains(t, body, "The file is larger than")
	assert.Zero(t, app.mock.CallCount())
}

func TestCSRFRequired(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	app.get(t, app.client, "/")

	resp, err := app.client.PostForm(app.url("/question/manual"), url.Values{"question": {"Q"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.client.PostForm(app.url("/question/manual"), url.Values{"question": {"Q"}, "csrf_token": {"forged"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestResetAndIsolation(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})
	other := app.newClient(t)

	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"Only mine"}})

	_, body := app.get(t, other, "/")
	assert.NotContains(t, body, "Only mine")

	status, body := app.postForm(t, app.client, "/session/reset", url.Values{})
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "Only mine")
	assert.NotContains(t, body, "Step 2: Upload your answer")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	resp, err := http.Get(app.url("/healthz"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mock", body["model"])
}

func TestBasePath(t *testing.T) {
	app := newTestApp(t, model.AppConfig{BasePath: "companion/"})

	status, body := app.get(t, app.client, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `action="/companion/question/generate"`)

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := noRedirect.Get(app.srv.URL + "/companion")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/companion/", resp.Header.Get("Location"))

	app.postForm(t, app.client, "/question/manual", url.Values{"question": {"Under a prefix"}})
	_, body = app.get(t, app.client, "/")
	assert.Contains(t, body, "Under a prefix")

	resp, err = noRedirect.Get(app.url("/?lang=hi"))
	require.NoError(t, err)
	resp.Body.Close()
	var langCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == appI18n.LangCookie {
			langCookie = c
		}
	}
	require.NotNil(t, langCookie)
	assert.Equal(t, "/companion/", langCookie.Path)
}

func TestHindiPage(t *testing.T) {
	app := newTestApp(t, model.AppConfig{})

	req, err := http.NewRequest(http.MethodGet, app.url("/"), nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "hi-IN,hi;q=0.9")
	resp, err := app.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `lang="hi"`)
	assert.Contains(t, string(body), "प्रश्न बनाएं")
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":          "",
		"/":         "",
		"app":       "/app",
		"/app/":     "/app",
		" /a/b/ ":   "/a/b",
	} {
		assert.Equal(t, want, NormalizeBasePath(in), in)
	}
	assert.True(t, strings.HasPrefix(NormalizeBasePath("x"), "/"))
}
