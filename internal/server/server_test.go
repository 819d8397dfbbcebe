package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"subtranslate/site/internal/config"
	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/render"
	"subtranslate/site/internal/theme"
	"subtranslate/site/internal/turnstile"
	"subtranslate/site/web"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authority struct {
	calls    atomic.Int32
	status   int
	body     string
	remoteIP atomic.Value
}

func (a *authority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)
	_ = r.ParseForm()
	a.remoteIP.Store(r.PostForm.Get("remoteip"))
	if a.status != 0 && a.status != http.StatusOK {
		w.WriteHeader(a.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(a.body))
}

func newTestServer(t *testing.T, auth *authority, mutate func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	for _, k := range []string{"APP_ENV", "TURNSTILE_SITE_KEY", "TURNSTILE_SECRET_KEY", "LISTEN_ADDR"} {
		t.Setenv(k, "")
	}

	upstream := httptest.NewServer(auth)
	t.Cleanup(upstream.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Turnstile.VerifyURL = upstream.URL
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	client := turnstile.NewClient(cfg.Turnstile.VerifyURL, cfg.Turnstile.SecretKey, cfg.VerifyTimeout(), nil)
	g, err := gate.New(cfg, client, nil)
	require.NoError(t, err)

	rd, err := render.New(web.FS)
	require.NoError(t, err)
	static, err := fs.Sub(web.FS, "static")
	require.NoError(t, err)

	s := New(Deps{
		Config:   cfg,
		Gate:     g,
		Themes:   theme.NewStore(cfg.Theme.CookieName, cfg.ThemeMaxAge(), cfg.Production()),
		Renderer: rd,
		Static:   static,
		Logger:   zerolog.Nop(),
	})
	return s, s.Routes()
}

func okAuthority() *authority {
	return &authority{body: `{"success":true,"hostname":"localhost"}`}
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHome_RedirectsWithoutTrust(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/security?redirect=%2F", w.Header().Get("Location"))

	w = do(h, httptest.NewRequest(http.MethodGet, "/?ref=mail", nil))
	assert.Equal(t, "/security?redirect=%2F%3Fref%3Dmail", w.Header().Get("Location"))
}

func TestHome_RendersWhenVerified(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "turnstile_verified", Value: "true"})
	w := do(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Gercek zamanli ceviri")
	assert.Contains(t, w.Body.String(), "Kontrol et ve yayinla")
}

func TestSecurityPage(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	r := httptest.NewRequest(http.MethodGet, "/security?redirect=%2Fpricing", nil)
	r.Header.Set("User-Agent", "TestAgent/1.0")
	r.Header.Set("Accept-Language", "tr-TR,tr;q=0.9,en;q=0.5")
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	w := do(h, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="redirect" value="/pricing"`)
	assert.Contains(t, body, `data-sitekey="`+config.TestSiteKey+`"`)
	assert.Contains(t, body, `data-theme="dark"`)
	assert.Contains(t, body, "TestAgent/1.0")
	assert.Contains(t, body, "tr-TR, tr, en")
	assert.Contains(t, body, "Bekliyor")
	assert.Contains(t, body, "Ray ID")
}

func TestSecurityPage_UnsafeRedirect(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	for _, raw := range []string{"https%3A%2F%2Fevil.example", "%2F%2Fevil.example", "evil"} {
		w := do(h, httptest.NewRequest(http.MethodGet, "/security?redirect="+raw, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `name="redirect" value="/"`, raw)
	}
}

func TestSecurityPage_Verified(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	r := httptest.NewRequest(http.MethodGet, "/security", nil)
	r.AddCookie(&http.Cookie{Name: "turnstile_verified", Value: "true"})
	w := do(h, r)
	assert.Contains(t, w.Body.String(), "Gecildi")
	assert.Contains(t, w.Body.String(), "son 1 saat icinde")
}

func TestVerify_MissingToken(t *testing.T) {
	auth := okAuthority()
	_, h := newTestServer(t, auth, nil)

	w := do(h, postJSON("/verify-turnstile", `{"redirect":"/x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgMissingToken, body["message"])
	assert.Nil(t, findCookie(w, "turnstile_verified"))
	assert.Zero(t, auth.calls.Load())
}

func TestVerify_Success(t *testing.T) {
	auth := okAuthority()
	_, h := newTestServer(t, auth, nil)

	w := do(h, postJSON("/verify-turnstile", `{"token":"XXXX.DUMMY.TOKEN","redirect":"%2Fpricing"}`))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3600000), body["expiresIn"])
	assert.Equal(t, "/pricing", body["redirect"])
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Equal(t, "192.0.2.1", auth.remoteIP.Load())

	c := findCookie(w, "turnstile_verified")
	require.NotNil(t, c)
	assert.Equal(t, "true", c.Value)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestVerify_FormFieldAndUnsafeRedirect(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, postForm("/verify-turnstile", url.Values{
		"cf-turnstile-response": {"tok"},
		"redirect":              {"https://evil.example"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/", decode(t, w)["redirect"])
	assert.NotNil(t, findCookie(w, "turnstile_verified"))
}

func TestVerify_Rejected(t *testing.T) {
	auth := &authority{body: `{"success":false,"error-codes":["timeout-or-duplicate"]}`}
	_, h := newTestServer(t, auth, nil)

	w := do(h, postJSON("/verify-turnstile", `{"token":"used"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, msgRejected, body["message"])
	assert.Equal(t, []any{"timeout-or-duplicate"}, body["errors"])
	assert.Nil(t, findCookie(w, "turnstile_verified"))
}

func TestVerify_RejectedWithoutCodes(t *testing.T) {
	_, h := newTestServer(t, &authority{body: `{"success":false}`}, nil)

	w := do(h, postJSON("/verify-turnstile", `{"token":"bad"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["errors"])
}

func TestVerify_AuthorityFailure(t *testing.T) {
	_, h := newTestServer(t, &authority{status: http.StatusServiceUnavailable}, nil)

	w := do(h, postJSON("/verify-turnstile", `{"token":"tok"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgUpstream, body["message"])
	assert.Nil(t, findCookie(w, "turnstile_verified"))
}

func TestVerify_MalformedJSON(t *testing.T) {
	auth := okAuthority()
	_, h := newTestServer(t, auth, nil)

	w := do(h, postJSON("/verify-turnstile", `{"token":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, auth.calls.Load())
}

func TestVerify_RateLimited(t *testing.T) {
	auth := okAuthority()
	_, h := newTestServer(t, auth, func(c *config.Config) { c.Gate.VerifyRPSLimit = 0.5 })

	w := do(h, postJSON("/verify-turnstile", `{"token":"tok"}`))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	assert.Zero(t, auth.calls.Load())
}

func TestTheme(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, postJSON("/api/theme", `{"theme":"purple"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgInvalidTheme, decode(t, w)["message"])
	assert.Nil(t, findCookie(w, "theme"))

	w = do(h, postJSON("/api/theme", `{"theme":"dark"}`))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "dark", body["theme"])

	c := findCookie(w, "theme")
	require.NotNil(t, c)
	assert.Equal(t, "dark", c.Value)
	assert.Equal(t, 30*24*3600, c.MaxAge)
	assert.False(t, c.HttpOnly)
}

func TestTheme_FormAndMissing(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, postForm("/api/theme", url.Values{"theme": {"light"}}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "light", findCookie(w, "theme").Value)

	w = do(h, postJSON("/api/theme", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, postJSON("/api/theme", `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFound(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/nope", nil),
		httptest.NewRequest(http.MethodGet, "/api/theme", nil),
		httptest.NewRequest(http.MethodGet, "/static/", nil),
		httptest.NewRequest(http.MethodGet, "/static/scripts/missing.js", nil),
	} {
		w := do(h, r)
		assert.Equal(t, http.StatusNotFound, w.Code, r.URL.Path)
		assert.Contains(t, w.Body.String(), "Sayfa bulunamadi", r.URL.Path)
	}
}

func TestStatic(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, httptest.NewRequest(http.MethodGet, "/static/scripts/theme.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/theme")
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
}

func TestHealthAndHeaders(t *testing.T) {
	_, h := newTestServer(t, okAuthority(), nil)

	w := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "challenges.cloudflare.com")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecoverer(t *testing.T) {
	s, _ := newTestServer(t, okAuthority(), nil)
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	s.recoverer(boom).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Beklenmeyen bir hata olustu")
	assert.NotContains(t, w.Body.String(), "boom")

	w = httptest.NewRecorder()
	s.recoverer(boom).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/theme", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}
