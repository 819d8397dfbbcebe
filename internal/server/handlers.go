package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/httputil"
	"subtranslate/site/internal/metrics"
	"subtranslate/site/internal/render"
	"subtranslate/site/internal/theme"
)

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	p := s.page(r, "SubTranslate | Otomatik altyazi cevirici",
		"SubTranslate ile altyazilarinizi saniyeler icinde farkli dillere cevirin ve cam efektli arayuzle calisma akisinizi hizlandirin.")
	p.Features = featureHighlights
	p.Steps = workflowSteps
	s.renderPage(w, r, http.StatusOK, render.PageHome, p)
}

func (s *Server) security(w http.ResponseWriter, r *http.Request) {
	l := LocalsFrom(r.Context())
	p := s.page(r, "Guvenlik dogrulamasi",
		"Turnstile dogrulamasi ile SubTranslate oturumunuzu guvende tutun.")
	p.SiteKey = l.SiteKey
	p.Redirect = httputil.SanitizeReturnURL(r.URL.Query().Get("redirect"))
	p.Fingerprint = l.Fingerprint
	p.SecurityChecks = securityChecks(l, s.cfg.TrustTTL())
	s.renderPage(w, r, http.StatusOK, render.PageSecurity, p)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	p := s.page(r, "Sayfa bulunamadi",
		"Istediginiz sayfa tasinmis ya da hic var olmamis olabilir.")
	s.renderPage(w, r, http.StatusNotFound, render.PageNotFound, p)
}

func (s *Server) updateTheme(w http.ResponseWriter, r *http.Request) {
	var raw string
	fields, err := readFields(w, r, "theme")
	if err == nil {
		raw = fields["theme"]
	}
	pref, err := theme.Parse(raw)
	if err != nil {
		metrics.ThemeUpdates.WithLabelValues("invalid").Inc()
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.themes.Cookie(pref))
	metrics.ThemeUpdates.WithLabelValues(pref.String()).Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"theme":   pref,
	})
}

func (s *Server) verifyTurnstile(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "token", "cf-turnstile-response", "redirect")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, ok := fields["token"]
	if !ok {
		tok = fields["cf-turnstile-response"]
	}
	res, err := s.gate.Verify(r.Context(), gate.Submission{
		Token:    tok,
		Redirect: fields["redirect"],
		RemoteIP: LocalsFrom(r.Context()).Fingerprint.Address,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, res.Cookie)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"expiresIn": res.ExpiresIn,
		"redirect":  res.Redirect,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
	}
	if s.breaker != nil {
		body["turnstile_breaker"] = s.breaker.State().String()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// readFields pulls the named string fields from a JSON or form body. Keys
// that are absent, or not strings in JSON, are left out of the result.
func readFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	out := make(map[string]string, len(names))
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		for _, name := range names {
			var v string
			rawVal, ok := body[name]
			if ok && string(rawVal) != "null" && json.Unmarshal(rawVal, &v) == nil {
				out[name] = v
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	for _, name := range names {
		if vs, ok := r.PostForm[name]; ok && len(vs) > 0 {
			out[name] = vs[0]
		}
	}
	return out, nil
}
