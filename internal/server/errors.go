package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/httputil"
	"subtranslate/site/internal/render"
	"subtranslate/site/internal/theme"

	"github.com/rs/zerolog"
)

var errBadRequest = errors.New("malformed request body")

const (
	msgMissingToken = "Turnstile yaniti alinmadi."
	msgRejected     = "Turnstile dogrulamasi basarisiz."
	msgInvalidTheme = "Gecersiz tema secimi."
	msgBadRequest   = "Gecersiz istek."
	msgRateLimited  = "Cok fazla deneme yapildi. Lutfen biraz sonra tekrar deneyin."
	msgUpstream     = "Cloudflare Turnstile dogrulamasinda beklenmeyen bir hata olustu."
	msgInternal     = "Beklenmeyen bir hata olustu."
)

func mapDomainError(err error) (int, string, zerolog.Level) {
	switch {
	case errors.Is(err, gate.ErrMissingToken):
		return http.StatusBadRequest, msgMissingToken, zerolog.DebugLevel
	case errors.Is(err, theme.ErrInvalidTheme):
		return http.StatusBadRequest, msgInvalidTheme, zerolog.DebugLevel
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, msgBadRequest, zerolog.DebugLevel
	case errors.Is(err, gate.ErrChallengeRejected):
		return http.StatusBadRequest, msgRejected, zerolog.WarnLevel
	case errors.Is(err, gate.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited, zerolog.WarnLevel
	case errors.Is(err, gate.ErrUpstream):
		return http.StatusInternalServerError, msgUpstream, zerolog.ErrorLevel
	default:
		return http.StatusInternalServerError, msgInternal, zerolog.ErrorLevel
	}
}

// writeError renders err as the JSON failure envelope used by the API
// routes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, level := mapDomainError(err)
	httputil.GetLogger(r.Context()).WithLevel(level).Err(err).Int("status", status).Msg("request failed")

	body := map[string]any{
		"success": false,
		"message": msg,
	}

	var rej *gate.RejectedError
	if errors.As(err, &rej) {
		codes := rej.Codes
		if codes == nil {
			codes = []string{}
		}
		body["errors"] = codes
	}
	var rl *gate.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
	}

	httputil.WriteJSON(w, status, body)
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/verify-turnstile"
}

// internalError answers 500 as JSON on API routes and as the error page
// everywhere else.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": msgInternal,
		})
		return
	}
	page := s.page(r, "Beklenmeyen bir hata olustu",
		"Teknik ekibimiz bilgilendirildi. Lutfen kisa bir sure sonra tekrar deneyin.")
	page.RequestID = httputil.GetRequestID(r.Context())
	s.renderPage(w, r, http.StatusInternalServerError, render.PageError, page)
}
