package server

import (
	"context"
	"net/http"

	"subtranslate/site/internal/fingerprint"
	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/theme"

	"github.com/google/uuid"
)

// Locals is the per-request view state shared by every handler and page.
type Locals struct {
	Theme       theme.Preference
	Trust       gate.TrustState
	Fingerprint fingerprint.Fingerprint
	RayID       string
	SiteKey     string
	Production  bool
}

type localsKey struct{}

func WithLocals(ctx context.Context, l *Locals) context.Context {
	return context.WithValue(ctx, localsKey{}, l)
}

// LocalsFrom returns the request locals, or a system-theme placeholder when
// the middleware has not run (e.g. a panic before it).
func LocalsFrom(ctx context.Context) *Locals {
	if l, ok := ctx.Value(localsKey{}).(*Locals); ok {
		return l
	}
	return &Locals{Theme: theme.System}
}

func (s *Server) withLocals(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := &Locals{
			Theme:       s.themes.FromRequest(r),
			Trust:       s.gate.Trust(r),
			Fingerprint: fingerprint.Collect(r),
			RayID:       uuid.NewString(),
			SiteKey:     s.cfg.Turnstile.SiteKey,
			Production:  s.cfg.Production(),
		}
		next.ServeHTTP(w, r.WithContext(WithLocals(r.Context(), l)))
	})
}
