// Package gate decides whether a visitor has passed the Turnstile challenge
// and issues the cookie that records it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"subtranslate/site/internal/config"
	"subtranslate/site/internal/httputil"
	"subtranslate/site/internal/metrics"
	"subtranslate/site/internal/rate"
	"subtranslate/site/internal/token"
	"subtranslate/site/internal/turnstile"
	"subtranslate/site/internal/util"
)

const (
	ChallengePath = "/security"
	provider      = "turnstile"
	plainValue    = "true"
)

type TrustMode string

const (
	ModePlain  TrustMode = "plain"
	ModeSigned TrustMode = "signed"
)

// Verifier obtains a verdict for a challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*turnstile.Outcome, error)
}

// TrustState is rebuilt from the request cookie on every request.
type TrustState struct {
	Verified   bool
	VerifiedAt time.Time // zero in plain mode
}

type Submission struct {
	Token    string
	Redirect string
	RemoteIP string
}

type Result struct {
	Cookie    *http.Cookie
	ExpiresIn int64 // milliseconds
	Redirect  string
}

type Gate struct {
	Verifier   Verifier
	Keyring    *token.Keyring // required in signed mode
	Guard      *rate.Guard
	Mode       TrustMode
	Cookie     httputil.CookieSpec
	RetryAfter time.Duration
	IPHashKey  []byte
}

// New wires a gate from cfg. kr may be nil unless cfg selects signed mode.
func New(cfg *config.Config, v Verifier, kr *token.Keyring) (*Gate, error) {
	mode := TrustMode(cfg.Gate.TrustMode)
	switch mode {
	case ModePlain:
	case ModeSigned:
		if kr == nil {
			return nil, errors.New("signed trust mode requires a keyring")
		}
	default:
		return nil, fmt.Errorf("unknown trust mode %q", cfg.Gate.TrustMode)
	}
	if v == nil {
		return nil, errors.New("verifier required")
	}
	return &Gate{
		Verifier: v,
		Keyring:  kr,
		Guard:    rate.NewGuard(cfg.Gate.VerifyRPSLimit, 10),
		Mode:     mode,
		Cookie: httputil.CookieSpec{
			Name:     cfg.Gate.CookieName,
			MaxAge:   cfg.TrustTTL(),
			HTTPOnly: true,
			Secure:   cfg.Production(),
		},
		RetryAfter: time.Duration(cfg.Gate.RetryAfterSec) * time.Second,
		IPHashKey:  []byte(cfg.Logging.IPHashKey),
	}, nil
}

// Trust reads the trust cookie. Absent, malformed or expired cookies yield
// an unverified state.
func (g *Gate) Trust(r *http.Request) TrustState {
	c, err := r.Cookie(g.Cookie.Name)
	if err != nil || c.Value == "" {
		return TrustState{}
	}
	switch g.Mode {
	case ModeSigned:
		claims, err := g.Keyring.Verify(c.Value)
		if err != nil {
			httputil.GetLogger(r.Context()).Debug().Err(err).Msg("trust cookie rejected")
			return TrustState{}
		}
		st := TrustState{Verified: true}
		if claims.IssuedAt != nil {
			st.VerifiedAt = claims.IssuedAt.Time
		}
		return st
	default:
		return TrustState{Verified: c.Value == plainValue}
	}
}

// ChallengeURL is where an unverified visitor to original is sent.
func (g *Gate) ChallengeURL(original string) string {
	if original == "" {
		original = "/"
	}
	return ChallengePath + "?redirect=" + httputil.EncodeURIComponent(original)
}

// Require lets verified visitors through to next and redirects everyone
// else to the challenge page.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Trust(r).Verified {
			metrics.GateDecision.WithLabelValues("allow").Inc()
			next.ServeHTTP(w, r)
			return
		}
		metrics.GateDecision.WithLabelValues("challenge").Inc()
		http.Redirect(w, r, g.ChallengeURL(r.URL.RequestURI()), http.StatusFound)
	})
}

// Verify asks the authority about sub.Token and, on success, returns the
// trust cookie to set. Every call reaches the authority.
func (g *Gate) Verify(ctx context.Context, sub Submission) (*Result, error) {
	logger := httputil.GetLogger(ctx)
	ipHash := util.HMACIP(sub.RemoteIP, g.IPHashKey)

	if sub.Token == "" {
		metrics.VerifyOutcome.WithLabelValues("missing_token").Inc()
		return nil, ErrMissingToken
	}

	var guardKey string
	if sub.RemoteIP != "" {
		guardKey = "verify:" + sub.RemoteIP
	}
	if ok, rps := g.Guard.Allow(guardKey); !ok {
		metrics.VerifyOutcome.WithLabelValues("rate_limited").Inc()
		metrics.RateLimitHits.WithLabelValues("verify_turnstile").Inc()
		logger.Warn().
			Str("client_ip_hash", ipHash).
			Float64("rps", rps).
			Msg("verify rate limit exceeded")
		return nil, &RateLimitError{RetryAfter: g.RetryAfter, RPS: rps}
	}

	out, err := g.Verifier.Verify(ctx, sub.Token, sub.RemoteIP)
	if err != nil {
		metrics.VerifyOutcome.WithLabelValues("upstream_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if !out.Success {
		metrics.VerifyOutcome.WithLabelValues("rejected").Inc()
		logger.Warn().
			Str("client_ip_hash", ipHash).
			Strs("error_codes", out.ErrorCodes).
			Msg("challenge token rejected")
		return nil, &RejectedError{Codes: out.ErrorCodes}
	}

	value := plainValue
	if g.Mode == ModeSigned {
		value, err = g.Keyring.Sign(provider, g.Cookie.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("sign trust token: %w", err)
		}
	}

	metrics.VerifyOutcome.WithLabelValues("success").Inc()
	metrics.TrustIssued.Inc()
	logger.Info().
		Str("client_ip_hash", ipHash).
		Str("hostname", out.Hostname).
		Str("mode", string(g.Mode)).
		Msg("trust issued")

	return &Result{
		Cookie:    httputil.BuildCookie(g.Cookie, value),
		ExpiresIn: g.Cookie.MaxAge.Milliseconds(),
		Redirect:  httputil.SanitizeReturnURL(sub.Redirect),
	}, nil
}
