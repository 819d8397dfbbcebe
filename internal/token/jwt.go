package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"subtranslate/site/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// TrustClaims is the payload of a signed trust cookie.
type TrustClaims struct {
	// Provider names the challenge that was passed, e.g. "turnstile".
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

type Keyring struct {
	alg        string
	keys       map[string][]byte // kid -> secret
	currentKID string
	issuer     string
	skew       time.Duration
	// maxTTL caps the lifetime Sign accepts.
	maxTTL time.Duration
}

var (
	ErrEmptyToken     = errors.New("empty token")
	ErrMissingKID     = errors.New("missing kid")
	ErrUnknownKID     = errors.New("unknown kid")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrTTLTooLarge    = errors.New("token lifetime exceeds max")
	ErrExpMissing     = errors.New("exp missing")
)

// NewKeyring decodes the base64url secrets in cfg. Only HMAC algorithms are
// accepted.
func NewKeyring(cfg config.TokenCfg) (*Keyring, error) {
	switch cfg.Alg {
	case "HS256", "HS384", "HS512":
	default:
		return nil, errors.New("unsupported alg (expected HS256/384/512)")
	}
	kr := &Keyring{
		alg:    cfg.Alg,
		keys:   make(map[string][]byte, len(cfg.Keys)),
		issuer: cfg.Issuer,
		skew:   time.Duration(cfg.SkewSec) * time.Second,
		maxTTL: 24 * time.Hour,
	}
	for kid, b64 := range cfg.Keys {
		dec, err := base64.RawURLEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		if len(dec) < 16 {
			return nil, errors.New("signing key too short; need >=16 bytes")
		}
		kr.keys[kid] = dec
	}
	if _, ok := kr.keys[cfg.CurrentKID]; !ok {
		return nil, errors.New("current_kid not found in keys")
	}
	kr.currentKID = cfg.CurrentKID
	if kr.issuer == "" {
		kr.issuer = "subtranslate"
	}
	return kr, nil
}

// Sign mints a trust token valid for ttl (clamped to the keyring max).
func (k *Keyring) Sign(provider string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > k.maxTTL {
		ttl = k.maxTTL
	}
	now := time.Now()
	claims := TrustClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    k.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.GetSigningMethod(k.alg), claims)
	t.Header["kid"] = k.currentKID
	return t.SignedString(k.keys[k.currentKID])
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
func (k *Keyring) Verify(tok string) (*TrustClaims, error) {
	if tok == "" {
		return nil, ErrEmptyToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{k.alg}),
		jwt.WithStrictDecoding(),
		jwt.WithLeeway(k.skew),
		jwt.WithExpirationRequired(),
	)
	var claims TrustClaims
	t, err := parser.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}
		secret, ok := k.keys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, errors.New("invalid token")
	}
	if subtle.ConstantTimeCompare([]byte(claims.Issuer), []byte(k.issuer)) != 1 {
		return nil, ErrIssuerMismatch
	}
	if claims.ExpiresAt == nil {
		return nil, ErrExpMissing
	}
	if claims.IssuedAt != nil && claims.ExpiresAt.Sub(claims.IssuedAt.Time) > k.maxTTL+k.skew {
		return nil, ErrTTLTooLarge
	}
	return &claims, nil
}
