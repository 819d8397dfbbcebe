// Package theme persists the visitor's color scheme preference in a
// script-readable cookie.
package theme

import (
	"errors"
	"net/http"
	"time"

	"subtranslate/site/internal/httputil"
)

type Preference string

const (
	System Preference = "system"
	Light  Preference = "light"
	Dark   Preference = "dark"
)

var ErrInvalidTheme = errors.New("invalid theme")

// Valid reports whether p is one of the three accepted preferences.
func (p Preference) Valid() bool {
	switch p {
	case System, Light, Dark:
		return true
	}
	return false
}

func (p Preference) String() string { return string(p) }

// Read maps a raw cookie value to a preference. Unknown or missing values
// fall back to System.
func Read(cookieValue string) Preference {
	p := Preference(cookieValue)
	if p.Valid() {
		return p
	}
	return System
}

// Parse accepts exactly "system", "light" or "dark".
func Parse(v string) (Preference, error) {
	p := Preference(v)
	if !p.Valid() {
		return "", ErrInvalidTheme
	}
	return p, nil
}

type Store struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

func NewStore(cookieName string, maxAge time.Duration, secure bool) *Store {
	if cookieName == "" {
		cookieName = "theme"
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &Store{CookieName: cookieName, MaxAge: maxAge, Secure: secure}
}

// FromRequest returns the preference carried by r's cookie.
func (s *Store) FromRequest(r *http.Request) Preference {
	c, err := r.Cookie(s.CookieName)
	if err != nil {
		return System
	}
	return Read(c.Value)
}

// Cookie builds the Set-Cookie for p. It is left readable by scripts so the
// page can apply the theme before first paint.
func (s *Store) Cookie(p Preference) *http.Cookie {
	return httputil.BuildCookie(httputil.CookieSpec{
		Name:     s.CookieName,
		MaxAge:   s.MaxAge,
		HTTPOnly: false,
		Secure:   s.Secure,
	}, string(p))
}
