package theme

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	cases := map[string]Preference{
		"":        System,
		"system":  System,
		"light":   Light,
		"dark":    Dark,
		"Dark":    System,
		"purple":  System,
		" light ": System,
	}
	for in, want := range cases {
		if got := Read(in); got != want {
			t.Errorf("Read(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	for _, v := range []string{"system", "light", "dark"} {
		p, err := Parse(v)
		if err != nil {
			t.Fatalf("Parse(%q): %v", v, err)
		}
		if string(p) != v {
			t.Errorf("Parse(%q) = %q", v, p)
		}
	}
	for _, v := range []string{"", "purple", "DARK", "auto"} {
		if _, err := Parse(v); !errors.Is(err, ErrInvalidTheme) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidTheme", v, err)
		}
	}
}

func TestStore_Cookie(t *testing.T) {
	s := NewStore("", 0, false)
	c := s.Cookie(Dark)

	if c.Name != "theme" || c.Value != "dark" || c.Path != "/" {
		t.Errorf("unexpected cookie %+v", c)
	}
	if c.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Errorf("expected 30 day max-age, got %d", c.MaxAge)
	}
	if c.HttpOnly {
		t.Error("theme cookie must be readable by scripts")
	}
	if c.Secure {
		t.Error("expected non-secure cookie outside production")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite=Lax, got %v", c.SameSite)
	}

	if !NewStore("theme", time.Hour, true).Cookie(Light).Secure {
		t.Error("expected secure cookie in production")
	}
}

func TestStore_FromRequest(t *testing.T) {
	s := NewStore("theme", time.Hour, false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := s.FromRequest(r); got != System {
		t.Errorf("no cookie: got %q", got)
	}

	r.AddCookie(&http.Cookie{Name: "theme", Value: "light"})
	if got := s.FromRequest(r); got != Light {
		t.Errorf("light cookie: got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "theme", Value: "neon"})
	if got := s.FromRequest(r); got != System {
		t.Errorf("bogus cookie: got %q", got)
	}
}
