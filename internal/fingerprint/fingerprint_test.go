package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguages(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{"empty", "", []string{}},
		{"single", "en-US", []string{"en-US"}},
		{"ordered", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7", []string{"tr-TR", "tr", "en-US", "en"}},
		{"reordered by quality", "en;q=0.5,de", []string{"de", "en"}},
		{"zero weight dropped", "fr,en;q=0", []string{"fr"}},
		{"malformed", "@@@;;q=banana", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Languages(tt.header))
		})
	}
}

func TestCollect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/security", nil)
	r.RemoteAddr = "198.51.100.23:40000"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("Accept-Language", "tr-TR,tr;q=0.9")

	fp := Collect(r)
	assert.Equal(t, "198.51.100.23", fp.Address)
	assert.Equal(t, "Mozilla/5.0", fp.UserAgent)
	assert.Equal(t, []string{"tr-TR", "tr"}, fp.Languages)
}

func TestCollect_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/security", nil)
	r.Header.Del("User-Agent")

	fp := Collect(r)
	assert.Equal(t, "Unknown", fp.UserAgent)
	assert.NotNil(t, fp.Languages)
	assert.Empty(t, fp.Languages)
}
