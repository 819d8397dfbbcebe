// Package fingerprint gathers the coarse request traits shown on the
// challenge page. Nothing here feeds the gate decision.
package fingerprint

import (
	"net/http"

	"subtranslate/site/internal/httputil"

	"golang.org/x/text/language"
)

const unknownUserAgent = "Unknown"

type Fingerprint struct {
	Address   string   `json:"ip"`
	UserAgent string   `json:"userAgent"`
	Languages []string `json:"languages"`
}

// Collect never fails; missing inputs produce empty or placeholder fields.
func Collect(r *http.Request) Fingerprint {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = unknownUserAgent
	}
	return Fingerprint{
		Address:   httputil.ClientIPFromHeaders(r),
		UserAgent: ua,
		Languages: Languages(r.Header.Get("Accept-Language")),
	}
}

// Languages returns the tags of an Accept-Language header ordered by
// quality, highest first. Zero-weight and wildcard entries are dropped.
func Languages(header string) []string {
	out := []string{}
	if header == "" {
		return out
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return out
	}
	for _, t := range tags {
		if t == language.Und {
			continue
		}
		out = append(out, t.String())
	}
	return out
}
