// Package turnstile talks to the Cloudflare Turnstile siteverify endpoint.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subtranslate/site/internal/circuitbreaker"
	"subtranslate/site/internal/metrics"
)

// maxResponseBytes caps the siteverify body we are willing to decode.
const maxResponseBytes = 64 * 1024

// ErrBadStatus is wrapped when siteverify answers with a non-2xx status.
var ErrBadStatus = errors.New("siteverify returned non-2xx status")

// Outcome is the decoded siteverify response.
type Outcome struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Action      string   `json:"action,omitempty"`
	CData       string   `json:"cdata,omitempty"`
}

type Client struct {
	VerifyURL  string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    *circuitbreaker.CircuitBreaker
}

// NewClient builds a siteverify client. breaker may be nil.
func NewClient(verifyURL, secret string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		VerifyURL: verifyURL,
		Secret:    secret,
		Timeout:   timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Breaker: breaker,
	}
}

// Verify submits token (and the visitor's IP when known) for validation.
// A returned error means no verdict could be obtained; a rejected token is
// reported through Outcome.Success instead.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (*Outcome, error) {
	if c.Breaker != nil {
		release, err := c.Breaker.Allow()
		if err != nil {
			return nil, err
		}
		if release {
			defer c.Breaker.Release()
		}
	}

	start := time.Now()
	out, err := c.do(ctx, token, remoteIP)
	metrics.VerifyDuration.Observe(time.Since(start).Seconds())

	if c.Breaker != nil {
		if err != nil {
			c.Breaker.RecordFailure()
		} else {
			c.Breaker.RecordSuccess()
		}
	}
	return out, err
}

func (c *Client) do(ctx context.Context, token, remoteIP string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", c.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var out Outcome
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &out, nil
}
