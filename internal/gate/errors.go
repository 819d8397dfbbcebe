package gate

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingToken      = errors.New("verification token is missing")
	ErrChallengeRejected = errors.New("verification failed")
	ErrUpstream          = errors.New("verification service unavailable")
	ErrRateLimited       = errors.New("too many verification attempts")
)

// RejectedError carries the error codes returned by the authority for a
// token it refused.
type RejectedError struct {
	Codes []string
}

func (e *RejectedError) Error() string {
	if len(e.Codes) == 0 {
		return ErrChallengeRejected.Error()
	}
	return ErrChallengeRejected.Error() + ": " + strings.Join(e.Codes, ", ")
}

func (e *RejectedError) Is(target error) bool { return target == ErrChallengeRejected }

// RateLimitError reports how long the caller should wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
	RPS        float64
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
