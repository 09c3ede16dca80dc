package translate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the external translation provider. Implementations are expected
// to wrap throttling responses (HTTP 429 and friends) with RateLimited so the
// service can pause dispatch globally instead of failing chunk after chunk.
type Client interface {
	Translate(ctx context.Context, lang, text string) (string, error)
}

// Document is a unit of translatable content.
type Document struct {
	ID   string
	Body string
}

// RateLimited marks err as a provider throttling error, optionally carrying
// the provider's suggested wait.
//
// Example:
//
//	return "", translate.RateLimited(fmt.Errorf("status 429"), retryAfter)
func RateLimited(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return rateLimitedError{err: err, after: after}
}

// RateLimitedError is implemented by errors that signal provider throttling.
type RateLimitedError interface {
	error
	RetryAfter() time.Duration
}

// IsRateLimited reports whether err signals throttling, and the suggested
// wait (0 when the provider gave no hint).
func IsRateLimited(err error) (time.Duration, bool) {
	var rl RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter(), true
	}
	return 0, false
}

type rateLimitedError struct {
	err   error
	after time.Duration
}

func (e rateLimitedError) Error() string             { return fmt.Sprintf("rate limited: %v", e.err) }
func (e rateLimitedError) Unwrap() error             { return e.err }
func (e rateLimitedError) RetryAfter() time.Duration { return e.after }
