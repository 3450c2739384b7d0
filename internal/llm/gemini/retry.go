package gemini

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	baseRetryDelay = 2 * time.Second
	// Quota errors asking to wait longer than this are returned immediately.
	maxRetryDelay = 30 * time.Second
)

var (
	sleep = time.Sleep

	retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

func (g *Generator) withRetry(ctx context.Context, op string, call func() error) error {
	for attempt := 1; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt >= g.maxRetries {
			return err
		}

		g.logger.Warn("retrying gemini call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := waitFor(ctx, delay); err != nil {
			return err
		}
	}
}

// retryDelay reports whether err is transient and how long to wait before the
// next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	backoff := time.Duration(attempt) * baseRetryDelay
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if match := retryAfterPattern.FindStringSubmatch(apiErr.Message); match != nil {
			seconds, perr := strconv.ParseFloat(match[1], 64)
			if perr == nil {
				wait := time.Duration(seconds * float64(time.Second))
				if wait > maxRetryDelay {
					return 0, false
				}
				return wait, true
			}
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
