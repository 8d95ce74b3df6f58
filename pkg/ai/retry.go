package ai

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping base*2^n between failures.
// The last error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(base << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}
