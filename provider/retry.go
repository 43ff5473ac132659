package provider

import (
	"context"
	"errors"
	"time"
)

// Retry calls fn up to attempts times, sleeping attempt*backoff between
// tries. Provider errors that are not Temporary stop the loop at once.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		var pe *Error
		if errors.As(err, &pe) && !pe.Temporary() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
