package platform

import (
	"context"
	"time"
)

// sleepBackoff waits out one exponential backoff step, honoring the context.
func sleepBackoff(ctx context.Context, base time.Duration, retries int) error {
	delay := base << retries
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return classifyContextErr(ctx, ctx.Err())
	case <-timer.C:
		return nil
	}
}
