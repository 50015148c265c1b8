package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds how long Connect waits for the cluster to answer pings.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetry waits roughly two minutes before giving up.
var DefaultRetry = RetryPolicy{Attempts: 10, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// Connect creates a client and pings the cluster with exponential backoff.
func Connect(ctx context.Context, opts Options, policy RetryPolicy, log *slog.Logger) (*Client, error) {
	client, err := New(opts, log)
	if err != nil {
		return nil, err
	}
	log = client.log

	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.InitialDelay

	var lastErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return client, nil
		}
		if i == attempts-1 {
			break
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("connect elasticsearch: %w", errors.Join(ctx.Err(), lastErr))
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", attempts, lastErr)
}
