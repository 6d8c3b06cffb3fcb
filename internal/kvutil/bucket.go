// Package kvutil provides utilities for working with NATS JetStream KeyValue stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/cohort/types"
	"github.com/nats-io/nats.go/jetstream"
)

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// This function handles race conditions when several engine processes try to
// create the same bucket concurrently. It will retry with exponential backoff if
// the creation fails due to transient errors.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of retry attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "cohort",
//	    History: 1,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			if err := Backoff(ctx, attempt, 10*time.Millisecond); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}

// Backoff sleeps base*2^attempt or until ctx is done.
//
// Parameters:
//   - ctx: Context for cancellation
//   - attempt: Zero-based attempt number (capped at 10)
//   - base: Delay of the first attempt
//
// Returns:
//   - error: ctx.Err() if the context ended first
func Backoff(ctx context.Context, attempt int, base time.Duration) error {
	if attempt > 10 {
		attempt = 10
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(1<<uint(attempt)) * base //nolint:gosec // attempt is clamped to [0,10]

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PathToKey converts a slash-separated node path into a KV key.
//
// "/metrics/scenario_counts" becomes "metrics.scenario_counts". Segments must be
// non-empty and may only contain characters JetStream accepts in a key token.
//
// Returns:
//   - string: The KV key
//   - error: types.ErrInvalidPath for empty or malformed paths
func PathToKey(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidPath, path)
	}

	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if seg == "" || !validToken(seg) {
			return "", fmt.Errorf("%w: %q", types.ErrInvalidPath, path)
		}
	}

	return strings.Join(segments, "."), nil
}

// KeyToPath is the inverse of PathToKey.
func KeyToPath(key string) string {
	return "/" + strings.ReplaceAll(key, ".", "/")
}

func validToken(seg string) bool {
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return false
		}
	}

	return true
}
