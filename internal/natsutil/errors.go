// Package natsutil classifies NATS and JetStream errors for the KV store.
package natsutil

import (
	"errors"
	"strings"

	"github.com/arloliu/cohort/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
// Used to wrap backend failures with types.ErrStoreUnavailable.
//
// Kept in internal/natsutil to avoid importing NATS dependencies in types/ package.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrStoreUnavailable) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsRevisionConflict reports whether a KV write lost an optimistic revision check.
//
// kv.Create reports ErrKeyExists when another writer created the key first;
// kv.Update reports a JetStream API error with code 10071 (wrong last sequence)
// when the key moved past the expected revision.
func IsRevisionConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return strings.Contains(err.Error(), "wrong last sequence")
}
