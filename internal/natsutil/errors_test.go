package natsutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/arloliu/cohort/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestIsConnectivityError(t *testing.T) {
	t.Run("nil is not a connectivity error", func(t *testing.T) {
		require.False(t, IsConnectivityError(nil))
	})

	t.Run("recognizes NATS sentinels", func(t *testing.T) {
		require.True(t, IsConnectivityError(nats.ErrTimeout))
		require.True(t, IsConnectivityError(fmt.Errorf("get: %w", nats.ErrConnectionClosed)))
		require.True(t, IsConnectivityError(types.ErrStoreUnavailable))
	})

	t.Run("recognizes dial failures by message", func(t *testing.T) {
		require.True(t, IsConnectivityError(errors.New("dial tcp 127.0.0.1:4222: connection refused")))
	})

	t.Run("ignores logical errors", func(t *testing.T) {
		require.False(t, IsConnectivityError(jetstream.ErrKeyNotFound))
	})
}

func TestIsRevisionConflict(t *testing.T) {
	t.Run("nil is not a conflict", func(t *testing.T) {
		require.False(t, IsRevisionConflict(nil))
	})

	t.Run("create race", func(t *testing.T) {
		require.True(t, IsRevisionConflict(fmt.Errorf("create: %w", jetstream.ErrKeyExists)))
	})

	t.Run("update race", func(t *testing.T) {
		err := &jetstream.APIError{Code: 400, ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence, Description: "wrong last sequence: 4"}
		require.True(t, IsRevisionConflict(fmt.Errorf("update: %w", err)))
	})

	t.Run("other API errors are not conflicts", func(t *testing.T) {
		err := &jetstream.APIError{Code: 404, ErrorCode: jetstream.JSErrCodeStreamNotFound, Description: "stream not found"}
		require.False(t, IsRevisionConflict(err))
	})
}
