// Package node is the typed boundary between domain code and types.NodeStore.
//
// Every path holds exactly one JSON schema. Values are decoded strictly
// (unknown fields and trailing data are rejected) and, when the decoded type
// has a Validate method, validated before any caller sees them. A value that
// fails either check surfaces as types.ErrSchemaViolation.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arloliu/cohort/types"
)

type validator interface {
	Validate() error
}

// Decode strictly unmarshals data into a T and validates it.
func Decode[T any](data []byte) (T, error) {
	var v T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %w", types.ErrSchemaViolation, err)
	}
	if dec.More() {
		return v, fmt.Errorf("%w: trailing data after value", types.ErrSchemaViolation)
	}

	if err := validate(&v); err != nil {
		return v, fmt.Errorf("%w: %w", types.ErrSchemaViolation, err)
	}

	return v, nil
}

// Encode validates v and marshals it.
func Encode[T any](v T) ([]byte, error) {
	if err := validate(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSchemaViolation, err)
	}

	return json.Marshal(v)
}

func validate[T any](v *T) error {
	if val, ok := any(v).(validator); ok {
		return val.Validate()
	}
	if val, ok := any(*v).(validator); ok {
		return val.Validate()
	}

	return nil
}

// Get reads and decodes the node at path.
//
// Returns:
//   - T: The decoded value (zero when absent)
//   - bool: false when the node does not exist
//   - error: store failures or types.ErrSchemaViolation
func Get[T any](ctx context.Context, s types.NodeStore, path string) (T, bool, error) {
	var zero T

	data, err := s.Get(ctx, path)
	if errors.Is(err, types.ErrNodeNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	v, err := Decode[T](data)
	if err != nil {
		return zero, true, fmt.Errorf("%s: %w", path, err)
	}

	return v, true, nil
}

// Set encodes v and overwrites the node at path.
func Set[T any](ctx context.Context, s types.NodeStore, path string, v T) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return s.Set(ctx, path, data)
}

// Push encodes v and appends it under path.
func Push[T any](ctx context.Context, s types.NodeStore, path string, v T) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	return s.Push(ctx, path, data)
}

// Outcome is what a typed update function decides for one attempt.
//
// State is written when Abort is false. Output is returned to the caller from
// the attempt that finally committed (or aborted), never from a discarded one.
type Outcome[T, O any] struct {
	State  T
	Output O
	Abort  bool
}

// Update computes the next state of a node. exists is false when the node is
// absent, or when it held an invalid value and the transaction was opened with
// ResetInvalid.
type Update[T, O any] func(current T, exists bool) (Outcome[T, O], error)

// TxOption tunes a typed transaction.
type TxOption func(*txOptions)

type txOptions struct {
	resetInvalid bool
}

// ResetInvalid makes an undecodable or invalid current value look absent to
// the update function instead of failing the transaction.
func ResetInvalid() TxOption {
	return func(o *txOptions) {
		o.resetInvalid = true
	}
}

// Transact runs a typed optimistic transaction on path.
//
// Returns:
//   - O: Output of the final attempt
//   - types.TxResult: Raw store result (Committed false when the update aborted)
//   - error: store errors, update errors or types.ErrSchemaViolation
func Transact[T, O any](ctx context.Context, s types.NodeStore, path string, fn Update[T, O], opts ...TxOption) (O, types.TxResult, error) {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}

	var out O
	res, err := s.Transact(ctx, path, func(current []byte) ([]byte, error) {
		var (
			state  T
			exists bool
		)
		if current != nil {
			v, err := Decode[T](current)
			switch {
			case err == nil:
				state, exists = v, true
			case !o.resetInvalid:
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}

		outcome, err := fn(state, exists)
		if err != nil {
			return nil, err
		}
		out = outcome.Output
		if outcome.Abort {
			return nil, types.ErrTxAbort
		}

		data, err := Encode(outcome.State)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		return data, nil
	})
	if err != nil {
		var zero O
		return zero, res, err
	}

	return out, res, nil
}
