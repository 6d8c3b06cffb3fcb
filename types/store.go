package types

import "context"

// UpdateFunc computes the next value of a node from its current value.
//
// current is nil when the node is absent. The function may be invoked more than
// once per Transact call when concurrent writers conflict, so it must be free of
// side effects other than capturing its own return value. Returning ErrTxAbort
// leaves the node unchanged; any other error stops the transaction and is
// returned from Transact.
type UpdateFunc func(current []byte) ([]byte, error)

// TxResult is the outcome of a Transact call.
type TxResult struct {
	// Value is the node value after the call: the committed value, or the
	// unchanged current value when the update aborted.
	Value []byte

	// Committed is false when the update function aborted.
	Committed bool

	// Revision is the store revision of Value (0 when the node is absent).
	Revision uint64

	// Attempts is how many times the update function ran.
	Attempts int
}

// NodeStore is the single external collaborator of the balancing core.
//
// Paths are slash-separated (e.g. "/metrics/scenario_counts"). Each path holds
// one opaque value; atomicity is guaranteed per path only.
//
// Implementations must be safe for concurrent use by multiple goroutines and by
// multiple processes sharing the same backend.
type NodeStore interface {
	// Get returns the value at path or ErrNodeNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// Set overwrites the value at path (last writer wins).
	Set(ctx context.Context, path string, value []byte) error

	// Push appends value under path with a store-generated, roughly time-ordered
	// key and returns that key.
	Push(ctx context.Context, path string, value []byte) (string, error)

	// Transact applies fn atomically, retrying on conflicting concurrent writes.
	// Returns ErrTxConflict when the retry budget is exhausted.
	Transact(ctx context.Context, path string, fn UpdateFunc) (TxResult, error)

	// UpdateMulti writes several paths. Not atomic across paths.
	UpdateMulti(ctx context.Context, values map[string][]byte) error
}
