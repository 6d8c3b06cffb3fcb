package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/cohort/types"
)

// errRevisionMismatch is returned by a backend commit that lost the race.
var errRevisionMismatch = errors.New("revision mismatch")

// casBackend is the minimal surface a backend exposes to the shared
// transaction loop.
type casBackend interface {
	// read returns the node value and its revision; revision 0 means absent.
	read(ctx context.Context, path string) ([]byte, uint64, error)

	// commit writes value if the node is still at revision rev and returns the
	// new revision, or errRevisionMismatch.
	commit(ctx context.Context, path string, value []byte, rev uint64) (uint64, error)
}

// transact runs the optimistic read-compute-commit loop shared by all backends.
func transact(ctx context.Context, b casBackend, o *options, path string, fn types.UpdateFunc) (types.TxResult, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordStoreOperationDuration("transact", time.Since(start).Seconds())
	}()

	if fn == nil {
		return types.TxResult{}, fmt.Errorf("%w: nil update function", types.ErrInvalidArgument)
	}

	var attempts int
	for attempts < o.maxAttempts {
		if err := ctx.Err(); err != nil {
			o.metrics.RecordTransaction(attempts, "error")
			return types.TxResult{Attempts: attempts}, err
		}

		current, rev, err := b.read(ctx, path)
		if err != nil {
			o.metrics.RecordTransaction(attempts, "error")
			return types.TxResult{Attempts: attempts}, fmt.Errorf("read %s: %w", path, err)
		}

		attempts++
		next, err := fn(cloneBytes(current))
		if errors.Is(err, types.ErrTxAbort) {
			o.metrics.RecordTransaction(attempts, "aborted")
			return types.TxResult{Value: current, Revision: rev, Attempts: attempts}, nil
		}
		if err != nil {
			o.metrics.RecordTransaction(attempts, "error")
			return types.TxResult{Attempts: attempts}, err
		}
		if next == nil {
			o.metrics.RecordTransaction(attempts, "error")
			return types.TxResult{Attempts: attempts}, fmt.Errorf("%w: update function returned nil value for %s", types.ErrInvalidArgument, path)
		}

		if o.beforeCommit != nil {
			o.beforeCommit(path, attempts)
		}

		newRev, err := b.commit(ctx, path, next, rev)
		if errors.Is(err, errRevisionMismatch) {
			o.logger.Debug("transaction conflict, retrying", "path", path, "attempt", attempts)
			continue
		}
		if err != nil {
			o.metrics.RecordTransaction(attempts, "error")
			return types.TxResult{Attempts: attempts}, fmt.Errorf("commit %s: %w", path, err)
		}

		o.metrics.RecordTransaction(attempts, "committed")

		return types.TxResult{Value: next, Committed: true, Revision: newRev, Attempts: attempts}, nil
	}

	o.metrics.RecordTransaction(attempts, "conflict")
	o.logger.Warn("transaction retry budget exhausted", "path", path, "attempts", attempts)

	return types.TxResult{Attempts: attempts}, fmt.Errorf("%w: %s after %d attempts", types.ErrTxConflict, path, attempts)
}

// observe records the latency of a non-transactional operation.
func observe(o *options, op string, start time.Time) {
	o.metrics.RecordStoreOperationDuration(op, time.Since(start).Seconds())
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
