package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/arloliu/cohort/internal/kvutil"
	"github.com/arloliu/cohort/internal/natsutil"
	"github.com/arloliu/cohort/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KV is a NodeStore backed by a NATS JetStream KeyValue bucket.
//
// Node paths map to keys by replacing "/" with "." ("/orders/s1" is stored as
// "orders.s1"). Transactions use the per-key revision: kv.Create for absent
// nodes and kv.Update(revision) otherwise.
type KV struct {
	kv        jetstream.KeyValue
	opts      options
	opTimeout time.Duration
}

var _ types.NodeStore = (*KV)(nil)

// NewKV wraps an existing bucket.
//
// Parameters:
//   - kv: JetStream KeyValue bucket (History 1 is sufficient; no TTL)
//   - opts: Store options
//
// Returns:
//   - *KV: NodeStore over the bucket
func NewKV(kv jetstream.KeyValue, opts ...Option) *KV {
	return &KV{kv: kv, opts: newOptions(opts)}
}

// OpenKV creates or opens bucket on conn and wraps it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - conn: Connected NATS client
//   - bucket: KV bucket name
//   - opTimeout: Per-call timeout applied to every KV request (0 disables)
//   - opts: Store options
//
// Returns:
//   - *KV: NodeStore over the bucket
//   - error: types.ErrStoreUnavailable wrapped around connectivity failures
func OpenKV(ctx context.Context, conn *nats.Conn, bucket string, opTimeout time.Duration, opts ...Option) (*KV, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "cohort assignment state",
		History:     1,
	}, 3)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to open bucket %s: %w", bucket, err))
	}

	s := NewKV(kv, opts...)
	s.opTimeout = opTimeout

	return s, nil
}

// Get returns the value at path or types.ErrNodeNotFound.
func (s *KV) Get(ctx context.Context, path string) ([]byte, error) {
	defer observe(&s.opts, "get", time.Now())

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return nil, err
	}

	value, rev, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if rev == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, path)
	}

	return value, nil
}

// Set overwrites the value at path.
func (s *KV) Set(ctx context.Context, path string, value []byte) error {
	defer observe(&s.opts, "set", time.Now())

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return err
	}

	return s.put(ctx, key, value)
}

// Push stores value under a new time-ordered child of path and returns the child key.
func (s *KV) Push(ctx context.Context, path string, value []byte) (string, error) {
	defer observe(&s.opts, "push", time.Now())

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return "", err
	}

	child := pushKey()
	if err := s.put(ctx, key+"."+child, value); err != nil {
		return "", err
	}

	return child, nil
}

// Transact applies fn atomically to the node at path.
func (s *KV) Transact(ctx context.Context, path string, fn types.UpdateFunc) (types.TxResult, error) {
	key, err := kvutil.PathToKey(path)
	if err != nil {
		return types.TxResult{}, err
	}

	return transact(ctx, s, &s.opts, key, fn)
}

// UpdateMulti writes each path in lexical order. Not atomic across paths; the
// first failure stops the batch.
func (s *KV) UpdateMulti(ctx context.Context, values map[string][]byte) error {
	defer observe(&s.opts, "update_multi", time.Now())

	paths := slices.Sorted(maps.Keys(values))
	keys := make([]string, len(paths))
	for i, path := range paths {
		key, err := kvutil.PathToKey(path)
		if err != nil {
			return err
		}
		keys[i] = key
	}

	for i, key := range keys {
		if err := s.put(ctx, key, values[paths[i]]); err != nil {
			return fmt.Errorf("update %s: %w", paths[i], err)
		}
	}

	return nil
}

// Keys lists every node path under prefix ("/" lists everything).
func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		p := kvutil.KeyToPath(key)
		if prefix == "" || prefix == "/" || p == prefix || hasPathPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	return paths, nil
}

func (s *KV) put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return classify(err)
	}

	return nil
}

func (s *KV) read(ctx context.Context, key string) ([]byte, uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, classify(err)
	}

	return entry.Value(), entry.Revision(), nil
}

func (s *KV) commit(ctx context.Context, key string, value []byte, rev uint64) (uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		newRev uint64
		err    error
	)
	if rev == 0 {
		newRev, err = s.kv.Create(ctx, key, value)
	} else {
		newRev, err = s.kv.Update(ctx, key, value, rev)
	}
	if natsutil.IsRevisionConflict(err) {
		return 0, errRevisionMismatch
	}
	if err != nil {
		return 0, classify(err)
	}

	return newRev, nil
}

func (s *KV) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.opTimeout)
}

func classify(err error) error {
	if err == nil || errors.Is(err, types.ErrStoreUnavailable) {
		return err
	}
	if natsutil.IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	return err
}

func hasPathPrefix(path, prefix string) bool {
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	return len(path) > len(prefix) && path[:len(prefix)] == prefix
}
