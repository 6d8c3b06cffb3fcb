package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/arloliu/cohort/types"
	"github.com/puzpuzpuz/xsync/v4"
)

type memNode struct {
	value    []byte
	revision uint64
}

// Memory is an in-process NodeStore backed by a concurrent map.
//
// Commits compare the node revision inside xsync.Map.Compute, so concurrent
// goroutines get the same optimistic semantics as the shared backends.
type Memory struct {
	nodes *xsync.Map[string, memNode]
	opts  options
}

var _ types.NodeStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		nodes: xsync.NewMap[string, memNode](),
		opts:  newOptions(opts),
	}
}

// Get returns the value at path or types.ErrNodeNotFound.
func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	defer observe(&m.opts, "get", time.Now())

	p, err := canonical(path)
	if err != nil {
		return nil, err
	}

	value, rev, err := m.read(ctx, p)
	if err != nil {
		return nil, err
	}
	if rev == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, p)
	}

	return cloneBytes(value), nil
}

// Set overwrites the value at path.
func (m *Memory) Set(ctx context.Context, path string, value []byte) error {
	defer observe(&m.opts, "set", time.Now())

	p, err := canonical(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.put(p, value)

	return nil
}

// Push stores value under a new time-ordered child of path and returns the child key.
func (m *Memory) Push(ctx context.Context, path string, value []byte) (string, error) {
	defer observe(&m.opts, "push", time.Now())

	p, err := canonical(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := pushKey()
	m.put(p+"/"+key, value)

	return key, nil
}

// Transact applies fn atomically to the node at path.
func (m *Memory) Transact(ctx context.Context, path string, fn types.UpdateFunc) (types.TxResult, error) {
	p, err := canonical(path)
	if err != nil {
		return types.TxResult{}, err
	}

	return transact(ctx, m, &m.opts, p, fn)
}

// UpdateMulti writes each path in lexical order. Not atomic across paths.
func (m *Memory) UpdateMulti(ctx context.Context, values map[string][]byte) error {
	defer observe(&m.opts, "update_multi", time.Now())

	paths := slices.Sorted(maps.Keys(values))
	canon := make([]string, len(paths))
	for i, path := range paths {
		p, err := canonical(path)
		if err != nil {
			return err
		}
		canon[i] = p
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, path := range paths {
		m.put(canon[i], values[path])
	}

	return nil
}

// Keys lists every node path under prefix ("/" lists everything).
func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var paths []string
	m.nodes.Range(func(path string, _ memNode) bool {
		if prefix == "" || prefix == "/" || hasPathPrefix(path, prefix) {
			paths = append(paths, path)
		}

		return true
	})
	slices.Sort(paths)

	return paths, nil
}

// Len returns the number of stored nodes.
func (m *Memory) Len() int {
	return m.nodes.Size()
}

func (m *Memory) put(path string, value []byte) {
	v := cloneBytes(value)
	m.nodes.Compute(path, func(old memNode, _ bool) (memNode, xsync.ComputeOp) {
		return memNode{value: v, revision: old.revision + 1}, xsync.UpdateOp
	})
}

func (m *Memory) read(ctx context.Context, path string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	n, ok := m.nodes.Load(path)
	if !ok {
		return nil, 0, nil
	}

	return n.value, n.revision, nil
}

func (m *Memory) commit(ctx context.Context, path string, value []byte, rev uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var (
		newRev   uint64
		conflict bool
	)
	v := cloneBytes(value)
	m.nodes.Compute(path, func(old memNode, loaded bool) (memNode, xsync.ComputeOp) {
		current := uint64(0)
		if loaded {
			current = old.revision
		}
		if current != rev {
			conflict = true
			return old, xsync.CancelOp
		}
		newRev = rev + 1

		return memNode{value: v, revision: newRev}, xsync.UpdateOp
	})
	if conflict {
		return 0, errRevisionMismatch
	}

	return newRev, nil
}
