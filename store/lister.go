package store

import "context"

// Lister is implemented by backends that can enumerate node paths.
type Lister interface {
	// Keys returns the sorted paths of every node under prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

var (
	_ Lister = (*Memory)(nil)
	_ Lister = (*KV)(nil)
	_ Lister = (*SQLite)(nil)
)
