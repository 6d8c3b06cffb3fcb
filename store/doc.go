// Package store provides types.NodeStore implementations.
//
// Every backend offers the same single-node optimistic transaction: read the
// node and its revision, run the update function, then commit only if the
// revision is unchanged, retrying on conflict up to a bounded number of
// attempts.
//
// Backends:
//   - Memory: in-process map, for tests and single-process deployments
//   - KV: NATS JetStream KeyValue bucket, shared by any number of processes
//   - SQLite: a single database file (modernc.org/sqlite, no cgo)
package store
