// Package testing provides test utilities for the cohort library.
//
// It follows Go's convention of providing testing utilities in a dedicated
// package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV: KV bucket configured for the KV node store
//   - NewTestLogger: types.Logger that writes through t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    cohorttest "github.com/arloliu/cohort/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := cohorttest.StartEmbeddedNATS(t)
//	    kv := cohorttest.CreateJetStreamKV(t, nc, "cohort")
//	}
package testing
