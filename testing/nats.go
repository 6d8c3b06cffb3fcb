package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled for testing.
//
// The server runs in-process and stores data in a temporary directory that is
// removed when the test completes. It listens on a random port so parallel
// tests never collide.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client (closed automatically on test completion)
//
// Example:
//
//	func TestKVStore(t *testing.T) {
//	    _, nc := cohorttest.StartEmbeddedNATS(t)
//	    kv := cohorttest.CreateJetStreamKV(t, nc, "cohort")
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("Embedded NATS server not ready within timeout")
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	// executed in reverse order
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// CreateJetStreamKV creates a JetStream KV bucket shaped like the one the KV node
// store expects: one revision of history, no TTL, memory storage.
//
// Parameters:
//   - t: Testing context
//   - nc: NATS connection (from StartEmbeddedNATS)
//   - bucketName: Name of the KV bucket to create
//
// Returns:
//   - jetstream.KeyValue: The created KV bucket interface
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Test KV bucket: %s", bucketName),
		History:     1,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create KV bucket %s: %v", bucketName, err)
	}

	return kv
}
