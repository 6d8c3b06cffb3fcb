package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(1*time.Second))
}

func TestCreateJetStreamKV(t *testing.T) {
	ctx := t.Context()
	_, nc := StartEmbeddedNATS(t)

	kv := CreateJetStreamKV(t, nc, "test-bucket")
	require.NotNil(t, kv)

	rev, err := kv.Create(ctx, "metrics.scenario_counts", []byte(`{}`))
	require.NoError(t, err)

	_, err = kv.Update(ctx, "metrics.scenario_counts", []byte(`{"s1":1}`), rev)
	require.NoError(t, err)

	// stale revision loses
	_, err = kv.Update(ctx, "metrics.scenario_counts", []byte(`{"s1":2}`), rev)
	require.Error(t, err)

	entry, err := kv.Get(ctx, "metrics.scenario_counts")
	require.NoError(t, err)
	require.JSONEq(t, `{"s1":1}`, string(entry.Value()))
}

func TestCreateJetStreamKV_KeepsLatestRevisionOnly(t *testing.T) {
	ctx := t.Context()
	_, nc := StartEmbeddedNATS(t)
	kv := CreateJetStreamKV(t, nc, "history")

	for _, v := range []string{`{"s1":1}`, `{"s1":2}`, `{"s1":3}`} {
		_, err := kv.Put(ctx, "cycles.s1", []byte(v))
		require.NoError(t, err)
	}

	history, err := kv.History(ctx, "cycles.s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.JSONEq(t, `{"s1":3}`, string(history[0].Value()))
}
