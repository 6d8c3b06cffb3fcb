package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/cohort"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/source"
	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

// runtime is everything a command needs, opened from the root options.
type runtime struct {
	store   types.NodeStore
	catalog *source.Store
	engine  *cohort.Engine
	closers []func()
}

// open connects the configured store and builds an Engine over the scenario
// catalog kept in it.
func (o *rootOptions) open(ctx context.Context) (*runtime, error) {
	return o.openWith(ctx, nil)
}

// openWith is open with a scenario source other than the stored catalog.
func (o *rootOptions) openWith(ctx context.Context, src types.ScenarioSource) (*runtime, error) {
	rt := &runtime{}

	var collector types.MetricsCollector
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheus(reg, "")
		rt.closers = append(rt.closers, o.serveMetrics(reg))
	}

	s, closeStore, err := o.openStore(ctx, collector)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = s
	rt.closers = append(rt.closers, closeStore)
	rt.catalog = source.NewStore(s)
	if src == nil {
		src = rt.catalog
	}

	rt.engine, err = cohort.NewEngine(&o.cfg, s, src,
		cohort.WithLogger(o.logger),
		cohort.WithMetrics(collector),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (o *rootOptions) openStore(ctx context.Context, collector types.MetricsCollector) (types.NodeStore, func(), error) {
	sc := o.cfg.Store
	opts := []store.Option{
		store.WithMaxAttempts(sc.MaxAttempts),
		store.WithLogger(o.logger),
		store.WithMetrics(collector),
	}

	switch sc.Backend {
	case cohort.BackendMemory:
		o.logger.Warn("using in-memory store, state is lost on exit")
		return store.NewMemory(opts...), func() {}, nil

	case cohort.BackendNATS:
		nc, err := nats.Connect(sc.NATSURL, nats.Name("cohort"), nats.Timeout(sc.OperationTimeout))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", sc.NATSURL, err)
		}
		kv, err := store.OpenKV(ctx, nc, sc.Bucket, sc.OperationTimeout, opts...)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		o.logger.Debug("opened NATS KV store", "url", sc.NATSURL, "bucket", sc.Bucket)

		return kv, nc.Close, nil

	case cohort.BackendSQLite:
		db, err := store.OpenSQLite(sc.SQLitePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		o.logger.Debug("opened SQLite store", "path", sc.SQLitePath)

		return db, func() {
			if err := db.Close(); err != nil {
				o.logger.Warn("failed to close SQLite store", "error", err)
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown store backend %q", cohort.ErrInvalidConfig, sc.Backend)
}

func (o *rootOptions) serveMetrics(reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              o.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		o.logger.Info("serving metrics", "addr", o.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
