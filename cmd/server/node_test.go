package main

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rc/domain/ownership"
	"rc/infra/config"
	"rc/infra/grpcconn"
	"rc/infra/ledger"
	"rc/infra/logging/testlog"
	"rc/infra/store"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.GRPC.HealthInterval = config.Duration(5 * time.Millisecond)
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Reclaim.Interval = config.Duration(time.Millisecond)
	cfg.Tracker.Ledger = true
	cfg.Store.Dir = filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestNodeServesAndStops(t *testing.T) {
	cfg := testConfig(t)
	log := testlog.Start(t)
	n, err := newNode(cfg, log, soakOptions{interval: time.Millisecond, size: 64, fanout: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.run(ctx) }()

	require.Eventually(t, func() bool { return n.tracker.Stats().Expired > 10 }, 5*time.Second, 5*time.Millisecond)

	conns, err := grpcconn.New(grpcconn.Config{Tracker: ownership.NewTracker(), Log: log})
	require.NoError(t, err)
	defer conns.Close()
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	status, err := conns.Probe(pctx, n.lis.Addr().String(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	resp, err := http.Get("http://" + n.metLis.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `rc_blocks_allocated_total{variant="inline"}`)
	assert.Contains(t, string(body), "rc_reclaim_reclaimed_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
	assert.Zero(t, n.tracker.Stats().Live)
	assert.Zero(t, n.domain.Pending())
	assert.Zero(t, n.ledger.Failed())

	// The soak releases everything, so a clean stop leaves the ledger empty.
	stores, err := store.New(store.Config{Tracker: ownership.NewTracker(), Log: log})
	require.NoError(t, err)
	defer stores.Close()
	s, err := stores.Open(context.Background(), cfg.Store.Dir)
	require.NoError(t, err)
	defer s.Close()
	l, err := ledger.Open(s, log)
	require.NoError(t, err)
	counts, err := l.Counts()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestNewNodeFailsOnBusyAddr(t *testing.T) {
	cfg := testConfig(t)
	first, err := newNode(cfg, testlog.Start(t), soakOptions{})
	require.NoError(t, err)
	defer first.close()

	cfg.GRPC.Addr = first.lis.Addr().String()
	cfg.Tracker.Ledger = false
	_, err = newNode(cfg, testlog.Start(t), soakOptions{})
	assert.Error(t, err)
}
