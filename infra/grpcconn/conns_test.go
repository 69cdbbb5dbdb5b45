package grpcconn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"

	"rc/domain/ownership"
	"rc/infra/logging/testlog"
)

func newConns(t *testing.T, linger int) *Conns {
	t.Helper()
	c, err := New(Config{Linger: linger, Tracker: ownership.NewTracker(), Log: testlog.Start(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialSharesConnection(t *testing.T) {
	conns := newConns(t, 0)
	ctx := context.Background()

	a, err := conns.Dial(ctx, "passthrough:///peer-a")
	require.NoError(t, err)
	b, err := conns.Dial(ctx, "passthrough:///peer-a")
	require.NoError(t, err)
	other, err := conns.Dial(ctx, "passthrough:///peer-b")
	require.NoError(t, err)
	defer other.Close()

	cc := a.ClientConn()
	assert.Same(t, cc, b.ClientConn())
	assert.NotSame(t, cc, other.ClientConn())
	assert.Equal(t, 2, conns.Open())
	assert.Equal(t, "passthrough:///peer-a", a.Target())

	require.NoError(t, a.Close())
	assert.NotEqual(t, connectivity.Shutdown, cc.GetState())
	require.NoError(t, b.Close())
	assert.Equal(t, connectivity.Shutdown, cc.GetState())
	assert.Nil(t, b.ClientConn())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, conns.Open())
}

func TestLingeringConnectionClosesWithConns(t *testing.T) {
	c, err := New(Config{Linger: 1, Tracker: ownership.NewTracker(), Log: testlog.Start(t)})
	require.NoError(t, err)

	a, err := c.Dial(context.Background(), "passthrough:///peer")
	require.NoError(t, err)
	cc := a.ClientConn()
	require.NoError(t, a.Close())
	assert.NotEqual(t, connectivity.Shutdown, cc.GetState())

	require.NoError(t, c.Close())
	assert.Equal(t, connectivity.Shutdown, cc.GetState())
}
