package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc/domain/ownership"
	"rc/infra/logging/testlog"
	"rc/infra/store"
)

type resource struct{ name string }

func openLedger(t *testing.T, dir string) (*Ledger, *store.Store) {
	t.Helper()
	log := testlog.Start(t)
	stores, err := store.New(store.Config{Tracker: ownership.NewTracker(), Log: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	s, err := stores.Open(context.Background(), dir)
	require.NoError(t, err)
	l, err := Open(s, log)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Unix(0, 42) }
	return l, s
}

func TestRecordRoundTripKeepsType(t *testing.T) {
	rec := Record{State: StateExpired, Variant: ownership.VariantInline, Seq: 7, At: 99, Type: "ledger.resource"}
	got, err := decodeRecord(encodeRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = decodeRecord([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestLedgerFollowsBlockLifecycle(t *testing.T) {
	l, s := openLedger(t, t.TempDir())
	defer s.Close()

	tr := ownership.NewTracker(ownership.WithObserver(l))
	h, err := ownership.New(&resource{name: "a"}, ownership.WithTracker(tr))
	require.NoError(t, err)
	id := h.ControlBlock().ID()

	rec, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateLive, rec.State)
	assert.Equal(t, ownership.VariantPointer, rec.Variant)
	assert.Equal(t, "ledger.resource", rec.Type)
	assert.Equal(t, int64(42), rec.At)

	w := h.Weak()
	h.Release()
	rec, err = l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, rec.State)
	assert.Greater(t, rec.Seq, uint64(1))

	var expired []uint64
	require.NoError(t, l.ScanByState(StateExpired, func(id uint64, _ Record) error {
		expired = append(expired, id)
		return nil
	}))
	assert.Equal(t, []uint64{id}, expired)

	w.Release()
	_, err = l.Get(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, l.Failed())
}

func TestLedgerDropsAbortedBlocks(t *testing.T) {
	l, s := openLedger(t, t.TempDir())
	defer s.Close()
	tr := ownership.NewTracker(ownership.WithObserver(l))

	_, err := ownership.MakeSharedFunc(func(*resource) error { return assert.AnError }, ownership.WithTracker(tr))
	require.Error(t, err)

	counts, err := l.Counts()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestLedgerResumesSequenceAndResets(t *testing.T) {
	dir := t.TempDir()
	l, s := openLedger(t, dir)
	tr := ownership.NewTracker(ownership.WithObserver(l))
	var held []*ownership.Shared[int]
	for i := 0; i < 3; i++ {
		h, err := ownership.MakeShared(i, ownership.WithTracker(tr))
		require.NoError(t, err)
		held = append(held, h)
	}
	require.NoError(t, s.Close())

	again, s2 := openLedger(t, dir)
	defer s2.Close()
	assert.Equal(t, uint64(3), again.seq.Current())

	counts, err := again.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, counts[StateLive])

	require.NoError(t, again.Reset())
	counts, err = again.Counts()
	require.NoError(t, err)
	assert.Empty(t, counts)

	for _, h := range held {
		h.Release()
	}
	// expire and free both fail once the first store is closed
	assert.Equal(t, int64(6), l.Failed())
}
