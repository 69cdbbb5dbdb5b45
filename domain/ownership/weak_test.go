package ownership

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakLockWhileAlive(t *testing.T) {
	h, err := MakeShared(3, WithTracker(NewTracker()))
	require.NoError(t, err)
	w := h.Weak()
	defer w.Release()

	assert.False(t, w.Expired())
	assert.Equal(t, 1, w.UseCount())
	assert.Equal(t, 2, h.ControlBlock().WeakCount())

	s, ok := w.Lock()
	require.True(t, ok)
	assert.Equal(t, 2, h.UseCount())
	assert.Same(t, h.Get(), s.Get())
	s.Release()

	v, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, h.UseCount())
	h.Release()
}

func TestWeakOutlivesPayload(t *testing.T) {
	tr := NewTracker()
	p, destroyed := newProbe(1)
	h, err := New(p, WithTracker(tr))
	require.NoError(t, err)
	w := h.Weak()
	w2 := w.Clone()

	h.Release()
	assert.Equal(t, 1, *destroyed)
	assert.True(t, w.Expired())
	assert.Zero(t, w.UseCount())

	_, ok := w.Lock()
	assert.False(t, ok)
	_, err = w.Load()
	assert.True(t, errors.Is(err, ErrExpired))

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Expired)
	assert.Zero(t, stats.Freed, "block must survive while observed")

	w.Release()
	assert.Zero(t, tr.Stats().Freed)
	w2.Release()
	assert.Equal(t, int64(1), tr.Stats().Freed)
	assert.Equal(t, 1, *destroyed)
}

func TestEmptyWeak(t *testing.T) {
	w := Null[int]().Weak()
	assert.True(t, w.Expired())
	_, ok := w.Lock()
	assert.False(t, ok)
	w.Release()
	w.Release()

	var zero Weak[int]
	assert.True(t, zero.Expired())
}

func TestWeakSwap(t *testing.T) {
	h, err := MakeShared(1, WithTracker(NewTracker()))
	require.NoError(t, err)
	defer h.Release()
	a := h.Weak()
	b := &Weak[int]{}
	a.Swap(b)
	assert.True(t, a.Expired())
	assert.False(t, b.Expired())
	b.Release()
	assert.Equal(t, 1, h.ControlBlock().WeakCount())
}
