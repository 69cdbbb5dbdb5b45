package ownership

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	EnableSharedFromThis[session]
	name      string
	destroyed *int
}

func (s *session) Destroy() { *s.destroyed++ }

func TestSharedFromThisInline(t *testing.T) {
	tr := NewTracker()
	n := 0
	h, err := MakeSharedFunc(func(s *session) error {
		s.name = "alpha"
		s.destroyed = &n
		return nil
	}, WithTracker(tr))
	require.NoError(t, err)

	self, err := h.Get().SharedFromThis()
	require.NoError(t, err)
	assert.Same(t, h.Get(), self.Get())
	assert.Equal(t, 2, h.UseCount())
	self.Release()

	h.Release()
	assert.Equal(t, 1, n)
	assert.Zero(t, tr.Stats().Live, "self binding must not keep the block alive")
}

func TestSharedFromThisPointer(t *testing.T) {
	tr := NewTracker()
	n := 0
	s := &session{name: "beta", destroyed: &n}

	_, err := s.SharedFromThis()
	assert.True(t, errors.Is(err, ErrNotOwned))

	h, err := New(s, WithTracker(tr))
	require.NoError(t, err)
	w := s.WeakFromThis()
	assert.False(t, w.Expired())

	h.Release()
	assert.Equal(t, 1, n)
	assert.True(t, w.Expired())
	_, err = s.SharedFromThis()
	assert.True(t, errors.Is(err, ErrNotOwned))

	w.Release()
	assert.Zero(t, tr.Stats().Live)
}

func TestSharedFromThisOnCopyOfLiveValue(t *testing.T) {
	tr := NewTracker()
	n := 0
	a, err := MakeShared(session{name: "orig", destroyed: &n}, WithTracker(tr))
	require.NoError(t, err)
	defer a.Release()

	b, err := MakeShared(*a.Get(), WithTracker(tr))
	require.NoError(t, err)

	self, err := b.Get().SharedFromThis()
	require.NoError(t, err)
	assert.Same(t, b.Get(), self.Get())
	assert.Same(t, b.ControlBlock(), self.ControlBlock())
	assert.Equal(t, 1, a.UseCount())
	assert.Equal(t, 2, a.ControlBlock().WeakCount(), "copy must not count on the original block")
	self.Release()

	b.Release()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, a.UseCount())
}

func TestSharedFromThisOnCopyOfExpiredValue(t *testing.T) {
	tr := NewTracker()
	n := 0
	a, err := MakeShared(session{name: "orig", destroyed: &n}, WithTracker(tr))
	require.NoError(t, err)
	w := a.Weak()
	copied := *a.Get()
	a.Release()
	require.True(t, w.Expired())

	var b *Shared[session]
	require.NotPanics(t, func() {
		b, err = New(&copied, WithTracker(tr))
	})
	require.NoError(t, err)

	self, err := copied.SharedFromThis()
	require.NoError(t, err)
	assert.Same(t, &copied, self.Get())
	assert.Equal(t, 2, b.UseCount())
	self.Release()

	b.Release()
	assert.Equal(t, 2, n)
	w.Release()
	assert.Zero(t, tr.Stats().Live)
}
