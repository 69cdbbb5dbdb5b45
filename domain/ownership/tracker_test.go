package ownership

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetRejectsWithoutClaimingOwnership(t *testing.T) {
	tr := NewTracker(WithMaxLive(1))
	p1, _ := newProbe(1)
	p2, d2 := newProbe(2)

	h, err := New(p1, WithTracker(tr))
	require.NoError(t, err)
	assert.True(t, tr.Exhausted())

	_, err = New(p2, WithTracker(tr))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))
	assert.Zero(t, *d2, "rejected payload stays with the caller")

	_, err = MakeShared(3, WithTracker(tr))
	assert.True(t, errors.Is(err, ErrResourceExhausted))

	err = h.ResetTo(p2, WithTracker(tr))
	assert.True(t, errors.Is(err, ErrResourceExhausted))
	assert.Same(t, p1, h.Get(), "failed ResetTo leaves the handle untouched")

	stats := tr.Stats()
	assert.Equal(t, int64(3), stats.Rejected)
	assert.Equal(t, int64(1), stats.Live)

	h.Release()
	_, err = MakeShared(3, WithTracker(tr))
	assert.NoError(t, err)
}

func TestMakeSharedFuncFailure(t *testing.T) {
	tr := NewTracker()
	n := 0
	boom := errors.New("boom")

	h, err := MakeSharedFunc(func(p *probe) error {
		p.destroyed = &n
		return boom
	}, WithTracker(tr))
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, n, "incomplete payload must not be destroyed")

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Aborted)
	assert.Equal(t, int64(1), stats.Freed)
	assert.Zero(t, stats.Live)
	assert.Zero(t, stats.Expired)
}

func TestMakeSharedFuncPanic(t *testing.T) {
	tr := NewTracker()
	assert.PanicsWithValue(t, "ctor", func() {
		_, _ = MakeSharedFunc(func(*probe) error { panic("ctor") }, WithTracker(tr))
	})
	assert.Zero(t, tr.Stats().Live)
	assert.Equal(t, int64(1), tr.Stats().Aborted)
}

func TestObserverSeesLifecycle(t *testing.T) {
	var events []Event
	tr := NewTracker(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))

	h, err := MakeShared(1, WithTracker(tr))
	require.NoError(t, err)
	w := h.Weak()
	h.Release()
	w.Release()

	require.Len(t, events, 3)
	assert.Equal(t, EventAlloc, events[0].Kind)
	assert.Equal(t, EventExpire, events[1].Kind)
	assert.Equal(t, EventFree, events[2].Kind)
	assert.Equal(t, VariantInline, events[0].Variant)
	assert.Equal(t, "int", events[0].Type)
	assert.Equal(t, events[0].Block, events[2].Block)
}
