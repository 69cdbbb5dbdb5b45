package ownership

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Variant identifies how a control block stores its payload.
type Variant uint8

const (
	// VariantPointer blocks own a separately allocated payload.
	VariantPointer Variant = iota
	// VariantInline blocks embed the payload in their own allocation.
	VariantInline
)

func (v Variant) String() string {
	switch v {
	case VariantPointer:
		return "pointer"
	case VariantInline:
		return "inline"
	default:
		return "unknown"
	}
}

// EventKind enumerates control block lifecycle events.
type EventKind uint8

const (
	// EventAlloc: a block was admitted and holds a live payload.
	EventAlloc EventKind = iota
	// EventExpire: the strong count reached zero and the payload was destroyed.
	EventExpire
	// EventFree: the weak count reached zero and the block was released.
	EventFree
	// EventAbort: payload construction failed; the block was released
	// without destroying anything.
	EventAbort
)

func (k EventKind) String() string {
	switch k {
	case EventAlloc:
		return "alloc"
	case EventExpire:
		return "expire"
	case EventFree:
		return "free"
	case EventAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Event describes one lifecycle transition of a control block.
type Event struct {
	Block   uint64
	Kind    EventKind
	Variant Variant
	Type    string
}

// Observer receives control block events. Observe is called synchronously
// on the goroutine that triggered the transition and must not touch the
// handles of the group being reported.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Stats aggregates control block accounting.
type Stats struct {
	Allocated int64 // blocks admitted
	Freed     int64 // blocks released (zero weak or aborted construction)
	Live      int64 // Allocated - Freed
	Expired   int64 // groups whose strong count reached zero
	Aborted   int64 // inline constructions that failed
	Rejected  int64 // admissions refused by the budget
	Inline    int64 // inline blocks admitted
	Pointer   int64 // pointer blocks admitted
	MaxLive   int64 // budget, 0 when unlimited
}

// Tracker accounts for control block allocations and enforces an optional
// budget on live blocks. A Tracker is safe for concurrent use; the handles
// it accounts for are not.
type Tracker struct {
	maxLive int64

	nextID    atomic.Uint64
	live      atomic.Int64
	allocated atomic.Int64
	freed     atomic.Int64
	expired   atomic.Int64
	aborted   atomic.Int64
	rejected  atomic.Int64
	inline    atomic.Int64
	pointer   atomic.Int64

	log zerolog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxLive limits the number of live control blocks. Zero means
// unlimited.
func WithMaxLive(n int64) TrackerOption {
	return func(t *Tracker) { t.maxLive = n }
}

// WithLogger sets the logger used for block lifecycle tracing.
func WithLogger(l zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) TrackerOption {
	return func(t *Tracker) { t.observers = append(t.observers, o) }
}

// NewTracker creates a Tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTracker = NewTracker()

// DefaultTracker returns the tracker used when no WithTracker option is given.
func DefaultTracker() *Tracker { return defaultTracker }

// Subscribe adds an observer.
func (t *Tracker) Subscribe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Stats returns a snapshot of the accounting counters.
func (t *Tracker) Stats() Stats {
	allocated := t.allocated.Load()
	freed := t.freed.Load()
	return Stats{
		Allocated: allocated,
		Freed:     freed,
		Live:      t.live.Load(),
		Expired:   t.expired.Load(),
		Aborted:   t.aborted.Load(),
		Rejected:  t.rejected.Load(),
		Inline:    t.inline.Load(),
		Pointer:   t.pointer.Load(),
		MaxLive:   t.maxLive,
	}
}

// Exhausted reports whether the live block count has reached the budget.
func (t *Tracker) Exhausted() bool {
	return t.maxLive > 0 && t.live.Load() >= t.maxLive
}

func (t *Tracker) observed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observers) > 0
}

func (t *Tracker) emit(e Event) {
	t.mu.RLock()
	obs := t.observers
	t.mu.RUnlock()
	for _, o := range obs {
		o.Observe(e)
	}
}

// admit reserves room for one block. No block may be created when it fails.
func (t *Tracker) admit(v Variant) (uint64, error) {
	for {
		live := t.live.Load()
		if t.maxLive > 0 && live >= t.maxLive {
			t.rejected.Add(1)
			return 0, errors.Wrapf(ErrResourceExhausted, "%d of %d %s blocks live", live, t.maxLive, v)
		}
		if t.live.CompareAndSwap(live, live+1) {
			break
		}
	}
	t.allocated.Add(1)
	if v == VariantInline {
		t.inline.Add(1)
	} else {
		t.pointer.Add(1)
	}
	return t.nextID.Add(1), nil
}

func (t *Tracker) allocatedBlock(cb *ControlBlock) {
	t.log.Trace().Uint64("block", cb.id).Stringer("variant", cb.variant).Str("type", cb.typ).Msg("control block allocated")
	t.emit(Event{Block: cb.id, Kind: EventAlloc, Variant: cb.variant, Type: cb.typ})
}

func (t *Tracker) expiredBlock(cb *ControlBlock) {
	t.expired.Add(1)
	t.log.Trace().Uint64("block", cb.id).Msg("payload destroyed")
	t.emit(Event{Block: cb.id, Kind: EventExpire, Variant: cb.variant, Type: cb.typ})
}

func (t *Tracker) freedBlock(cb *ControlBlock) {
	t.freed.Add(1)
	t.live.Add(-1)
	t.log.Trace().Uint64("block", cb.id).Msg("control block released")
	t.emit(Event{Block: cb.id, Kind: EventFree, Variant: cb.variant, Type: cb.typ})
}

func (t *Tracker) abortedBlock(id uint64, v Variant, typ string) {
	t.aborted.Add(1)
	t.freed.Add(1)
	t.live.Add(-1)
	t.log.Debug().Uint64("block", id).Str("type", typ).Msg("payload construction failed")
	t.emit(Event{Block: id, Kind: EventAbort, Variant: v, Type: typ})
}
