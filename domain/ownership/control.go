package ownership

import (
	"github.com/cockroachdb/errors"
)

// blockOps is the variant-specific half of a control block.
type blockOps interface {
	// onZeroStrong destroys the payload.
	onZeroStrong()
	// onZeroWeak releases what the block still references.
	onZeroWeak()
}

// ControlBlock is the bookkeeping record shared by every handle of one
// ownership group. strong counts Shared handles; weak counts Weak handles
// plus one implicit reference held collectively by the strong owners, so the
// block outlives its payload for as long as anybody observes it.
//
// Counters may only change through the methods below.
type ControlBlock struct {
	strong int
	weak   int

	id      uint64
	variant Variant
	typ     string
	tracker *Tracker
	ops     blockOps
}

func (cb *ControlBlock) init(id uint64, v Variant, typ string, t *Tracker, ops blockOps) {
	cb.strong = 1
	cb.weak = 1
	cb.id = id
	cb.variant = v
	cb.typ = typ
	cb.tracker = t
	cb.ops = ops
}

// ID returns the tracker-assigned block identifier.
func (cb *ControlBlock) ID() uint64 { return cb.id }

// Variant reports how the block stores its payload.
func (cb *ControlBlock) Variant() Variant { return cb.variant }

// UseCount returns the number of strong owners.
func (cb *ControlBlock) UseCount() int { return cb.strong }

// WeakCount returns the weak count, including the implicit reference held
// by the strong owners while any exist.
func (cb *ControlBlock) WeakCount() int { return cb.weak }

// Expired reports whether the payload has been destroyed.
func (cb *ControlBlock) Expired() bool { return cb.strong == 0 }

// IncreaseStrong adds a strong owner. Reviving an expired group panics.
func (cb *ControlBlock) IncreaseStrong() {
	if cb.strong <= 0 {
		panic(errors.AssertionFailedf("ownership: strong increase on expired block %d", cb.id))
	}
	cb.strong++
}

// tryIncreaseStrong adds a strong owner unless the group already expired.
func (cb *ControlBlock) tryIncreaseStrong() bool {
	if cb.strong <= 0 {
		return false
	}
	cb.strong++
	return true
}

// DecreaseStrong removes a strong owner. The last one destroys the payload
// and then drops the implicit weak reference, which releases the block
// unless Weak handles still observe it.
func (cb *ControlBlock) DecreaseStrong() {
	if cb.strong <= 0 {
		panic(errors.AssertionFailedf("ownership: strong count underflow on block %d", cb.id))
	}
	cb.strong--
	if cb.strong > 0 {
		return
	}
	cb.ops.onZeroStrong()
	cb.tracker.expiredBlock(cb)
	cb.DecreaseWeak()
}

// IncreaseWeak adds a weak observer.
func (cb *ControlBlock) IncreaseWeak() {
	if cb.weak <= 0 {
		panic(errors.AssertionFailedf("ownership: weak increase on released block %d", cb.id))
	}
	cb.weak++
}

// DecreaseWeak removes a weak observer. The last one releases the block.
func (cb *ControlBlock) DecreaseWeak() {
	if cb.weak <= 0 {
		panic(errors.AssertionFailedf("ownership: weak count underflow on block %d", cb.id))
	}
	cb.weak--
	if cb.weak > 0 {
		return
	}
	ops := cb.ops
	cb.ops = nil
	ops.onZeroWeak()
	cb.tracker.freedBlock(cb)
}

// -------------------- Pointer block --------------------

// pointerBlock owns a payload allocated by the caller.
type pointerBlock[T any] struct {
	ControlBlock
	ptr     *T
	deleter Deleter[T]
}

func newPointerBlock[T any](p *T, d Deleter[T], cfg config) (*pointerBlock[T], error) {
	id, err := cfg.tracker.admit(VariantPointer)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = DefaultDeleter[T]{}
	}
	b := &pointerBlock[T]{ptr: p, deleter: d}
	b.init(id, VariantPointer, cfg.typeName(typeName[T]), cfg.tracker, b)
	cfg.tracker.allocatedBlock(&b.ControlBlock)
	return b, nil
}

func (b *pointerBlock[T]) onZeroStrong() {
	p := b.ptr
	b.ptr = nil
	if p == nil {
		return
	}
	unbindSelf(p, &b.ControlBlock)
	b.deleter.Delete(p)
}

func (b *pointerBlock[T]) onZeroWeak() {
	b.deleter = nil
}

// -------------------- Inline block --------------------

// inlineBlock stores the payload inside the block itself.
type inlineBlock[T any] struct {
	ControlBlock
	value T
}

func (b *inlineBlock[T]) onZeroStrong() {
	unbindSelf(&b.value, &b.ControlBlock)
	destroyValue(&b.value)
	var zero T
	b.value = zero
}

func (b *inlineBlock[T]) onZeroWeak() {}

// -------------------- Options --------------------

type config struct {
	tracker *Tracker
}

func (c config) typeName(name func() string) string {
	if !c.tracker.observed() {
		return ""
	}
	return name()
}

// Option configures handle construction. Options take and return the
// config by value so building it stays off the heap.
type Option func(config) config

// WithTracker accounts the new control block on t instead of the default
// tracker.
func WithTracker(t *Tracker) Option {
	return func(c config) config {
		if t != nil {
			c.tracker = t
		}
		return c
	}
}

func buildConfig(opts []Option) config {
	cfg := config{tracker: defaultTracker}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return cfg
}
