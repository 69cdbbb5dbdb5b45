package ownership

// Weak observes an ownership group without keeping its payload alive. It
// keeps the control block alive, so Expired and Lock stay meaningful after
// the payload is destroyed.
//
// The zero value is an empty observer.
type Weak[T any] struct {
	_   noCopy
	cb  *ControlBlock
	ptr *T
}

// Clone returns another observer of the same group.
func (w *Weak[T]) Clone() *Weak[T] {
	if w == nil {
		return &Weak[T]{}
	}
	if w.cb != nil {
		w.cb.IncreaseWeak()
	}
	return &Weak[T]{cb: w.cb, ptr: w.ptr}
}

// Lock returns a new strong handle when the group is still alive.
func (w *Weak[T]) Lock() (*Shared[T], bool) {
	if w == nil || w.cb == nil || !w.cb.tryIncreaseStrong() {
		return nil, false
	}
	return &Shared[T]{cb: w.cb, ptr: w.ptr}, true
}

// Load returns a copy of the payload, ErrExpired when the group is gone.
func (w *Weak[T]) Load() (T, error) {
	s, ok := w.Lock()
	if !ok {
		var zero T
		return zero, ErrExpired
	}
	defer s.Release()
	return s.Load()
}

// Expired reports whether the observed payload has been destroyed. An
// empty observer is expired.
func (w *Weak[T]) Expired() bool {
	return w == nil || w.cb == nil || w.cb.Expired()
}

// UseCount returns the strong count of the observed group.
func (w *Weak[T]) UseCount() int {
	if w == nil || w.cb == nil {
		return 0
	}
	return w.cb.UseCount()
}

// Reset stops observing and makes w empty.
func (w *Weak[T]) Reset() {
	cb := w.cb
	w.cb, w.ptr = nil, nil
	if cb != nil {
		cb.DecreaseWeak()
	}
}

// Release is the observer's destructor; idempotent and nil-safe.
func (w *Weak[T]) Release() {
	if w == nil {
		return
	}
	w.Reset()
}

// Swap exchanges two observers.
func (w *Weak[T]) Swap(o *Weak[T]) {
	w.cb, o.cb = o.cb, w.cb
	w.ptr, o.ptr = o.ptr, w.ptr
}
