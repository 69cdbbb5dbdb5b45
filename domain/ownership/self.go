package ownership

// EnableSharedFromThis lets a value obtain a shared handle to itself. Embed it in
// the payload type:
//
//	type Session struct {
//		ownership.EnableSharedFromThis[Session]
//		...
//	}
//
// New, NewWithDeleter, MakeShared and MakeSharedFunc bind it to the group
// that takes ownership of the value. The binding is a weak reference, so it
// never keeps the value alive, and it is dropped when the value is destroyed.
type EnableSharedFromThis[T any] struct {
	self Weak[T]
}

// SharedFromThis returns a new strong handle to the enclosing value, or
// ErrNotOwned when no live group owns it.
func (e *EnableSharedFromThis[T]) SharedFromThis() (*Shared[T], error) {
	if s, ok := e.self.Lock(); ok {
		return s, nil
	}
	return nil, ErrNotOwned
}

// WeakFromThis returns a new weak handle to the enclosing value. It is empty
// when the value is not owned.
func (e *EnableSharedFromThis[T]) WeakFromThis() *Weak[T] {
	return e.self.Clone()
}

// bindSelf binds e to cb unless p is already owned by a live group. A
// binding recorded for another address was copied along with the value and
// holds no weak reference of its own, so it is overwritten without touching
// the block it names.
func (e *EnableSharedFromThis[T]) bindSelf(cb *ControlBlock, p *T) {
	if e.self.cb != nil && e.self.ptr == p {
		if !e.self.cb.Expired() {
			return
		}
		e.self.Reset()
	}
	cb.IncreaseWeak()
	e.self.cb = cb
	e.self.ptr = p
}

func (e *EnableSharedFromThis[T]) releaseSelf(cb *ControlBlock, p *T) {
	if e.self.cb == cb && e.self.ptr == p {
		e.self.Reset()
	}
}

type selfBinder[T any] interface {
	bindSelf(cb *ControlBlock, p *T)
}

type selfReleaser[T any] interface {
	releaseSelf(cb *ControlBlock, p *T)
}

func bindSelf[T any](cb *ControlBlock, p *T) {
	if p == nil {
		return
	}
	if b, ok := any(p).(selfBinder[T]); ok {
		b.bindSelf(cb, p)
	}
}

func unbindSelf[T any](p *T, cb *ControlBlock) {
	if r, ok := any(p).(selfReleaser[T]); ok {
		r.releaseSelf(cb, p)
	}
}
