package ownership

import (
	"fmt"
	"unsafe"
)

// noCopy makes `go vet` flag handles copied by value. Copying a handle
// struct would create an owner the control block does not count.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Shared is a strong handle to a value owned by an ownership group.
//
// The zero value is an empty handle. The handle keeps the group (cb) apart
// from the pointer it reports (ptr) so aliases and converted views can share
// a group whose native payload has another type. Only the control block ever
// destroys the payload.
type Shared[T any] struct {
	_   noCopy
	cb  *ControlBlock
	ptr *T
}

// Null returns an empty handle.
func Null[T any]() *Shared[T] {
	return &Shared[T]{}
}

// New takes ownership of p, which is destroyed with DefaultDeleter once the
// last strong handle is released. On error no ownership is claimed and the
// caller remains responsible for p.
func New[T any](p *T, opts ...Option) (*Shared[T], error) {
	return NewWithDeleter(p, DefaultDeleter[T]{}, opts...)
}

// NewWithDeleter is New with an explicit destruction policy. A nil deleter
// means DefaultDeleter.
func NewWithDeleter[T any](p *T, d Deleter[T], opts ...Option) (*Shared[T], error) {
	b, err := newPointerBlock(p, d, buildConfig(opts))
	if err != nil {
		return nil, err
	}
	bindSelf(&b.ControlBlock, p)
	return &Shared[T]{cb: &b.ControlBlock, ptr: p}, nil
}

// Clone returns a new strong handle in the same group.
func (s *Shared[T]) Clone() *Shared[T] {
	if s == nil {
		return Null[T]()
	}
	if s.cb != nil {
		s.cb.IncreaseStrong()
	}
	return &Shared[T]{cb: s.cb, ptr: s.ptr}
}

// Convert returns a new strong handle in s's group reporting conv(s.Get()),
// typically an embedded struct or an interface view of the payload. conv is
// not called for a nil payload.
func Convert[U, T any](s *Shared[T], conv func(*T) *U) *Shared[U] {
	if s == nil {
		return Null[U]()
	}
	var p *U
	if s.ptr != nil {
		p = conv(s.ptr)
	}
	if s.cb != nil {
		s.cb.IncreaseStrong()
	}
	return &Shared[U]{cb: s.cb, ptr: p}
}

// Alias returns a new strong handle in s's group that reports p. The group,
// not p, decides when anything is destroyed. Aliasing an empty handle yields
// a non-owning handle reporting p.
func Alias[U, T any](s *Shared[T], p *U) *Shared[U] {
	out := &Shared[U]{ptr: p}
	if s != nil && s.cb != nil {
		s.cb.IncreaseStrong()
		out.cb = s.cb
	}
	return out
}

// Move transfers s's ownership to a new handle and leaves s empty.
func (s *Shared[T]) Move() *Shared[T] {
	if s == nil {
		return Null[T]()
	}
	m := &Shared[T]{cb: s.cb, ptr: s.ptr}
	s.cb, s.ptr = nil, nil
	return m
}

// Assign makes s share o's group and pointer. Assigning a handle to itself,
// or to a handle already in the same state, changes nothing.
func (s *Shared[T]) Assign(o *Shared[T]) {
	if s == o {
		return
	}
	var cb *ControlBlock
	var ptr *T
	if o != nil {
		cb, ptr = o.cb, o.ptr
	}
	if cb == s.cb && ptr == s.ptr {
		return
	}
	if cb != nil {
		cb.IncreaseStrong()
	}
	old := s.cb
	s.cb, s.ptr = cb, ptr
	if old != nil {
		old.DecreaseStrong()
	}
}

// AssignMove transfers o's ownership to s, leaving o empty. The group s left
// is released first; o's group gains no owner.
func (s *Shared[T]) AssignMove(o *Shared[T]) {
	if s == o {
		return
	}
	var cb *ControlBlock
	var ptr *T
	if o != nil {
		cb, ptr = o.cb, o.ptr
		o.cb, o.ptr = nil, nil
	}
	old := s.cb
	s.cb, s.ptr = cb, ptr
	if old != nil {
		old.DecreaseStrong()
	}
}

// Reset leaves the current group and makes s empty.
func (s *Shared[T]) Reset() {
	if s == nil {
		return
	}
	cb := s.cb
	s.cb, s.ptr = nil, nil
	if cb != nil {
		cb.DecreaseStrong()
	}
}

// ResetTo leaves the current group and takes ownership of p in a new group.
// The new control block is admitted first: on error s is unchanged and p is
// not owned.
func (s *Shared[T]) ResetTo(p *T, opts ...Option) error {
	b, err := newPointerBlock(p, DefaultDeleter[T]{}, buildConfig(opts))
	if err != nil {
		return err
	}
	s.Reset()
	s.cb, s.ptr = &b.ControlBlock, p
	bindSelf(&b.ControlBlock, p)
	return nil
}

// Release drops s's ownership. It is the handle's destructor: idempotent,
// safe on nil, and usually deferred right after construction.
func (s *Shared[T]) Release() {
	s.Reset()
}

// Swap exchanges the state of two handles. Swapping with nil is a no-op.
func (s *Shared[T]) Swap(o *Shared[T]) {
	if s == nil || o == nil {
		return
	}
	s.cb, o.cb = o.cb, s.cb
	s.ptr, o.ptr = o.ptr, s.ptr
}

// Get returns the reported pointer, nil for an empty handle.
func (s *Shared[T]) Get() *T {
	if s == nil {
		return nil
	}
	return s.ptr
}

// MustGet returns the reported pointer and panics with ErrNullDeref when it
// is nil.
func (s *Shared[T]) MustGet() *T {
	p := s.Get()
	if p == nil {
		panic(nullDeref[T]("Shared"))
	}
	return p
}

// Deref returns a copy of the payload and panics with ErrNullDeref when the
// handle reports nil.
func (s *Shared[T]) Deref() T {
	return *s.MustGet()
}

// Load is Deref returning ErrNullDeref instead of panicking.
func (s *Shared[T]) Load() (T, error) {
	p := s.Get()
	if p == nil {
		var zero T
		return zero, nullDeref[T]("Shared")
	}
	return *p, nil
}

// UseCount returns the number of strong owners of s's group, 0 when s is
// empty.
func (s *Shared[T]) UseCount() int {
	if s == nil || s.cb == nil {
		return 0
	}
	return s.cb.UseCount()
}

// Valid reports whether s reports a non-nil pointer.
func (s *Shared[T]) Valid() bool {
	return s.Get() != nil
}

// Owning reports whether s belongs to an ownership group.
func (s *Shared[T]) Owning() bool {
	return s != nil && s.cb != nil
}

// ControlBlock exposes s's group for diagnostics. It is nil for an empty
// handle.
func (s *Shared[T]) ControlBlock() *ControlBlock {
	if s == nil {
		return nil
	}
	return s.cb
}

// Weak returns a weak observer of s's group.
func (s *Shared[T]) Weak() *Weak[T] {
	w := &Weak[T]{}
	if s != nil && s.cb != nil {
		s.cb.IncreaseWeak()
		w.cb, w.ptr = s.cb, s.ptr
	}
	return w
}

func (s *Shared[T]) String() string {
	if !s.Owning() {
		return fmt.Sprintf("Shared[%s](%p)", typeName[T](), s.Get())
	}
	return fmt.Sprintf("Shared[%s](%p, block=%d, use=%d)", typeName[T](), s.ptr, s.cb.id, s.cb.strong)
}

// Equal reports whether a and b report the same address. Group identity is
// ignored: two empty handles are equal, and aliases of one address from
// unrelated groups are equal.
func Equal[T, U any](a *Shared[T], b *Shared[U]) bool {
	return unsafe.Pointer(a.Get()) == unsafe.Pointer(b.Get())
}
