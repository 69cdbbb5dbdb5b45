package ownership

// Unique is an exclusive owner of a separately allocated value with a
// pluggable destruction policy. It shares no state with other handles.
//
// The zero value is empty and uses DefaultDeleter.
type Unique[T any] struct {
	_   noCopy
	ptr *T
	del Deleter[T]
}

// NewUnique takes exclusive ownership of p.
func NewUnique[T any](p *T) *Unique[T] {
	return &Unique[T]{ptr: p, del: DefaultDeleter[T]{}}
}

// NewUniqueWithDeleter takes exclusive ownership of p, destroyed by d. A nil
// deleter means DefaultDeleter.
func NewUniqueWithDeleter[T any](p *T, d Deleter[T]) *Unique[T] {
	if d == nil {
		d = DefaultDeleter[T]{}
	}
	return &Unique[T]{ptr: p, del: d}
}

func (u *Unique[T]) deleter() Deleter[T] {
	if u.del == nil {
		return DefaultDeleter[T]{}
	}
	return u.del
}

// Move transfers ownership and the deleter to a new handle; u is left empty.
func (u *Unique[T]) Move() *Unique[T] {
	m := &Unique[T]{ptr: u.ptr, del: u.deleter()}
	u.ptr = nil
	return m
}

// Assign destroys u's current value and takes o's value and deleter,
// leaving o empty. Nothing happens when both already hold the same pointer.
func (u *Unique[T]) Assign(o *Unique[T]) {
	if u == o || o.ptr == u.ptr {
		return
	}
	old, oldDel := u.ptr, u.deleter()
	u.ptr, u.del = o.ptr, o.deleter()
	o.ptr = nil
	if old != nil {
		oldDel.Delete(old)
	}
}

// Release relinquishes ownership without destroying the value.
func (u *Unique[T]) Release() *T {
	p := u.ptr
	u.ptr = nil
	return p
}

// Reset installs p and destroys the previous value, if any. Resetting to the
// pointer already owned keeps it alive instead of destroying the value the
// handle goes on to own.
func (u *Unique[T]) Reset(p *T) {
	old := u.ptr
	u.ptr = p
	if old != nil && old != p {
		u.deleter().Delete(old)
	}
}

// Destroy is the handle's destructor: Reset(nil).
func (u *Unique[T]) Destroy() {
	if u == nil {
		return
	}
	u.Reset(nil)
}

// Swap exchanges values and deleters.
func (u *Unique[T]) Swap(o *Unique[T]) {
	u.ptr, o.ptr = o.ptr, u.ptr
	u.del, o.del = o.del, u.del
}

// Get returns the owned pointer.
func (u *Unique[T]) Get() *T {
	if u == nil {
		return nil
	}
	return u.ptr
}

// GetDeleter returns the destruction policy.
func (u *Unique[T]) GetDeleter() Deleter[T] {
	return u.deleter()
}

// MustGet returns the owned pointer, panicking with ErrNullDeref when empty.
func (u *Unique[T]) MustGet() *T {
	p := u.Get()
	if p == nil {
		panic(nullDeref[T]("Unique"))
	}
	return p
}

// Deref returns a copy of the owned value, panicking when empty.
func (u *Unique[T]) Deref() T {
	return *u.MustGet()
}

// Valid reports whether u owns a value.
func (u *Unique[T]) Valid() bool {
	return u.Get() != nil
}

// FromUnique moves u's value into a new ownership group that keeps u's
// deleter. An empty u yields an empty handle. On error u keeps its value.
func FromUnique[T any](u *Unique[T], opts ...Option) (*Shared[T], error) {
	if u.Get() == nil {
		return Null[T](), nil
	}
	s, err := NewWithDeleter(u.ptr, u.deleter(), opts...)
	if err != nil {
		return nil, err
	}
	u.ptr = nil
	return s, nil
}
