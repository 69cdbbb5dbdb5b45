package memory

import (
	"sync"

	"rc/domain/ownership"
)

// Pool is a typed object pool.
// It is type-safe for normal use, but can also participate
// in epoch-based reclamation via PutAny.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// PutAny allows Pool[T] to satisfy ReclaimablePool.
func (p *Pool[T]) PutAny(v any) {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.Pool: PutAny received wrong type")
	}
	p.Put(obj)
}

// Deleter returns a destruction policy that destroys a payload, zeroes it
// and hands its memory back to p.
func (p *Pool[T]) Deleter() ownership.Deleter[T] {
	return PoolDeleter[T]{pool: p}
}

// PoolDeleter recycles destroyed payloads into a Pool.
type PoolDeleter[T any] struct {
	pool *Pool[T]
}

func (d PoolDeleter[T]) Delete(v *T) {
	ownership.DefaultDeleter[T]{}.Delete(v)
	var zero T
	*v = zero
	d.pool.Put(v)
}

// NewShared takes an object from the pool, lets init fill it and hands it
// to a new ownership group that returns it to the pool on expiry. When the
// group cannot be created the object goes straight back to the pool.
func NewShared[T any](p *Pool[T], init func(*T), opts ...ownership.Option) (*ownership.Shared[T], error) {
	v := p.Get()
	if init != nil {
		init(v)
	}
	s, err := ownership.NewWithDeleter(v, p.Deleter(), opts...)
	if err != nil {
		var zero T
		*v = zero
		p.Put(v)
		return nil, err
	}
	return s, nil
}
