package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("registry: closed")

// Opener creates the resource for key.
type Opener[K comparable, V any] func(ctx context.Context, key K) (*V, error)

type options[V any] struct {
	deleter ownership.Deleter[V]
	tracker *ownership.Tracker
	linger  int
	log     zerolog.Logger
}

// Option configures a Registry.
type Option[V any] func(*options[V])

// WithDeleter sets how resources are closed. Defaults to
// ownership.DefaultDeleter, which calls Close on io.Closer resources.
func WithDeleter[V any](d ownership.Deleter[V]) Option[V] {
	return func(o *options[V]) { o.deleter = d }
}

// WithTracker accounts the registry's control blocks on t.
func WithTracker[V any](t *ownership.Tracker) Option[V] {
	return func(o *options[V]) { o.tracker = t }
}

// WithLinger keeps the n most recently acquired resources open after their
// last caller releases them.
func WithLinger[V any](n int) Option[V] {
	return func(o *options[V]) { o.linger = n }
}

// WithLogger sets the registry logger.
func WithLogger[V any](l zerolog.Logger) Option[V] {
	return func(o *options[V]) { o.log = l }
}

// Registry hands out shared handles to resources keyed by K.
//
// Handles obtained from a Registry must be cloned and released through
// Clone and Release: ownership counters are not synchronized, the registry
// mutex serializes every change to them.
type Registry[K comparable, V any] struct {
	name string
	open Opener[K, V]
	opts options[V]
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[K]*ownership.Weak[V]
	linger  *lru.Cache[K, *ownership.Shared[V]]
	closed  bool
}

// New creates a Registry that opens resources with open.
func New[K comparable, V any](name string, open Opener[K, V], opts ...Option[V]) (*Registry[K, V], error) {
	o := options[V]{
		deleter: ownership.DefaultDeleter[V]{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry[K, V]{
		name:    name,
		open:    open,
		opts:    o,
		log:     o.log.With().Str("registry", name).Logger(),
		entries: make(map[K]*ownership.Weak[V]),
	}
	if o.linger > 0 {
		c, err := lru.NewWithEvict(o.linger, func(key K, s *ownership.Shared[V]) {
			// Evictions happen inside registry calls that hold r.mu.
			s.Release()
		})
		if err != nil {
			return nil, errors.Wrapf(err, "registry %s: linger cache", name)
		}
		r.linger = c
	}
	return r, nil
}

// Acquire returns a strong handle to the resource for key, opening it when
// no live handle exists.
func (r *Registry[K, V]) Acquire(ctx context.Context, key K) (*ownership.Shared[V], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if w, ok := r.entries[key]; ok {
		if s, ok := w.Lock(); ok {
			r.touch(key, s)
			r.log.Debug().Str("key", fmt.Sprint(key)).Int("use", s.UseCount()).Msg("resource reused")
			return s, nil
		}
		delete(r.entries, key)
		w.Release()
	}

	v, err := r.open(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "registry %s: open %v", r.name, key)
	}
	d := &entryDeleter[K, V]{r: r, key: key, next: r.opts.deleter}
	s, err := ownership.NewWithDeleter(v, d, ownership.WithTracker(r.opts.tracker))
	if err != nil {
		r.opts.deleter.Delete(v)
		return nil, errors.Wrapf(err, "registry %s: own %v", r.name, key)
	}
	r.entries[key] = s.Weak()
	r.touch(key, s)
	r.log.Debug().Str("key", fmt.Sprint(key)).Msg("resource opened")
	return s, nil
}

// touch records key as recently used. Callers hold r.mu.
func (r *Registry[K, V]) touch(key K, s *ownership.Shared[V]) {
	if r.linger == nil {
		return
	}
	// Add replaces values without calling the eviction callback, so only
	// add keys the cache does not hold yet.
	if _, ok := r.linger.Get(key); ok {
		return
	}
	r.linger.Add(key, s.Clone())
}

// Clone returns another handle to the same resource.
func (r *Registry[K, V]) Clone(s *ownership.Shared[V]) *ownership.Shared[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.Clone()
}

// Release drops s. The resource is closed when s was its last handle.
func (r *Registry[K, V]) Release(s *ownership.Shared[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Release()
}

// UseCount returns the number of live handles for key, lingering ones
// included.
func (r *Registry[K, V]) UseCount(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key].UseCount()
}

// Len returns the number of open resources.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes lingering resources nobody else holds and forgets expired
// entries. It returns how many entries were dropped.
func (r *Registry[K, V]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.entries)
	if r.linger != nil {
		for _, key := range r.linger.Keys() {
			if s, ok := r.linger.Peek(key); ok && s.UseCount() == 1 {
				r.linger.Remove(key)
			}
		}
	}
	for key, w := range r.entries {
		if w.Expired() {
			delete(r.entries, key)
			w.Release()
		}
	}
	return before - len(r.entries)
}

// Close releases lingering resources and stops handing out new ones.
// Resources still held by callers stay open until their last handle is
// released.
func (r *Registry[K, V]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.linger != nil {
		r.linger.Purge()
	}
	for key, w := range r.entries {
		if !w.Expired() {
			r.log.Warn().Str("key", fmt.Sprint(key)).Int("use", w.UseCount()).Msg("resource still held at close")
		}
		delete(r.entries, key)
		w.Release()
	}
	return nil
}

// entryDeleter forgets the registry entry before closing the resource.
type entryDeleter[K comparable, V any] struct {
	r    *Registry[K, V]
	key  K
	next ownership.Deleter[V]
}

// Delete runs with r.mu held: every path that drops the last strong handle
// goes through a locked registry method.
func (d *entryDeleter[K, V]) Delete(v *V) {
	r := d.r
	// Only the expiring group's weak handle reports expired; a newer entry
	// under the same key is left alone.
	if w, ok := r.entries[d.key]; ok && w.Expired() {
		delete(r.entries, d.key)
		w.Release()
	}
	d.next.Delete(v)
	r.log.Debug().Str("key", fmt.Sprint(d.key)).Msg("resource closed")
}
