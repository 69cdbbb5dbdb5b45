package memory

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
)

const inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section of its Domain.
type ReaderEpoch struct {
	domain *Domain
	epoch  atomic.Uint64
}

// Enter marks the reader as active at the domain's current epoch. Payloads
// retired from now on are not destroyed before Exit.
func (r *ReaderEpoch) Enter() {
	r.epoch.Store(r.domain.epoch.Load())
}

// Exit marks the reader as inactive.
func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// Active reports whether the reader is inside a read section.
func (r *ReaderEpoch) Active() bool {
	return r.Value() != inactive
}

// ReclaimablePool is the type-erased side of Pool used by RetireTo.
type ReclaimablePool interface {
	PutAny(any)
}

type retired struct {
	epoch   uint64
	destroy func()
}

// DomainStats reports reclamation progress.
type DomainStats struct {
	Epoch     uint64
	Pending   int
	Overflow  int
	Reclaimed int64
	Readers   int
}

// Domain defers destruction of retired payloads until every registered
// reader has left the read section it was in when the payload was retired.
//
// Retired items go to a fixed RetireRing; once the ring is full they spill
// into an unbounded overflow queue, preserving FIFO order.
type Domain struct {
	mu       sync.Mutex
	epoch    atomic.Uint64
	ring     *RetireRing
	overflow *queue.Queue
	readers  []*ReaderEpoch

	reclaimed atomic.Int64
	log       zerolog.Logger
}

// NewDomain creates a Domain whose ring holds ringSize items (a power of
// two).
func NewDomain(ringSize uint64, log zerolog.Logger) *Domain {
	return &Domain{
		ring:     NewRetireRing(ringSize),
		overflow: queue.New(),
		log:      log.With().Str("component", "reclaim").Logger(),
	}
}

// NewReader registers a reader. Readers start inactive.
func (d *Domain) NewReader() *ReaderEpoch {
	r := &ReaderEpoch{domain: d}
	r.epoch.Store(inactive)
	d.mu.Lock()
	d.readers = append(d.readers, r)
	d.mu.Unlock()
	return r
}

// Epoch returns the current epoch.
func (d *Domain) Epoch() uint64 {
	return d.epoch.Load()
}

// Retire schedules destroy to run once no reader can observe what it
// destroys.
func (d *Domain) Retire(destroy func()) {
	item := &retired{epoch: d.epoch.Load(), destroy: destroy}
	d.mu.Lock()
	if d.overflow.Length() > 0 || !d.ring.Enqueue(item) {
		d.overflow.Add(item)
	}
	d.mu.Unlock()
}

// RetireTo schedules obj to be returned to pool.
func (d *Domain) RetireTo(pool ReclaimablePool, obj any) {
	d.Retire(func() { pool.PutAny(obj) })
}

// Advance moves to the next epoch and runs every retired destructor that is
// now safe. It returns how many ran. Destructors run without the domain lock
// held, so they may retire further objects.
func (d *Domain) Advance() int {
	d.epoch.Add(1)

	d.mu.Lock()
	min := d.minReaderEpoch()
	var ready []*retired
	for {
		head := d.peek()
		if head == nil || (min != inactive && head.epoch >= min) {
			break
		}
		ready = append(ready, d.pop())
	}
	d.mu.Unlock()

	return d.run(ready)
}

// Drain runs every pending destructor regardless of readers. It is meant for
// shutdown, after all readers have stopped.
func (d *Domain) Drain() int {
	d.mu.Lock()
	var ready []*retired
	for d.peek() != nil {
		ready = append(ready, d.pop())
	}
	d.mu.Unlock()
	return d.run(ready)
}

// Pending returns the number of retired items not yet destroyed.
func (d *Domain) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring.Len() + d.overflow.Length()
}

func (d *Domain) Stats() DomainStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DomainStats{
		Epoch:     d.epoch.Load(),
		Pending:   d.ring.Len() + d.overflow.Length(),
		Overflow:  d.overflow.Length(),
		Reclaimed: d.reclaimed.Load(),
		Readers:   len(d.readers),
	}
}

func (d *Domain) run(ready []*retired) int {
	for _, item := range ready {
		item.destroy()
	}
	if n := len(ready); n > 0 {
		d.reclaimed.Add(int64(n))
		d.log.Debug().Int("reclaimed", n).Uint64("epoch", d.epoch.Load()).Msg("retired payloads destroyed")
	}
	return len(ready)
}

// peek refills the ring from the overflow queue when it runs dry, so the
// ring always holds the oldest items. Callers hold d.mu.
func (d *Domain) peek() *retired {
	if d.ring.IsEmpty() {
		for d.overflow.Length() > 0 && !d.ring.IsFull() {
			d.ring.Enqueue(d.overflow.Remove())
		}
	}
	head, _ := d.ring.Peek().(*retired)
	return head
}

func (d *Domain) pop() *retired {
	item, _ := d.ring.Dequeue().(*retired)
	return item
}

func (d *Domain) minReaderEpoch() uint64 {
	min := inactive
	for _, r := range d.readers {
		if v := r.Value(); v < min {
			min = v
		}
	}
	return min
}

// -------------------- Deleter --------------------

// DeferredDeleter is a destruction policy that hands payloads to a Domain
// instead of destroying them on the spot. Next performs the actual
// destruction once the domain allows it; nil means DefaultDeleter.
type DeferredDeleter[T any] struct {
	Domain *Domain
	Next   ownership.Deleter[T]
}

// Deferred builds a DeferredDeleter.
func Deferred[T any](d *Domain, next ownership.Deleter[T]) DeferredDeleter[T] {
	return DeferredDeleter[T]{Domain: d, Next: next}
}

func (d DeferredDeleter[T]) Delete(p *T) {
	next := d.Next
	if next == nil {
		next = ownership.DefaultDeleter[T]{}
	}
	d.Domain.Retire(func() { next.Delete(p) })
}
