// Package soak generates ownership traffic: it builds groups, shares them
// across clones, weak observers and epoch readers, then lets them expire.
// Running it against a node exercises accounting, deferred reclamation and
// every exporter wired to the tracker.
package soak

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
	"rc/infra/memory"
)

// Buffer is the pooled payload.
type Buffer struct {
	Data []byte
	Seq  uint64
}

// header is the inline payload built next to its control block.
type header struct {
	seq  uint64
	size int
}

type Soak struct {
	tracker *ownership.Tracker
	domain  *memory.Domain
	reader  *memory.ReaderEpoch
	pool    *memory.Pool[Buffer]
	size    int
	fanout  int
	seq     uint64
	log     zerolog.Logger

	rejected int64
}

func New(t *ownership.Tracker, d *memory.Domain, size, fanout int, log zerolog.Logger) *Soak {
	return &Soak{
		tracker: t,
		domain:  d,
		reader:  d.NewReader(),
		pool:    memory.NewPool(func() *Buffer { return &Buffer{Data: make([]byte, 0, size)} }),
		size:    size,
		fanout:  fanout,
		log:     log.With().Str("job", "soak").Logger(),
	}
}

// Step runs one round. It returns ownership.ErrResourceExhausted when the
// tracker budget refused a group.
func (s *Soak) Step() error {
	s.seq++
	seq := s.seq

	buf := s.pool.Get()
	buf.Seq = seq
	buf.Data = append(buf.Data[:0], make([]byte, s.size)...)
	h, err := ownership.NewWithDeleter(buf,
		memory.Deferred(s.domain, s.pool.Deleter()),
		ownership.WithTracker(s.tracker),
	)
	if err != nil {
		s.pool.Put(buf)
		s.rejected++
		return err
	}
	defer h.Release()

	meta, err := ownership.MakeShared(header{seq: seq, size: len(buf.Data)}, ownership.WithTracker(s.tracker))
	if err != nil {
		s.rejected++
		return err
	}
	defer meta.Release()

	w := h.Weak()
	defer w.Release()

	clones := make([]*ownership.Shared[Buffer], 0, s.fanout)
	for i := 0; i < s.fanout; i++ {
		clones = append(clones, h.Clone())
	}

	// Readers may keep using the payload after every handle is gone; the
	// domain holds its destruction back until they exit.
	s.reader.Enter()
	view := h.Get()
	for _, c := range clones {
		c.Release()
	}
	h.Reset()
	if _, ok := w.Lock(); ok {
		s.reader.Exit()
		return errors.AssertionFailedf("soak: group %d alive after last release", seq)
	}
	if view.Seq != seq || len(view.Data) != meta.Get().size {
		s.reader.Exit()
		return errors.AssertionFailedf("soak: payload %d reclaimed under an active reader", seq)
	}
	s.reader.Exit()
	return nil
}

// Rejected returns how many groups the budget refused.
func (s *Soak) Rejected() int64 { return s.rejected }

// Run calls Step every interval until ctx is done.
func (s *Soak) Run(ctx context.Context, interval time.Duration) error {
	s.log.Info().Dur("interval", interval).Int("size", s.size).Int("fanout", s.fanout).Msg("soak started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Uint64("rounds", s.seq).Int64("rejected", s.rejected).Msg("soak stopped")
			return nil
		case <-ticker.C:
			err := s.Step()
			switch {
			case err == nil:
			case errors.Is(err, ownership.ErrResourceExhausted):
				s.log.Debug().Err(err).Msg("budget refused group")
			default:
				return err
			}
		}
	}
}
