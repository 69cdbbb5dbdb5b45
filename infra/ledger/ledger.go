// Package ledger persists the lifecycle of ownership groups to pebble so
// leaked or long-lived blocks can be inspected after the fact.
package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
	"rc/infra/sequence"
	"rc/infra/store"
)

// -------------------- State --------------------

type State uint8

const (
	// StateLive: the block holds a live payload.
	StateLive State = iota
	// StateExpired: the payload is destroyed but weak handles still observe
	// the block.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "LIVE"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	State   State
	Variant ownership.Variant
	Seq     uint64
	At      int64
	Type    string
}

// ErrCorruptRecord is returned for records that fail to decode.
var ErrCorruptRecord = errors.New("ledger: corrupt record")

const headerLen = 1 + 1 + 8 + 8

// binary encoding: [state:1][variant:1][seq:8][at:8][type...]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Type))
	buf[0] = byte(r.State)
	buf[1] = byte(r.Variant)
	binary.BigEndian.PutUint64(buf[2:10], r.Seq)
	binary.BigEndian.PutUint64(buf[10:18], uint64(r.At))
	copy(buf[headerLen:], r.Type)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.Wrapf(ErrCorruptRecord, "length %d", len(b))
	}
	return Record{
		State:   State(b[0]),
		Variant: ownership.Variant(b[1]),
		Seq:     binary.BigEndian.Uint64(b[2:10]),
		At:      int64(binary.BigEndian.Uint64(b[10:18])),
		Type:    string(b[headerLen:]),
	}, nil
}

// -------------------- Ledger --------------------

// Ledger is an ownership.Observer recording every live and expired block.
// Released blocks are removed, so after a clean shutdown the ledger is
// empty.
type Ledger struct {
	store  *store.Store
	seq    *sequence.Sequencer
	log    zerolog.Logger
	failed atomic.Int64
	now    func() time.Time
}

// Open attaches a ledger to s. Records left by a previous run are kept and
// the sequencer resumes after the highest persisted sequence.
func Open(s *store.Store, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		store: s,
		seq:   sequence.New(0),
		log:   log.With().Str("component", "ledger").Logger(),
		now:   time.Now,
	}
	n := 0
	err := s.Scan([]byte(prefix), func(_, v []byte) error {
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		l.seq.Observe(rec.Seq)
		n++
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ledger: scan on open")
	}
	if n > 0 {
		l.log.Warn().Int("records", n).Msg("ledger holds blocks from a previous run")
	}
	return l, nil
}

// Observe implements ownership.Observer.
func (l *Ledger) Observe(e ownership.Event) {
	var err error
	switch e.Kind {
	case ownership.EventAlloc:
		err = l.put(e, StateLive)
	case ownership.EventExpire:
		err = l.put(e, StateExpired)
	case ownership.EventFree, ownership.EventAbort:
		err = l.store.Delete(keyFor(e.Block))
	}
	if err != nil {
		l.failed.Add(1)
		l.log.Error().Err(err).Uint64("block", e.Block).Stringer("event", e.Kind).Msg("ledger write failed")
	}
}

func (l *Ledger) put(e ownership.Event, s State) error {
	rec := Record{
		State:   s,
		Variant: e.Variant,
		Seq:     l.seq.Next(),
		At:      l.now().UnixNano(),
		Type:    e.Type,
	}
	return l.store.Set(keyFor(e.Block), encodeRecord(rec))
}

// Failed returns how many writes failed since Open.
func (l *Ledger) Failed() int64 { return l.failed.Load() }

// Get returns the record of block id.
func (l *Ledger) Get(id uint64) (Record, error) {
	v, err := l.store.Get(keyFor(id))
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(v)
}

// -------------------- Scan --------------------

// ScanByState iterates all records in the given state, in block order.
func (l *Ledger) ScanByState(state State, fn func(id uint64, rec Record) error) error {
	return l.store.Scan([]byte(prefix), func(k, v []byte) error {
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if rec.State != state {
			return nil
		}
		id, err := parseKey(k)
		if err != nil {
			return err
		}
		return fn(id, rec)
	})
}

// Counts returns the number of records per state.
func (l *Ledger) Counts() (map[State]int, error) {
	out := make(map[State]int)
	err := l.store.Scan([]byte(prefix), func(_, v []byte) error {
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		out[rec.State]++
		return nil
	})
	return out, err
}

// Reset deletes every record. Block ids restart with each tracker, so a
// process drops what a previous run left once it has reported it.
func (l *Ledger) Reset() error {
	var keys [][]byte
	err := l.store.Scan([]byte(prefix), func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := l.store.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// -------------------- Helpers --------------------

const prefix = "block/"

func keyFor(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(prefix))), "%d", &id)
	return id, err
}
