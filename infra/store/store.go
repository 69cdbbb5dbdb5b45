// Package store shares pebble databases between components.
//
// Opening the same directory twice yields two Store handles over one
// *pebble.DB; the database is closed when the last Store is closed.
package store

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
	"rc/service/registry"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// ErrClosed is returned when a closed Store is used.
var ErrClosed = errors.New("store: closed")

// Config configures a Stores registry.
type Config struct {
	// Sync makes every write durable before returning.
	Sync bool
	// Linger keeps this many recently closed databases open.
	Linger  int
	Tracker *ownership.Tracker
	Log     zerolog.Logger
	// Options is cloned for every database opened. Nil uses pebble
	// defaults.
	Options *pebble.Options
}

// Stores opens and shares pebble databases by directory.
type Stores struct {
	reg   *registry.Registry[string, pebble.DB]
	write *pebble.WriteOptions
	log   zerolog.Logger
}

// New creates a Stores registry.
func New(cfg Config) (*Stores, error) {
	s := &Stores{
		write: pebble.NoSync,
		log:   cfg.Log.With().Str("component", "store").Logger(),
	}
	if cfg.Sync {
		s.write = pebble.Sync
	}

	open := func(_ context.Context, dir string) (*pebble.DB, error) {
		opts := &pebble.Options{}
		if cfg.Options != nil {
			opts = cfg.Options.Clone()
		}
		db, err := pebble.Open(dir, opts)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("dir", dir).Msg("pebble opened")
		return db, nil
	}
	closeDB := ownership.DeleterFunc[pebble.DB](func(db *pebble.DB) {
		if err := db.Close(); err != nil {
			s.log.Error().Err(err).Msg("pebble close failed")
			return
		}
		s.log.Info().Msg("pebble closed")
	})

	reg, err := registry.New("pebble", open,
		registry.WithDeleter[pebble.DB](closeDB),
		registry.WithTracker[pebble.DB](cfg.Tracker),
		registry.WithLinger[pebble.DB](cfg.Linger),
		registry.WithLogger[pebble.DB](cfg.Log),
	)
	if err != nil {
		return nil, err
	}
	s.reg = reg
	return s, nil
}

// Open returns a Store over the database in dir, opening it if no other
// Store holds it.
func (s *Stores) Open(ctx context.Context, dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "store: resolve %s", dir)
	}
	h, err := s.reg.Acquire(ctx, abs)
	if err != nil {
		return nil, err
	}
	return &Store{stores: s, dir: abs, db: h}, nil
}

// Len returns the number of open databases.
func (s *Stores) Len() int { return s.reg.Len() }

// Close stops opening databases and closes the lingering ones.
func (s *Stores) Close() error { return s.reg.Close() }

// Store is one holder of a shared pebble database. A Store is not safe for
// concurrent Close; reads and writes are as safe as pebble's.
type Store struct {
	stores *Stores
	dir    string
	db     *ownership.Shared[pebble.DB]
}

// Dir returns the absolute database directory.
func (s *Store) Dir() string { return s.dir }

// DB exposes the underlying database. It is valid until Close.
func (s *Store) DB() *pebble.DB { return s.db.Get() }

// Clone returns another holder of the same database.
func (s *Store) Clone() *Store {
	return &Store{stores: s.stores, dir: s.dir, db: s.stores.reg.Clone(s.db)}
}

func (s *Store) handle() (*pebble.DB, error) {
	db := s.db.Get()
	if db == nil {
		return nil, ErrClosed
	}
	return db, nil
}

// Set writes key=value.
func (s *Store) Set(key, value []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.Set(key, value, s.stores.write)
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key []byte) ([]byte, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	val, closer, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Delete removes key.
func (s *Store) Delete(key []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.Delete(key, s.stores.write)
}

// Scan calls fn for every key starting with prefix, in key order. The
// slices passed to fn are only valid during the call.
func (s *Store) Scan(prefix []byte, fn func(key, value []byte) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close releases this holder. The database closes with its last holder.
// Close is idempotent.
func (s *Store) Close() error {
	if s.db.Owning() {
		s.stores.reg.Release(s.db)
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, nil when there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
