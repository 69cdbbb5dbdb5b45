// Package codec encodes tracker reports and block events for the wire.
package codec

import (
	"time"

	"github.com/cockroachdb/errors"

	"rc/domain/ownership"
	"rc/infra/memory"
)

// Report is a point-in-time view of a node's ownership accounting.
type Report struct {
	Node    string
	At      time.Time
	Tracker ownership.Stats
	Reclaim memory.DomainStats
}

// Serializer defines how reports and events are encoded.
type Serializer interface {
	Name() string
	EncodeReport(r *Report) ([]byte, error)
	DecodeReport(data []byte) (*Report, error)
	EncodeEvent(e ownership.Event) ([]byte, error)
	DecodeEvent(data []byte) (ownership.Event, error)
}

var (
	ErrCorruptRecord = errors.New("codec: corrupted record")
	ErrUnknownCodec  = errors.New("codec: unknown serializer")
)

// ByName returns the serializer registered under name ("json" or "proto").
func ByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSONSerializer{}, nil
	case "proto", "protobuf":
		return ProtoSerializer{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}
