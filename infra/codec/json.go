package codec

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"rc/domain/ownership"
	"rc/infra/memory"
)

// JSONSerializer implements Serializer with encoding/json.
type JSONSerializer struct{}

type jsonStats struct {
	Allocated int64 `json:"allocated"`
	Freed     int64 `json:"freed"`
	Live      int64 `json:"live"`
	Expired   int64 `json:"expired"`
	Aborted   int64 `json:"aborted"`
	Rejected  int64 `json:"rejected"`
	Inline    int64 `json:"inline"`
	Pointer   int64 `json:"pointer"`
	MaxLive   int64 `json:"max_live"`
}

type jsonReclaim struct {
	Epoch     uint64 `json:"epoch"`
	Pending   int    `json:"pending"`
	Overflow  int    `json:"overflow"`
	Reclaimed int64  `json:"reclaimed"`
	Readers   int    `json:"readers"`
}

type jsonReport struct {
	V       int         `json:"v"`
	Node    string      `json:"node"`
	At      int64       `json:"at"`
	Tracker jsonStats   `json:"tracker"`
	Reclaim jsonReclaim `json:"reclaim"`
}

type jsonEvent struct {
	V       int    `json:"v"`
	Block   uint64 `json:"block"`
	Kind    string `json:"kind"`
	Variant string `json:"variant"`
	Type    string `json:"type,omitempty"`
}

func (JSONSerializer) Name() string { return "json" }

func (JSONSerializer) EncodeReport(r *Report) ([]byte, error) {
	s, d := r.Tracker, r.Reclaim
	return json.Marshal(jsonReport{
		V:    1,
		Node: r.Node,
		At:   r.At.UnixNano(),
		Tracker: jsonStats{
			Allocated: s.Allocated, Freed: s.Freed, Live: s.Live,
			Expired: s.Expired, Aborted: s.Aborted, Rejected: s.Rejected,
			Inline: s.Inline, Pointer: s.Pointer, MaxLive: s.MaxLive,
		},
		Reclaim: jsonReclaim(d),
	})
}

func (JSONSerializer) DecodeReport(data []byte) (*Report, error) {
	var w jsonReport
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode report"), ErrCorruptRecord)
	}
	s := w.Tracker
	return &Report{
		Node: w.Node,
		At:   time.Unix(0, w.At),
		Tracker: ownership.Stats{
			Allocated: s.Allocated, Freed: s.Freed, Live: s.Live,
			Expired: s.Expired, Aborted: s.Aborted, Rejected: s.Rejected,
			Inline: s.Inline, Pointer: s.Pointer, MaxLive: s.MaxLive,
		},
		Reclaim: memory.DomainStats(w.Reclaim),
	}, nil
}

func (JSONSerializer) EncodeEvent(e ownership.Event) ([]byte, error) {
	return json.Marshal(jsonEvent{
		V:       1,
		Block:   e.Block,
		Kind:    e.Kind.String(),
		Variant: e.Variant.String(),
		Type:    e.Type,
	})
}

func (JSONSerializer) DecodeEvent(data []byte) (ownership.Event, error) {
	var w jsonEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ownership.Event{}, errors.Mark(errors.Wrap(err, "decode event"), ErrCorruptRecord)
	}
	return eventFrom(w.Block, w.Kind, w.Variant, w.Type)
}

func eventFrom(block uint64, kind, variant, typ string) (ownership.Event, error) {
	k, ok := parseKind(kind)
	if !ok {
		return ownership.Event{}, errors.Wrapf(ErrCorruptRecord, "event kind %q", kind)
	}
	v, ok := parseVariant(variant)
	if !ok {
		return ownership.Event{}, errors.Wrapf(ErrCorruptRecord, "variant %q", variant)
	}
	return ownership.Event{Block: block, Kind: k, Variant: v, Type: typ}, nil
}

func parseKind(s string) (ownership.EventKind, bool) {
	for _, k := range []ownership.EventKind{ownership.EventAlloc, ownership.EventExpire, ownership.EventFree, ownership.EventAbort} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

func parseVariant(s string) (ownership.Variant, bool) {
	switch s {
	case ownership.VariantPointer.String():
		return ownership.VariantPointer, true
	case ownership.VariantInline.String():
		return ownership.VariantInline, true
	}
	return 0, false
}
