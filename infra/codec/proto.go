package codec

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"rc/domain/ownership"
	"rc/infra/memory"
)

// ProtoSerializer implements Serializer using protobuf Struct messages.
//
// Frame: [len:4 LE][crc32:4 LE][body]. Numbers travel as doubles, so
// counters above 2^53 lose precision.
type ProtoSerializer struct{}

func (ProtoSerializer) Name() string { return "proto" }

func (ProtoSerializer) EncodeReport(r *Report) ([]byte, error) {
	s, d := r.Tracker, r.Reclaim
	return encodeStruct(map[string]any{
		"v":    1,
		"node": r.Node,
		"at":   float64(r.At.UnixNano()),
		"tracker": map[string]any{
			"allocated": s.Allocated,
			"freed":     s.Freed,
			"live":      s.Live,
			"expired":   s.Expired,
			"aborted":   s.Aborted,
			"rejected":  s.Rejected,
			"inline":    s.Inline,
			"pointer":   s.Pointer,
			"max_live":  s.MaxLive,
		},
		"reclaim": map[string]any{
			"epoch":     float64(d.Epoch),
			"pending":   d.Pending,
			"overflow":  d.Overflow,
			"reclaimed": d.Reclaimed,
			"readers":   d.Readers,
		},
	})
}

func (ProtoSerializer) DecodeReport(data []byte) (*Report, error) {
	st, err := decodeStruct(data)
	if err != nil {
		return nil, err
	}
	f := st.GetFields()
	tr := f["tracker"].GetStructValue().GetFields()
	rc := f["reclaim"].GetStructValue().GetFields()
	num := func(m map[string]*structpb.Value, k string) int64 { return int64(m[k].GetNumberValue()) }

	return &Report{
		Node: f["node"].GetStringValue(),
		At:   time.Unix(0, num(f, "at")),
		Tracker: ownership.Stats{
			Allocated: num(tr, "allocated"),
			Freed:     num(tr, "freed"),
			Live:      num(tr, "live"),
			Expired:   num(tr, "expired"),
			Aborted:   num(tr, "aborted"),
			Rejected:  num(tr, "rejected"),
			Inline:    num(tr, "inline"),
			Pointer:   num(tr, "pointer"),
			MaxLive:   num(tr, "max_live"),
		},
		Reclaim: memory.DomainStats{
			Epoch:     uint64(num(rc, "epoch")),
			Pending:   int(num(rc, "pending")),
			Overflow:  int(num(rc, "overflow")),
			Reclaimed: num(rc, "reclaimed"),
			Readers:   int(num(rc, "readers")),
		},
	}, nil
}

func (ProtoSerializer) EncodeEvent(e ownership.Event) ([]byte, error) {
	return encodeStruct(map[string]any{
		"v":       1,
		"block":   float64(e.Block),
		"kind":    e.Kind.String(),
		"variant": e.Variant.String(),
		"type":    e.Type,
	})
}

func (ProtoSerializer) DecodeEvent(data []byte) (ownership.Event, error) {
	st, err := decodeStruct(data)
	if err != nil {
		return ownership.Event{}, err
	}
	f := st.GetFields()
	return eventFrom(
		uint64(f["block"].GetNumberValue()),
		f["kind"].GetStringValue(),
		f["variant"].GetStringValue(),
		f["type"].GetStringValue(),
	)
}

func encodeStruct(m map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	body, err := proto.Marshal(st)
	if err != nil {
		return nil, err
	}

	// Compute checksum + length prefix for durability
	header := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(header[:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(body))
	return append(header, body...), nil
}

func decodeStruct(data []byte) (*structpb.Struct, error) {
	if len(data) < 8 {
		return nil, ErrCorruptRecord
	}
	body := data[8:]
	if int(binary.LittleEndian.Uint32(data[:4])) != len(body) {
		return nil, ErrCorruptRecord
	}
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[4:8]) {
		return nil, ErrCorruptRecord
	}
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
