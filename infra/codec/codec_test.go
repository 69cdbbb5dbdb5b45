package codec

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc/domain/ownership"
	"rc/infra/memory"
)

func sampleReport() *Report {
	return &Report{
		Node: "node-a",
		At:   time.Unix(1700000000, 0),
		Tracker: ownership.Stats{
			Allocated: 10, Freed: 7, Live: 3, Expired: 6, Aborted: 1,
			Rejected: 2, Inline: 4, Pointer: 6, MaxLive: 64,
		},
		Reclaim: memory.DomainStats{Epoch: 9, Pending: 2, Overflow: 1, Reclaimed: 40, Readers: 3},
	}
}

func TestSerializers(t *testing.T) {
	for _, name := range []string{"json", "proto"} {
		t.Run(name, func(t *testing.T) {
			s, err := ByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())

			want := sampleReport()
			data, err := s.EncodeReport(want)
			require.NoError(t, err)
			got, err := s.DecodeReport(data)
			require.NoError(t, err)
			assert.Equal(t, want.Node, got.Node)
			assert.Equal(t, want.Tracker, got.Tracker)
			assert.Equal(t, want.Reclaim, got.Reclaim)
			assert.True(t, want.At.Equal(got.At))

			ev := ownership.Event{Block: 77, Kind: ownership.EventExpire, Variant: ownership.VariantInline, Type: "pkg.T"}
			data, err = s.EncodeEvent(ev)
			require.NoError(t, err)
			gotEv, err := s.DecodeEvent(data)
			require.NoError(t, err)
			assert.Equal(t, ev, gotEv)
		})
	}
}

func TestProtoRejectsCorruptFrames(t *testing.T) {
	data, err := ProtoSerializer{}.EncodeEvent(ownership.Event{Block: 1})
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xff
	_, err = ProtoSerializer{}.DecodeEvent(flipped)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = ProtoSerializer{}.DecodeEvent(data[:5])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = ProtoSerializer{}.DecodeEvent(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestJSONRejectsGarbage(t *testing.T) {
	_, err := JSONSerializer{}.DecodeReport([]byte("{"))
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	_, err = JSONSerializer{}.DecodeEvent([]byte(`{"kind":"explode","variant":"inline"}`))
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("msgpack")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
