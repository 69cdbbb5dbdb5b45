package kafka

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"

	"rc/domain/ownership"
	"rc/infra/codec"
)

// Forwarder is an ownership.Observer that publishes block events to Kafka.
// Observe never blocks: events are queued and dropped when the queue is
// full, and Run does the sending.
type Forwarder struct {
	producer *Producer
	codec    codec.Serializer
	queue    chan ownership.Event
	dropped  atomic.Int64
	sent     atomic.Int64
	log      zerolog.Logger
}

func NewForwarder(p *Producer, s codec.Serializer, capacity int, log zerolog.Logger) *Forwarder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Forwarder{
		producer: p,
		codec:    s,
		queue:    make(chan ownership.Event, capacity),
		log:      log.With().Str("component", "forwarder").Str("topic", p.Topic()).Logger(),
	}
}

// Observe implements ownership.Observer.
func (f *Forwarder) Observe(e ownership.Event) {
	select {
	case f.queue <- e:
	default:
		f.dropped.Add(1)
	}
}

// Run sends queued events until ctx is done, then flushes what is left
// with a fresh context.
func (f *Forwarder) Run(ctx context.Context) error {
	f.log.Info().Msg("forwarder started")
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case e := <-f.queue:
			f.send(ctx, e)
		}
	}
}

func (f *Forwarder) flush() {
	for {
		select {
		case e := <-f.queue:
			f.send(context.Background(), e)
		default:
			return
		}
	}
}

func (f *Forwarder) send(ctx context.Context, e ownership.Event) {
	data, err := f.codec.EncodeEvent(e)
	if err != nil {
		f.log.Error().Err(err).Uint64("block", e.Block).Msg("encode event failed")
		return
	}
	key := strconv.AppendUint(nil, e.Block, 10)
	if err := f.producer.Send(ctx, key, data); err != nil {
		f.log.Warn().Err(err).Uint64("block", e.Block).Msg("publish event failed")
		return
	}
	f.sent.Add(1)
}

// Sent returns how many events were published.
func (f *Forwarder) Sent() int64 { return f.sent.Load() }

// Dropped returns how many events were dropped on a full queue.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }
