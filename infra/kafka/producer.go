// Package kafka forwards ownership events to Kafka through shared
// kafka-go writers, one per topic.
package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"rc/domain/ownership"
	"rc/service/registry"
)

// MessageWriter is the part of *kafka.Writer producers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicWriter is the shared payload: one writer per topic.
type topicWriter struct {
	topic string
	w     MessageWriter
	log   zerolog.Logger
}

func (t *topicWriter) Close() error {
	err := t.w.Close()
	t.log.Info().Err(err).Str("topic", t.topic).Msg("kafka writer closed")
	return err
}

// Config configures Writers.
type Config struct {
	Brokers []string
	// Linger keeps this many idle topic writers open.
	Linger  int
	Tracker *ownership.Tracker
	Log     zerolog.Logger
	// NewWriter overrides writer construction. Nil builds a kafka.Writer
	// for Brokers.
	NewWriter func(topic string) MessageWriter
}

// Writers shares one writer per topic between producers.
type Writers struct {
	reg *registry.Registry[string, topicWriter]
	log zerolog.Logger
}

func NewWriters(cfg Config) (*Writers, error) {
	log := cfg.Log.With().Str("component", "kafka").Logger()
	newWriter := cfg.NewWriter
	if newWriter == nil {
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("kafka: no brokers configured")
		}
		brokers := cfg.Brokers
		newWriter = func(topic string) MessageWriter {
			return &kafka.Writer{
				Addr:         kafka.TCP(brokers...),
				Topic:        topic,
				RequiredAcks: kafka.RequireAll,
				Async:        false,
				BatchTimeout: 10 * time.Millisecond,
			}
		}
	}

	open := func(_ context.Context, topic string) (*topicWriter, error) {
		log.Info().Str("topic", topic).Msg("kafka writer opened")
		return &topicWriter{topic: topic, w: newWriter(topic), log: log}, nil
	}
	reg, err := registry.New("kafka", open,
		registry.WithTracker[topicWriter](cfg.Tracker),
		registry.WithLinger[topicWriter](cfg.Linger),
		registry.WithLogger[topicWriter](cfg.Log),
	)
	if err != nil {
		return nil, err
	}
	return &Writers{reg: reg, log: log}, nil
}

// Producer returns a producer for topic. Producers of one topic share a
// writer, which closes with the last of them.
func (w *Writers) Producer(ctx context.Context, topic string) (*Producer, error) {
	h, err := w.reg.Acquire(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &Producer{writers: w, writer: h}, nil
}

// Open returns the number of open topic writers.
func (w *Writers) Open() int { return w.reg.Len() }

func (w *Writers) Close() error { return w.reg.Close() }

// Producer sends messages to one topic.
type Producer struct {
	writers *Writers
	writer  *ownership.Shared[topicWriter]
}

var ErrProducerClosed = errors.New("kafka: producer closed")

func (p *Producer) Topic() string {
	if tw := p.writer.Get(); tw != nil {
		return tw.topic
	}
	return ""
}

func (p *Producer) Send(
	ctx context.Context,
	key []byte,
	value []byte,
) error {
	tw := p.writer.Get()
	if tw == nil {
		return ErrProducerClosed
	}
	return tw.w.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

// Close releases the producer's share of the topic writer.
func (p *Producer) Close() error {
	if p.writer.Owning() {
		p.writers.reg.Release(p.writer)
	}
	return nil
}
