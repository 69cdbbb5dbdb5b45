package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"rc/domain/ownership"
	"rc/infra/codec"
	"rc/infra/memory"
)

// Broadcaster periodically publishes the node's ownership report to Kafka.
type Broadcaster struct {
	producer sarama.SyncProducer
	topic    string
	node     string
	codec    codec.Serializer
	tracker  *ownership.Tracker
	domain   *memory.Domain
	log      zerolog.Logger
	now      func() time.Time
}

// Config configures a Broadcaster.
type Config struct {
	Topic   string
	Node    string
	Codec   codec.Serializer
	Tracker *ownership.Tracker
	// Domain is optional.
	Domain *memory.Domain
	Log    zerolog.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// NewProducer builds the sync producer used in production.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	return sarama.NewSyncProducer(brokers, cfg)
}

// New takes ownership of producer; Close closes it.
func New(producer sarama.SyncProducer, cfg Config) *Broadcaster {
	s := cfg.Codec
	if s == nil {
		s = codec.JSONSerializer{}
	}
	return &Broadcaster{
		producer: producer,
		topic:    cfg.Topic,
		node:     cfg.Node,
		codec:    s,
		tracker:  cfg.Tracker,
		domain:   cfg.Domain,
		log:      cfg.Log.With().Str("job", "broadcaster").Str("topic", cfg.Topic).Logger(),
		now:      time.Now,
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run publishes a report every interval until ctx is done. Failed publishes
// are logged and retried on the next tick.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) error {
	b.log.Info().Dur("interval", interval).Msg("broadcaster started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.PublishOnce(); err != nil {
				b.log.Warn().Err(err).Msg("publish failed")
			}
		}
	}
}

// ------------------------------------------------
// PUBLISH
// ------------------------------------------------

// PublishOnce encodes the current report and sends it.
func (b *Broadcaster) PublishOnce() error {
	r := &codec.Report{
		Node:    b.node,
		At:      b.now(),
		Tracker: b.tracker.Stats(),
	}
	if b.domain != nil {
		r.Reclaim = b.domain.Stats()
	}
	data, err := b.codec.EncodeReport(r)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(b.node),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("codec"), Value: []byte(b.codec.Name())},
		},
	}
	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	b.log.Debug().Int32("partition", partition).Int64("offset", offset).Int64("live", r.Tracker.Live).Msg("report published")
	return nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
