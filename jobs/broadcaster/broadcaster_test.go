package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc/domain/ownership"
	"rc/infra/codec"
	"rc/infra/memory"
)

func TestPublishOnceSendsEncodedReport(t *testing.T) {
	tr := ownership.NewTracker()
	h, err := ownership.MakeShared(3, ownership.WithTracker(tr))
	require.NoError(t, err)
	defer h.Release()

	producer := mocks.NewSyncProducer(t, nil)
	var sent []byte
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		sent = val
		return nil
	})

	b := New(producer, Config{
		Topic:   "rc.stats",
		Node:    "node-1",
		Codec:   codec.ProtoSerializer{},
		Tracker: tr,
		Domain:  memory.NewDomain(4, zerolog.Nop()),
		Log:     zerolog.Nop(),
	})
	require.NoError(t, b.PublishOnce())
	require.NoError(t, b.Close())

	r, err := codec.ProtoSerializer{}.DecodeReport(sent)
	require.NoError(t, err)
	assert.Equal(t, "node-1", r.Node)
	assert.Equal(t, int64(1), r.Tracker.Live)
	assert.Equal(t, int64(1), r.Tracker.Inline)
}

func TestPublishOnceReturnsProducerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b := New(producer, Config{Topic: "rc.stats", Tracker: ownership.NewTracker(), Log: zerolog.Nop()})
	err := b.PublishOnce()
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, b.Close())
}

// stopAfter cancels the run once n messages reached the mock, and refuses
// anything a late tick sends after that.
type stopAfter struct {
	sarama.SyncProducer
	n      int
	calls  int
	cancel context.CancelFunc
}

func (s *stopAfter) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	if s.calls > s.n {
		return 0, 0, sarama.ErrClosedClient
	}
	if s.calls == s.n {
		defer s.cancel()
	}
	return s.SyncProducer.SendMessage(msg)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndFail(sarama.ErrNotConnected)
	mock.ExpectSendMessageAndSucceed()

	ctx, cancel := context.WithCancel(context.Background())
	producer := &stopAfter{SyncProducer: mock, n: 3, cancel: cancel}
	b := New(producer, Config{Topic: "rc.stats", Tracker: ownership.NewTracker(), Log: zerolog.Nop()})

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, time.Millisecond) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
	require.NoError(t, b.Close())
}
