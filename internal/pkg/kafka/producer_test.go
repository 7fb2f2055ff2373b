package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduce(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"hello":"world"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewFromSyncProducer(sp, time.Millisecond)
	defer p.Close()

	_, _, err := p.Produce(context.Background(), "notifications", []byte("alice"), []byte(`{"hello":"world"}`))
	require.NoError(t, err)
}

func TestProduceWithRetry(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndSucceed()

	p := NewFromSyncProducer(sp, time.Millisecond)
	defer p.Close()

	_, _, err := p.ProduceWithRetry(context.Background(), "notifications", nil, []byte("x"), 3)
	assert.NoError(t, err)
}

func TestProduceWithRetryGivesUp(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewFromSyncProducer(sp, time.Millisecond)
	defer p.Close()

	_, _, err := p.ProduceWithRetry(context.Background(), "notifications", nil, []byte("x"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProduceCancelled(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewFromSyncProducer(sp, time.Millisecond)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Produce(ctx, "notifications", nil, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
