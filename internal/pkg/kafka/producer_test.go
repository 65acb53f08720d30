package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupHub/config"
)

func testConfig(retries int) *config.KafkaConfig {
	return &config.KafkaConfig{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		Topic:        "grouphub.events",
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	}
}

type payload struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

func TestPublish_EncodesJSON(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got payload
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != "audit" || got.GroupID != "42" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerWithClient(mock, testConfig(0))
	require.NoError(t, p.Publish(context.Background(), "42", payload{Type: "audit", GroupID: "42"}))
	require.NoError(t, p.Close())
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndSucceed()

	p := NewProducerWithClient(mock, testConfig(2))
	require.NoError(t, p.Publish(context.Background(), "42", payload{Type: "audit"}))
	require.NoError(t, p.Close())
}

func TestPublish_GivesUp(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(mock, testConfig(1))
	err := p.Publish(context.Background(), "42", payload{Type: "audit"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "2 attempts")
	require.NoError(t, p.Close())
}

func TestPublish_CanceledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(mock, testConfig(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "42", payload{}), context.Canceled)
	require.NoError(t, p.Close())
}

func TestPublish_UnencodableEvent(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(mock, testConfig(0))

	err := p.Publish(context.Background(), "42", make(chan int))
	assert.ErrorContains(t, err, "encode")
	require.NoError(t, p.Close())
}
