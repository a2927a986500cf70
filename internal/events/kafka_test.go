package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, cfg)

	var captured []byte
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "TRX-1" {
			return errors.New("unexpected key")
		}
		captured, err = msg.Value.Encode()
		return err
	})

	publisher := newKafkaPublisher(producer, "revenue.payments", zap.NewNop())
	err := publisher.Publish(context.Background(), Event{
		Type:          TypePaymentSettled,
		TransactionID: "TRX-1",
		ServiceCode:   "WTR",
		Total:         "270",
		Status:        "COMPLETED",
	})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())

	var decoded Event
	require.NoError(t, json.Unmarshal(captured, &decoded))
	assert.Equal(t, TypePaymentSettled, decoded.Type)
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, "270", decoded.Total)
}

func TestParseRequiredAcks(t *testing.T) {
	acks, err := parseRequiredAcks("leader")
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForLocal, acks)

	_, err = parseRequiredAcks("sometimes")
	assert.Error(t, err)

	assert.Equal(t, sarama.CompressionSnappy, parseCompression(""))
	assert.Equal(t, sarama.CompressionZSTD, parseCompression("ZSTD"))
}
