package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/code-sigs/go-naming/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	Service string `json:"service"`
}

func TestProducer_Send(t *testing.T) {
	mp := mocks.NewSyncProducer(t, SaramaConfig(&Config{}))
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "naming-events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "EchoService" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var ev event
		if err := json.Unmarshal(value, &ev); err != nil || ev.Service != "EchoService" {
			return errors.New("unexpected value " + string(value))
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[trace.MetadataKey] != "trace-1" || headers["source"] != "test" {
			return errors.New("unexpected headers")
		}
		return nil
	})

	p := NewProducerWith[event]("naming-events", mp)
	ctx := trace.WithTraceID(context.Background(), "trace-1")
	require.NoError(t, p.Send(ctx, "EchoService", &event{Service: "EchoService"}, map[string]string{"source": "test"}))
	require.NoError(t, p.Close())
}

func TestProducer_SendError(t *testing.T) {
	mp := mocks.NewSyncProducer(t, SaramaConfig(&Config{}))
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewProducerWith[event]("naming-events", mp)
	err := p.Send(context.Background(), "", &event{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestConfig(t *testing.T) {
	assert.False(t, (*Config)(nil).Enabled())
	assert.False(t, (&Config{Endpoints: []string{"127.0.0.1:9092"}}).Enabled())
	assert.True(t, (&Config{Endpoints: []string{"127.0.0.1:9092"}, Topic: "t"}).Enabled())

	sc := SaramaConfig(&Config{Username: "u", Password: "p"})
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
}
