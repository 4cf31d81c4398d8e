package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/trace"
)

type Config struct {
	Endpoints []string `mapstructure:"endpoints"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Topic     string   `mapstructure:"topic"`
}

func (c *Config) Enabled() bool {
	return c != nil && len(c.Endpoints) > 0 && c.Topic != ""
}

// SaramaConfig 同步生产者配置：全部副本确认，失败重试一次
func SaramaConfig(cfg *Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Retry.Max = 1
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	// sasl认证
	if cfg.Username != "" && cfg.Password != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.Username
		sc.Net.SASL.Password = cfg.Password
	}
	return sc
}

// Producer 把 T 编码为 JSON 发到固定 topic
type Producer[T any] struct {
	topic    string
	producer sarama.SyncProducer
}

func NewProducer[T any](cfg *Config) (*Producer[T], error) {
	p, err := sarama.NewSyncProducer(cfg.Endpoints, SaramaConfig(cfg))
	if err != nil {
		return nil, errs.Wrap(err, "create kafka producer")
	}
	return NewProducerWith[T](cfg.Topic, p), nil
}

func NewProducerWith[T any](topic string, p sarama.SyncProducer) *Producer[T] {
	return &Producer[T]{topic: topic, producer: p}
}

// Send key 决定分区，同一 key 的消息保持顺序；ctx 中的 traceID 写入消息头
func (p *Producer[T]) Send(ctx context.Context, key string, obj *T, header map[string]string) error {
	value, err := json.Marshal(obj)
	if err != nil {
		return errs.Wrap(err, "marshal kafka message")
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if traceID := trace.GetTraceID(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(trace.MetadataKey), Value: []byte(traceID)})
	}
	for k, v := range header {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	if _, _, err = p.producer.SendMessage(msg); err != nil {
		return errs.Wrap(err, "send kafka message to "+p.topic)
	}
	return nil
}

func (p *Producer[T]) Close() error {
	return p.producer.Close()
}
