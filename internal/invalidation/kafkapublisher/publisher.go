// Package kafkapublisher produces dataset invalidation events.
package kafkapublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/tilestats/internal/core/observability"
	"github.com/mohammed-shakir/tilestats/internal/invalidation"
)

type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	source   string
}

// New connects a synchronous producer. Messages are keyed by dataset so
// that events of one dataset stay on one partition.
func New(brokers []string, topic, source string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewWithProducer(prod, topic, source), nil
}

func NewWithProducer(p sarama.SyncProducer, topic, source string) *Publisher {
	return &Publisher{producer: p, topic: topic, source: source}
}

// Publish sends one event. A zero TS is set to now.
func (p *Publisher) Publish(ctx context.Context, ev invalidation.Event) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if ev.Version == 0 {
		ev.Version = 1
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if ev.Source == "" {
		ev.Source = p.source
	}
	if err := ev.Validate(); err != nil {
		return 0, 0, err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("encode event: %w", err)
	}
	partition, offset, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Dataset),
		Value: sarama.ByteEncoder(b),
	})
	obs.ObserveInvalidation("publish", err)
	if err != nil {
		return 0, 0, fmt.Errorf("send message: %w", err)
	}
	return partition, offset, nil
}

func (p *Publisher) Close() error { return p.producer.Close() }
