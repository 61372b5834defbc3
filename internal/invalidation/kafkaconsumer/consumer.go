// Package kafkaconsumer applies dataset invalidation events from Kafka to
// the worker registry.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/tilestats/internal/core/observability"
	"github.com/mohammed-shakir/tilestats/internal/invalidation"
	mylog "github.com/mohammed-shakir/tilestats/internal/logger"
)

// Target receives decoded events.
type Target interface {
	Invalidate(ctx context.Context, dataset string) error
	Drop(ctx context.Context, dataset string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Target
	dedupe *seqDedupe
}

func New(cfg Config, logger *slog.Logger, target Target) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		dedupe: newSeqDedupe(cfg.DedupeSize),
	}
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne}

	c.logger.InfoContext(ctx, "kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.ErrorContext(ctx, "kafka consumer error",
					"err", err, "brokers", c.cfg.Brokers, "topic", c.cfg.Topic)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single message. Undecodable or invalid events are
// logged and skipped; a failing target returns an error so the message is
// retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation("decode", err)
		c.logger.ErrorContext(ctx, "undecodable invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveInvalidation("invalid", err)
		c.logger.WarnContext(ctx, "invalid invalidation event",
			"dataset", ev.Dataset, "offset", msg.Offset, "err", err)
		return nil
	}

	seq := ev.Sequence()
	if c.dedupe.stale(ev.Dataset, seq) {
		obs.ObserveInvalidation("duplicate", nil)
		c.logger.DebugContext(ctx, "skipping stale invalidation event", "dataset", ev.Dataset, "seq", seq)
		return nil
	}

	var err error
	switch ev.Op {
	case invalidation.OpInvalidate:
		err = c.target.Invalidate(ctx, ev.Dataset)
	case invalidation.OpDrop:
		err = c.target.Drop(ctx, ev.Dataset)
	}
	obs.ObserveInvalidation(ev.Op, err)
	if err != nil {
		return fmt.Errorf("%s %q: %w", ev.Op, ev.Dataset, err)
	}
	c.dedupe.applied(ev.Dataset, seq)
	c.logger.InfoContext(ctx, "applied invalidation event", "dataset", ev.Dataset, "op", ev.Op, "seq", seq)
	return nil
}
