package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/joeblew999/plat-overlap/internal/metrics"
)

// Config is the Kafka consumer group setup.
type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// DefaultConfig fills the timeouts around brokers, topic and group.
func DefaultConfig(brokers []string, topic, group string) Config {
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}

// Consumer applies layer-change events from Kafka.
type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	inv     Invalidator
	metrics *metrics.Recorder
}

func New(cfg Config, logger *slog.Logger, inv Invalidator, rec *metrics.Recorder) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, inv: inv, metrics: rec}
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("invalidation: missing invalidator")
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

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("layer invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("layer invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne decodes, validates and applies one message. Malformed
// messages are logged and skipped so they do not block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Warn("skipping undecodable event",
			"err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.logger.Warn("skipping invalid event",
			"err", err, "layer", ev.Layer, "op", ev.Op, "offset", msg.Offset)
		return nil
	}

	l := strings.TrimSpace(ev.Layer)
	err := c.inv.Invalidate(ctx, l)
	c.metrics.Invalidation("kafka", err)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", l, err)
	}
	c.logger.Debug("layer invalidated", "layer", l, "op", ev.Op)
	return nil
}
