package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
)

// Consumer consumes the dead-letter queue on its own connection and
// durably records every rejected message: one row in the record store and
// one JSON file per message in the output directory.
type Consumer struct {
	topo      *config.TopologyConfig
	outputDir string
	conn      *rabbitmq.Connection
	store     RecordStore
	logger    *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string

	// started is read by the restart loop while Stop clears it from
	// another goroutine.
	started atomic.Bool
	wg      sync.WaitGroup
}

// NewConsumer creates a dead-letter consumer instance with dependencies.
func NewConsumer(topo *config.TopologyConfig, dlqCfg *config.DLQConfig, conn *rabbitmq.Connection, store RecordStore, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		topo:        topo,
		outputDir:   dlqCfg.OutputDirectory,
		conn:        conn,
		store:       store,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("eventing-dlq-%d", time.Now().Unix()),
	}
}

// Start declares the dead-letter topology idempotently, bounds the
// prefetch and begins consuming.
func (c *Consumer) Start() error {
	if c.topo.DeadLetterQueue == "" {
		return fmt.Errorf("dead-letter queue is required")
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create DLQ output directory %s: %w", c.outputDir, err)
	}

	if err := c.conn.DeclareDeadLetterTopology(c.topo); err != nil {
		return fmt.Errorf("failed to declare dead-letter topology: %w", err)
	}

	if err := c.startConsuming(); err != nil {
		return err
	}

	c.started.Store(true)
	c.logger.Info("DLQ consumer started and listening",
		zap.String("dead_letter_queue", c.topo.DeadLetterQueue),
		zap.String("output_directory", c.outputDir),
		zap.String("consumer_tag", c.consumerTag),
	)
	return nil
}

func (c *Consumer) startConsuming() error {
	if err := c.conn.SetQoS(c.topo.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.conn.ConsumeMessages(
		c.topo.DeadLetterQueue,
		c.consumerTag,
		false, // autoAck (we'll manually ACK)
		false, // exclusive
		false, // noLocal
		false, // noWait
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", c.topo.DeadLetterQueue, err)
	}

	c.wg.Add(1)
	go c.processMessages(messages)

	return nil
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping DLQ consumer",
		zap.String("consumer_tag", c.consumerTag),
	)
	c.started.Store(false)
	c.cancel()

	if ch := c.conn.GetChannel(); ch != nil {
		if err := ch.Cancel(c.consumerTag, false); err != nil {
			c.logger.Error("Failed to cancel DLQ consumer",
				zap.String("consumer_tag", c.consumerTag),
				zap.Error(err),
			)
		}
	}

	c.wg.Wait()
	c.logger.Info("DLQ consumer stopped")
}

func (c *Consumer) processMessages(messages <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("DLQ consumer context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				c.logger.Warn("DLQ message channel closed, attempting to restart consumer...",
					zap.String("dead_letter_queue", c.topo.DeadLetterQueue),
				)
				for c.started.Load() {
					select {
					case <-c.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)

					if !c.conn.IsHealthy() {
						continue
					}

					if err := c.startConsuming(); err != nil {
						c.logger.Error("Failed to restart DLQ consuming after channel close, will retry",
							zap.String("dead_letter_queue", c.topo.DeadLetterQueue),
							zap.Error(err),
						)
						time.Sleep(5 * time.Second)
						continue
					}

					c.logger.Info("Successfully restarted DLQ consumer after channel close",
						zap.String("dead_letter_queue", c.topo.DeadLetterQueue),
					)
					return
				}
				return
			}
			c.handleDelivery(msg)
		}
	}
}

// handleDelivery captures one dead-lettered message. The message is acked
// only after the durable store write succeeds; a failed write nacks with
// requeue so the record is retried rather than lost. The per-message file
// is best-effort on top of the store.
func (c *Consumer) handleDelivery(msg amqp.Delivery) {
	record := buildRecord(msg)

	c.logger.Warn("Captured dead-lettered message",
		zap.String("routing_key", record.Metadata.RoutingKey),
		zap.String("exchange", record.Metadata.Exchange),
		zap.String("message_id", record.Metadata.MessageID),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)

	stored, err := record.toMessage()
	if err == nil {
		err = c.store.Save(c.ctx, stored)
	}
	if err != nil {
		c.logger.Error("Failed to persist dead-letter record, requeueing",
			zap.String("message_id", record.Metadata.MessageID),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to nack dead-letter message",
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.Error(nackErr),
			)
		}
		return
	}

	if err := c.writeCaptureFile(record, msg.DeliveryTag); err != nil {
		c.logger.Error("Failed to write dead-letter capture file",
			zap.String("message_id", record.Metadata.MessageID),
			zap.Error(err),
		)
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack dead-letter message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}

func (c *Consumer) writeCaptureFile(record Record, deliveryTag uint64) error {
	serialized, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize dead-letter record: %w", err)
	}

	path := filepath.Join(c.outputDir, captureFileName(time.Now(), deliveryTag))
	if err := os.WriteFile(path, serialized, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
