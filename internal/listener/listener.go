// Package listener consumes signed content events from the work queue,
// verifies and validates them, and dispatches them to routing-key-specific
// handlers. Every rejection is a nack without requeue and flows to the
// dead-letter queue.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
)

// ErrNoSigningKey indicates the listener cannot start because the shared
// HMAC secret is absent. The process should stay up (health and metrics
// keep serving, listener_consumer_active stays 0) so operators see the
// fault instead of a crash loop.
var ErrNoSigningKey = errors.New("signing key is not configured, listener cannot verify messages")

// Handler processes one verified, validated event for a routing key.
type Handler func(ctx context.Context, event *models.SecureContentEvent) error

// drainWindow bounds how long Stop waits for in-flight messages.
const drainWindow = 30 * time.Second

// Listener owns the work-queue consumer and the per-message processing
// state machine.
type Listener struct {
	topo       *config.TopologyConfig
	signingKey string
	conn       *rabbitmq.Connection
	logger     *zap.Logger
	metrics    *metrics.Metrics

	handlers map[string]Handler

	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string

	// started is read by the restart loop while Stop clears it from
	// another goroutine.
	started atomic.Bool
	wg      sync.WaitGroup
}

// New creates a listener instance with dependencies. Handlers are attached
// with Register before Start.
func New(topo *config.TopologyConfig, signingKey string, conn *rabbitmq.Connection, logger *zap.Logger, m *metrics.Metrics) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		topo:        topo,
		signingKey:  signingKey,
		conn:        conn,
		logger:      logger,
		metrics:     m,
		handlers:    make(map[string]Handler),
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("eventing-listener-%d", time.Now().Unix()),
	}
}

// Register attaches a handler for a routing key. Must be called before
// Start; the handler map is read-only afterwards.
func (l *Listener) Register(routingKey string, handler Handler) {
	l.handlers[routingKey] = handler
}

// Start declares the topology, sets the prefetch bound and begins
// consuming. Topology mismatches and a missing signing key are startup
// faults; neither is retried here.
func (l *Listener) Start() error {
	if l.topo.WorkQueue == "" {
		return fmt.Errorf("work queue is required")
	}
	if l.signingKey == "" {
		return ErrNoSigningKey
	}

	if err := l.conn.DeclareWorkTopology(l.topo); err != nil {
		var setupErr *rabbitmq.SetupError
		if errors.As(err, &setupErr) {
			l.metrics.RabbitMQSetupFailures.WithLabelValues(setupErr.Step).Inc()
		}
		return fmt.Errorf("failed to declare topology: %w", err)
	}

	if err := l.startConsuming(); err != nil {
		return err
	}

	l.started.Store(true)
	l.metrics.ConsumerActive.Set(1)
	l.logger.Info("Listener started and consuming messages",
		zap.String("work_queue", l.topo.WorkQueue),
		zap.String("routing_key_pattern", l.topo.RoutingKeyPattern),
		zap.String("consumer_tag", l.consumerTag),
		zap.Int("prefetch_count", l.topo.PrefetchCount),
	)
	return nil
}

// startConsuming sets QoS and registers the consumer
func (l *Listener) startConsuming() error {
	if err := l.conn.SetQoS(l.topo.PrefetchCount, 0, false); err != nil {
		l.metrics.RabbitMQSetupFailures.WithLabelValues("set_qos").Inc()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := l.conn.ConsumeMessages(
		l.topo.WorkQueue,
		l.consumerTag,
		false, // autoAck (we'll manually ACK)
		false, // exclusive
		false, // noLocal
		false, // noWait
	)
	if err != nil {
		l.metrics.RabbitMQSetupFailures.WithLabelValues("consume").Inc()
		return fmt.Errorf("failed to start consuming from queue %s: %w", l.topo.WorkQueue, err)
	}

	l.wg.Add(1)
	go l.processMessages(messages)

	return nil
}

// Stop gracefully stops the listener: stop accepting deliveries, let
// in-flight work finish within the drain window, and mark the consumer
// inactive. Closing the channel and connection is the caller's job since
// it owns the Connection.
func (l *Listener) Stop() {
	l.logger.Info("Stopping listener",
		zap.String("consumer_tag", l.consumerTag),
	)
	l.started.Store(false)
	l.cancel()

	if ch := l.conn.GetChannel(); ch != nil {
		if err := ch.Cancel(l.consumerTag, false); err != nil {
			l.logger.Error("Failed to cancel consumer",
				zap.String("consumer_tag", l.consumerTag),
				zap.Error(err),
			)
		}
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainWindow):
		l.logger.Warn("Drain window elapsed with messages still in flight; they will be redelivered",
			zap.Duration("drain_window", drainWindow),
		)
	}

	l.metrics.ConsumerActive.Set(0)
	l.logger.Info("Listener stopped")
}

// processMessages processes deliveries until the context is cancelled.
// A closed delivery channel means the underlying AMQP channel died; wait
// for the connection to recover and re-register the consumer.
func (l *Listener) processMessages(messages <-chan amqp.Delivery) {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("Listener context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				l.logger.Warn("Message channel closed, attempting to restart consumer...",
					zap.String("work_queue", l.topo.WorkQueue),
				)
				for l.started.Load() {
					select {
					case <-l.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)

					if !l.conn.IsHealthy() {
						l.logger.Debug("Connection not healthy yet, waiting...",
							zap.String("work_queue", l.topo.WorkQueue),
						)
						continue
					}

					if err := l.startConsuming(); err != nil {
						l.logger.Error("Failed to restart consuming after channel close, will retry",
							zap.String("work_queue", l.topo.WorkQueue),
							zap.Error(err),
						)
						time.Sleep(5 * time.Second)
						continue
					}

					l.logger.Info("Successfully restarted consumer after channel close",
						zap.String("work_queue", l.topo.WorkQueue),
					)
					return
				}
				return
			}
			l.processDelivery(msg)
		}
	}
}
