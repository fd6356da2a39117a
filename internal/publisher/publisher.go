// Package publisher emits signed content events to the requests exchange.
package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
)

var (
	// ErrNotInitialized indicates Publish was called before Initialize.
	// This is a programming error in the host, reported immediately
	// instead of silently queueing.
	ErrNotInitialized = errors.New("publisher is not initialized")

	// ErrClosed indicates the publisher was already closed.
	ErrClosed = errors.New("publisher is closed")
)

// Publisher holds a long-lived connection and channel to the broker and
// publishes signed event envelopes with persistent delivery. It performs
// no retry loop: broker errors are counted and returned to the caller.
type Publisher struct {
	cfg     *config.RabbitMQConfig
	topo    *config.TopologyConfig
	conn    *rabbitmq.Connection
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New creates a publisher. Initialize must be called before Publish.
func New(cfg *config.RabbitMQConfig, topo *config.TopologyConfig, logger *zap.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		cfg:     cfg,
		topo:    topo,
		logger:  logger,
		metrics: m,
	}
}

// Initialize opens the broker connection and declares the requests
// exchange. It is safe to call once per publisher lifetime.
func (p *Publisher) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.initialized {
		return nil
	}

	conn := rabbitmq.NewConnection(p.cfg, "eventing-publisher", p.logger)
	conn.OnReturn = p.handleReturn
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("publisher failed to connect: %w", err)
	}

	if err := conn.DeclareRequestsExchange(p.topo); err != nil {
		conn.Close()
		return fmt.Errorf("publisher failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.initialized = true

	p.logger.Info("Publisher initialized",
		zap.String("exchange", p.topo.RequestsExchange),
	)
	return nil
}

// Publish serializes an already-signed event and publishes it with
// persistent delivery, a fresh message id, a unix timestamp and the
// mandatory flag so unroutable messages are reported rather than dropped.
func (p *Publisher) Publish(event *models.SecureContentEvent, routingKey string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.initialized {
		p.mu.Unlock()
		return ErrNotInitialized
	}
	conn := p.conn
	p.mu.Unlock()

	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.PublisherPublishFailures.Inc()
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	messageID := uuid.NewString()
	err = conn.Publish(
		p.topo.RequestsExchange,
		routingKey,
		true, // mandatory
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.metrics.PublisherPublishFailures.Inc()
		p.logger.Error("Failed to publish event",
			zap.String("event_id", event.ID.String()),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.metrics.PublisherMessagesPublished.Inc()
	p.logger.Info("Published event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_name", event.Name),
		zap.String("routing_key", routingKey),
		zap.String("message_id", messageID),
	)
	return nil
}

// handleReturn is invoked for mandatory publishes the broker could not
// route to any queue. Publish has already reported success by then, so
// the return is counted as a publish failure and logged.
func (p *Publisher) handleReturn(r amqp.Return) {
	p.metrics.PublisherPublishFailures.Inc()
	p.logger.Error("Broker returned unroutable message",
		zap.String("exchange", r.Exchange),
		zap.String("routing_key", r.RoutingKey),
		zap.String("message_id", r.MessageId),
		zap.String("reply_text", r.ReplyText),
	)
}

// Close releases the channel and connection. Publishing after Close fails
// with ErrClosed.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.initialized = false

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.logger.Info("Publisher closed")
}
