package listener

import (
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/models"
	"github.com/contentsrus/eventing-svc/internal/security"
)

// processDelivery runs the per-message state machine:
//
//	received -> parsed -> key present -> signature valid -> schema valid
//	         -> dispatched -> ack
//
// Every rejection is a nack without requeue: bad JSON, a bad signature and
// a bad schema are non-transient defects that cannot self-heal on
// redelivery, so they are routed to the dead-letter queue instead of back
// onto the work queue. A handler failure does not prevent the ack; the
// transport contract is fulfilled once the message was received and
// attempted, and domain failures are surfaced through per-event-type
// counters and logs.
func (l *Listener) processDelivery(msg amqp.Delivery) {
	l.metrics.MessagesReceived.Inc()
	start := time.Now()
	defer func() {
		l.metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	var event models.SecureContentEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		l.metrics.MessagesInvalidJSON.Inc()
		l.logger.Error("Received message with invalid JSON, dead-lettering",
			zap.String("routing_key", msg.RoutingKey),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		l.reject(msg)
		return
	}

	if l.signingKey == "" {
		// Deployment fault: without the shared secret no message can be
		// trusted. Operator action is required.
		l.metrics.MessagesInvalidSignature.Inc()
		l.logger.Error("Signing key is not configured, cannot verify message; operator action required",
			zap.String("event_id", event.ID.String()),
			zap.String("routing_key", msg.RoutingKey),
		)
		l.reject(msg)
		return
	}

	if !security.Verify(&event, event.Signature, l.signingKey) {
		l.metrics.MessagesInvalidSignature.Inc()
		l.logger.Warn("Message failed signature verification, dead-lettering",
			zap.String("event_id", event.ID.String()),
			zap.String("hashed_user_id", event.HashedUserID),
			zap.String("routing_key", msg.RoutingKey),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
		)
		l.reject(msg)
		return
	}

	if err := event.Validate(); err != nil {
		l.metrics.MessagesSchemaInvalid.Inc()
		l.logger.Warn("Message failed schema validation, dead-lettering",
			zap.String("event_id", event.ID.String()),
			zap.String("routing_key", msg.RoutingKey),
			zap.String("reason", err.Error()),
		)
		l.reject(msg)
		return
	}

	handler, ok := l.handlers[msg.RoutingKey]
	if !ok {
		// Successfully consumed, intentionally a no-op.
		l.logger.Warn("No handler registered for routing key, acknowledging without dispatch",
			zap.String("event_id", event.ID.String()),
			zap.String("routing_key", msg.RoutingKey),
		)
		l.ack(msg)
		return
	}

	l.dispatch(msg.RoutingKey, handler, &event)
	l.ack(msg)
}

// dispatch invokes the handler for one event, containing errors and panics
// at this boundary and recording per-event-type outcomes.
func (l *Listener) dispatch(routingKey string, handler Handler, event *models.SecureContentEvent) {
	start := time.Now()
	defer func() {
		l.metrics.EventProcessingDuration.WithLabelValues(routingKey).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			l.metrics.EventsFailed.WithLabelValues(routingKey).Inc()
			l.logger.Error("Handler panicked while processing event",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", routingKey),
				zap.Any("panic", r),
			)
		}
	}()

	if err := handler(l.ctx, event); err != nil {
		l.metrics.EventsFailed.WithLabelValues(routingKey).Inc()
		l.logger.Error("Handler failed to process event",
			zap.String("event_id", event.ID.String()),
			zap.String("event_name", event.Name),
			zap.String("event_type", routingKey),
			zap.Error(err),
		)
		return
	}

	l.metrics.EventsProcessed.WithLabelValues(routingKey).Inc()
	l.logger.Info("Event processed",
		zap.String("event_id", event.ID.String()),
		zap.String("event_name", event.Name),
		zap.String("event_type", routingKey),
	)
}

// ack acknowledges the message's own delivery tag, never a range.
func (l *Listener) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		l.logger.Error("Failed to ack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		return
	}
	l.metrics.MessagesAcked.Inc()
}

// reject nacks the message without requeue, routing it to the dead-letter
// exchange configured on the work queue.
func (l *Listener) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		l.logger.Error("Failed to nack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		return
	}
	l.metrics.MessagesNacked.Inc()
	l.metrics.MessagesDeadlettered.Inc()
}
