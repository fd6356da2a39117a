// Package dlq consumes the dead-letter queue and durably captures every
// rejected message for operator inspection. Its job is "never lose a
// rejected message", not "retry it": once captured, reprocessing is an
// operator decision.
package dlq

import (
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Metadata is the delivery metadata captured with every dead-lettered
// message.
type Metadata struct {
	RoutingKey  string                 `json:"routingKey"`
	Exchange    string                 `json:"exchange"`
	ContentType string                 `json:"contentType"`
	MessageID   string                 `json:"messageId"`
	Timestamp   int64                  `json:"timestamp"`
	Headers     map[string]interface{} `json:"headers"`
}

// Record is the captured form of one dead-lettered message. Payload holds
// the parsed JSON body when the body parses, otherwise the raw text.
type Record struct {
	Metadata Metadata    `json:"metadata"`
	Payload  interface{} `json:"payload"`
}

// DeadLetterMessage is the persisted, append-only form of a Record.
type DeadLetterMessage struct {
	ID               int64                  `gorm:"primary_key;autoIncrement" json:"id"`
	RoutingKey       string                 `gorm:"not null" json:"routing_key"`
	Exchange         string                 `json:"exchange"`
	ContentType      string                 `json:"content_type"`
	MessageID        string                 `json:"message_id"`
	MessageTimestamp int64                  `json:"message_timestamp"`
	Headers          map[string]interface{} `gorm:"type:jsonb" json:"headers"`
	Payload          string                 `gorm:"type:text" json:"payload"`
	CreatedAt        time.Time              `gorm:"not null;default:now()" json:"created_at"`
}

func (DeadLetterMessage) TableName() string {
	return "dead_letter_messages"
}

// buildRecord captures the delivery metadata and payload of one message.
// The body is parsed as JSON for readability; an unparseable body is kept
// as raw text so nothing is lost.
func buildRecord(msg amqp.Delivery) Record {
	var timestamp int64
	if !msg.Timestamp.IsZero() {
		timestamp = msg.Timestamp.Unix()
	}

	var payload interface{}
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		payload = string(msg.Body)
	}

	return Record{
		Metadata: Metadata{
			RoutingKey:  msg.RoutingKey,
			Exchange:    msg.Exchange,
			ContentType: msg.ContentType,
			MessageID:   msg.MessageId,
			Timestamp:   timestamp,
			Headers:     map[string]interface{}(msg.Headers),
		},
		Payload: payload,
	}
}

// toMessage converts a Record into its persisted form. The payload is
// stored as serialized JSON, or as the raw text when the original body did
// not parse.
func (r Record) toMessage() (*DeadLetterMessage, error) {
	var payloadText string
	switch p := r.Payload.(type) {
	case string:
		payloadText = p
	default:
		serialized, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize dead-letter payload: %w", err)
		}
		payloadText = string(serialized)
	}

	return &DeadLetterMessage{
		RoutingKey:       r.Metadata.RoutingKey,
		Exchange:         r.Metadata.Exchange,
		ContentType:      r.Metadata.ContentType,
		MessageID:        r.Metadata.MessageID,
		MessageTimestamp: r.Metadata.Timestamp,
		Headers:          r.Metadata.Headers,
		Payload:          payloadText,
	}, nil
}

// captureFileName names per-message capture files by processing timestamp
// plus delivery tag so concurrent captures never collide.
func captureFileName(now time.Time, deliveryTag uint64) string {
	return fmt.Sprintf("dlq-msg-%s-%03d-%d.json",
		now.UTC().Format("20060102-150405"),
		now.Nanosecond()/int(time.Millisecond),
		deliveryTag,
	)
}
