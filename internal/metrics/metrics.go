// Package metrics holds the Prometheus instrumentation for the eventing
// pipeline. A single Metrics value is constructed at process start from an
// injected registerer and passed into each component; there are no global
// metric singletons.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter, gauge and histogram observed by the
// publisher, the listener and the dead-letter consumer. The metric names
// are an operator contract and must not change.
type Metrics struct {
	MessagesReceived         prometheus.Counter
	MessagesInvalidJSON      prometheus.Counter
	MessagesInvalidSignature prometheus.Counter
	MessagesSchemaInvalid    prometheus.Counter
	MessagesAcked            prometheus.Counter
	MessagesNacked           prometheus.Counter
	MessagesDeadlettered     prometheus.Counter

	MessageProcessingDuration prometheus.Histogram

	RabbitMQConnections   prometheus.Counter
	RabbitMQSetupFailures *prometheus.CounterVec
	ConsumerActive        prometheus.Gauge

	EventsProcessed         *prometheus.CounterVec
	EventsFailed            *prometheus.CounterVec
	EventProcessingDuration *prometheus.HistogramVec

	ContentCreateAttempts prometheus.Counter
	ContentCreateFailures prometheus.Counter
	ContentCreateDuration prometheus.Histogram
	ContentDeleteAttempts prometheus.Counter
	ContentDeleteFailures prometheus.Counter
	ContentDeleteDuration prometheus.Histogram

	PublisherMessagesPublished prometheus.Counter
	PublisherPublishFailures   prometheus.Counter
}

// New creates and registers all pipeline metrics against the given
// registerer. Tests pass a fresh prometheus.NewRegistry() to get isolated
// counters.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_received_total",
			Help: "Total number of messages received from RabbitMQ",
		}),
		MessagesInvalidJSON: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_invalid_json_total",
			Help: "Total number of messages rejected due to invalid JSON",
		}),
		MessagesInvalidSignature: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_invalid_signature_total",
			Help: "Total number of messages rejected due to invalid signature",
		}),
		MessagesSchemaInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_schema_invalid_total",
			Help: "Total number of messages rejected due to schema validation failure",
		}),
		MessagesAcked: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_acked_total",
			Help: "Total number of messages successfully processed and acknowledged",
		}),
		MessagesNacked: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_nacked_total",
			Help: "Total number of messages negatively acknowledged (nacked)",
		}),
		MessagesDeadlettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_messages_deadlettered_total",
			Help: "Total number of messages sent to the dead-letter queue",
		}),
		MessageProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "listener_message_processing_duration_seconds",
			Help:    "Time taken to process a message end to end",
			Buckets: prometheus.DefBuckets,
		}),
		RabbitMQConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_rabbitmq_connections_total",
			Help: "Total number of successful RabbitMQ connections",
		}),
		RabbitMQSetupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listener_rabbitmq_setup_failures_total",
			Help: "Total number of failures during RabbitMQ setup, labeled by step",
		}, []string{"step"}),
		ConsumerActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "listener_consumer_active",
			Help: "Indicates if the listener's consumer is active (1) or not (0)",
		}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listener_events_processed_total",
			Help: "Total number of events processed, labeled by event type",
		}, []string{"event_type"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listener_events_failed_total",
			Help: "Total number of events that failed processing, labeled by event type",
		}, []string{"event_type"}),
		EventProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listener_event_processing_duration_seconds",
			Help:    "Duration of event processing, labeled by event type",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"}),
		ContentCreateAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_content_create_attempts_total",
			Help: "Total number of attempts to create content",
		}),
		ContentCreateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_content_create_failures_total",
			Help: "Total number of content creation failures",
		}),
		ContentCreateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "listener_content_create_duration_seconds",
			Help:    "Time taken to create content",
			Buckets: prometheus.DefBuckets,
		}),
		ContentDeleteAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_content_delete_attempts_total",
			Help: "Total number of attempts to delete content",
		}),
		ContentDeleteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "listener_content_delete_failures_total",
			Help: "Total number of failed content deletions",
		}),
		ContentDeleteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "listener_content_delete_duration_seconds",
			Help:    "Time taken to delete content",
			Buckets: prometheus.DefBuckets,
		}),
		PublisherMessagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_messages_published_total",
			Help: "Total number of messages successfully published",
		}),
		PublisherPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_publish_failures_total",
			Help: "Total number of failed message publications",
		}),
	}
}
