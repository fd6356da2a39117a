package publisher

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
)

func newTestPublisher(t *testing.T) (*Publisher, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	topo := &config.TopologyConfig{RequestsExchange: "cms.requests"}
	return New(&config.RabbitMQConfig{}, topo, zap.NewNop(), m), m
}

func TestHandleReturnCountsUnroutableMessage(t *testing.T) {
	t.Parallel()

	p, m := newTestPublisher(t)

	p.handleReturn(amqp.Return{
		Exchange:   "cms.requests",
		RoutingKey: "page.create.request",
		MessageId:  "msg-1",
		ReplyCode:  312,
		ReplyText:  "NO_ROUTE",
	})

	if got := testutil.ToFloat64(m.PublisherPublishFailures); got != 1 {
		t.Fatalf("publisher_publish_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublisherMessagesPublished); got != 0 {
		t.Fatalf("publisher_messages_published_total = %v, want 0", got)
	}
}

func TestPublishBeforeInitialize(t *testing.T) {
	t.Parallel()

	p, _ := newTestPublisher(t)

	err := p.Publish(&models.SecureContentEvent{}, models.RoutingKeyPageCreate)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()

	p, _ := newTestPublisher(t)
	p.Close()

	err := p.Publish(&models.SecureContentEvent{}, models.RoutingKeyPageCreate)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if err := p.Initialize(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Initialize after Close, got %v", err)
	}
}
