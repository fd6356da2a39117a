package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
)

type ackRecord struct {
	acks     int
	nacks    int
	requeued bool
}

type fakeAcknowledger struct {
	ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}

type fakeStore struct {
	saved   []*DeadLetterMessage
	saveErr error
}

func (f *fakeStore) Save(ctx context.Context, msg *DeadLetterMessage) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, msg)
	return nil
}

func newTestConsumer(t *testing.T, store RecordStore) *Consumer {
	t.Helper()
	topo := &config.TopologyConfig{
		DeadLetterQueue: "cms.dlq",
		PrefetchCount:   10,
	}
	dlqCfg := &config.DLQConfig{OutputDirectory: t.TempDir()}
	return NewConsumer(topo, dlqCfg, nil, store, zap.NewNop())
}

func TestBuildRecordParsesJSONBody(t *testing.T) {
	t.Parallel()

	sent := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := amqp.Delivery{
		Body:        []byte(`{"id":"abc","name":"New Content Published"}`),
		RoutingKey:  "page.create.request",
		Exchange:    "cms.requests",
		ContentType: "application/json",
		MessageId:   "msg-1",
		Timestamp:   sent,
		Headers:     amqp.Table{"x-death-count": int32(1)},
	}

	record := buildRecord(msg)

	if record.Metadata.RoutingKey != "page.create.request" {
		t.Fatalf("unexpected routing key: %s", record.Metadata.RoutingKey)
	}
	if record.Metadata.Timestamp != sent.Unix() {
		t.Fatalf("unexpected timestamp: %d", record.Metadata.Timestamp)
	}
	payload, ok := record.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("expected parsed JSON payload, got %T", record.Payload)
	}
	if payload["name"] != "New Content Published" {
		t.Fatalf("payload lost fields: %v", payload)
	}
}

func TestBuildRecordKeepsUnparseableBodyAsText(t *testing.T) {
	t.Parallel()

	msg := amqp.Delivery{
		Body:       []byte("{broken json"),
		RoutingKey: "page.create.request",
	}

	record := buildRecord(msg)

	text, ok := record.Payload.(string)
	if !ok {
		t.Fatalf("expected raw text payload, got %T", record.Payload)
	}
	if text != "{broken json" {
		t.Fatalf("raw body was altered: %q", text)
	}
	if record.Metadata.Timestamp != 0 {
		t.Fatalf("expected zero timestamp for unset delivery timestamp, got %d", record.Metadata.Timestamp)
	}
}

func TestRecordToMessage(t *testing.T) {
	t.Parallel()

	record := Record{
		Metadata: Metadata{
			RoutingKey: "page.update.request",
			Exchange:   "cms.requests",
			MessageID:  "msg-2",
			Timestamp:  1746100800,
			Headers:    map[string]interface{}{"reason": "rejected"},
		},
		Payload: map[string]interface{}{"name": "Content Update"},
	}

	stored, err := record.toMessage()
	if err != nil {
		t.Fatalf("toMessage error: %v", err)
	}

	if stored.RoutingKey != "page.update.request" || stored.MessageID != "msg-2" {
		t.Fatalf("metadata lost in conversion: %+v", stored)
	}
	if !strings.Contains(stored.Payload, `"Content Update"`) {
		t.Fatalf("payload not serialized as JSON: %q", stored.Payload)
	}

	raw := Record{Payload: "{broken json"}
	storedRaw, err := raw.toMessage()
	if err != nil {
		t.Fatalf("toMessage error for raw payload: %v", err)
	}
	if storedRaw.Payload != "{broken json" {
		t.Fatalf("raw payload was altered: %q", storedRaw.Payload)
	}
}

func TestCaptureFileName(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 12, 30, 45, 123*int(time.Millisecond), time.UTC)

	name := captureFileName(now, 42)
	if name != "dlq-msg-20250501-123045-123-42.json" {
		t.Fatalf("unexpected capture file name: %s", name)
	}

	// Same second, different delivery tags must not collide.
	if name == captureFileName(now, 43) {
		t.Fatal("capture file names collide across delivery tags")
	}
}

func TestHandleDeliveryPersistsAndAcks(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestConsumer(t, store)
	ack := &fakeAcknowledger{}

	c.handleDelivery(amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"name":"New Content Published"}`),
		RoutingKey:   "page.create.request",
		Exchange:     "cms.dlx",
		MessageId:    "msg-3",
		DeliveryTag:  9,
	})

	if len(store.saved) != 1 {
		t.Fatalf("expected one stored record, got %d", len(store.saved))
	}
	if store.saved[0].RoutingKey != "page.create.request" {
		t.Fatalf("stored record has wrong routing key: %s", store.saved[0].RoutingKey)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected one ack and no nacks, got %d/%d", ack.acks, ack.nacks)
	}

	entries, err := os.ReadDir(c.outputDir)
	if err != nil {
		t.Fatalf("failed to read output directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one capture file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "dlq-msg-") || !strings.HasSuffix(name, ".json") {
		t.Fatalf("unexpected capture file name: %s", name)
	}

	raw, err := os.ReadFile(filepath.Join(c.outputDir, name))
	if err != nil {
		t.Fatalf("failed to read capture file: %v", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("capture file is not valid JSON: %v", err)
	}
	if record.Metadata.MessageID != "msg-3" {
		t.Fatalf("capture file lost metadata: %+v", record.Metadata)
	}
}

func TestStopWithConcurrentRestartLoopReader(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(t, &fakeStore{})
	c.conn = rabbitmq.NewConnection(&config.RabbitMQConfig{}, "test-dlq", zap.NewNop())
	c.started.Store(true)

	// Mirrors the restart loop, which polls the flag from its own
	// goroutine while Stop clears it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c.started.Load() {
			runtime.Gosched()
		}
	}()

	c.Stop()
	<-done
}

func TestHandleDeliveryStoreFailureRequeues(t *testing.T) {
	t.Parallel()

	store := &fakeStore{saveErr: errors.New("database unavailable")}
	c := newTestConsumer(t, store)
	ack := &fakeAcknowledger{}

	c.handleDelivery(amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"name":"New Content Published"}`),
		RoutingKey:   "page.create.request",
		DeliveryTag:  9,
	})

	if ack.acks != 0 {
		t.Fatalf("expected no acks when the store fails, got %d", ack.acks)
	}
	if ack.nacks != 1 || !ack.requeued {
		t.Fatalf("expected one nack with requeue, got nacks=%d requeue=%v", ack.nacks, ack.requeued)
	}

	entries, err := os.ReadDir(c.outputDir)
	if err != nil {
		t.Fatalf("failed to read output directory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no capture file when the store fails, got %d", len(entries))
	}
}
