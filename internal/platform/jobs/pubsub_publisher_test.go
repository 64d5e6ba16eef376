package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ashgrove-goods/api/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status_changed",
		OrderID:        "ord_test",
		OrderNumber:    "ORD-20250601-000042",
		PreviousStatus: "pending",
		CurrentStatus:  "confirmed",
		ActorID:        "webhook:stripe",
		OccurredAt:     occurredAt,
		Metadata:       map[string]any{"transactionId": "pi_123"},
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["orderId"] != "ord_test" || payload["currentStatus"] != "confirmed" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["occurredAt"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected occurredAt %v", payload["occurredAt"])
	}

	attrs := messages[0].Attributes
	if attrs["eventType"] != "order.status_changed" {
		t.Fatalf("expected eventType attribute, got %q", attrs["eventType"])
	}
	if attrs["orderId"] != "ord_test" {
		t.Fatalf("expected orderId attribute, got %q", attrs["orderId"])
	}
	if attrs["status"] != "confirmed" {
		t.Fatalf("expected status attribute, got %q", attrs["status"])
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

func TestPublishOrderEventOmitsBlankAttributes(t *testing.T) {
	attrs := make(map[string]string)
	setAttr(attrs, "orderNumber", "  ")
	setAttr(attrs, "orderId", "ord_1")
	if _, ok := attrs["orderNumber"]; ok {
		t.Fatal("blank attribute should be omitted")
	}
	if attrs["orderId"] != "ord_1" {
		t.Fatalf("expected trimmed attribute, got %q", attrs["orderId"])
	}
}
