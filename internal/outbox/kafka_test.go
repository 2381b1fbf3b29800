package outbox

import (
	"context"
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

func TestNewPublisherDisabledReturnsNilNoError(t *testing.T) {
	pub, err := NewPublisher(config.OutboxConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewPublisher(disabled): %v", err)
	}
	if pub != nil {
		t.Errorf("expected nil publisher when disabled, got %+v", pub)
	}
}

func TestNewPublisherEnabledWithoutBrokersReturnsNilNoError(t *testing.T) {
	pub, err := NewPublisher(config.OutboxConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewPublisher(no brokers): %v", err)
	}
	if pub != nil {
		t.Errorf("expected nil publisher when no brokers configured, got %+v", pub)
	}
}

func TestNewPublisherDefaultsTopic(t *testing.T) {
	pub, err := NewPublisher(config.OutboxConfig{Enabled: true, Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if pub == nil {
		t.Fatal("expected non-nil publisher")
	}
	if pub.topic != "linebot.events" {
		t.Errorf("topic = %q, want default linebot.events", pub.topic)
	}
	pub.Close()
}

func TestNilPublisherPublishIsNoOp(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), Message{BotID: "b1", Kind: "message_received"}); err != nil {
		t.Errorf("nil *Publisher.Publish should be a no-op, got err: %v", err)
	}
}

func TestNilPublisherCloseIsNoOp(t *testing.T) {
	var p *Publisher
	if err := p.Close(); err != nil {
		t.Errorf("nil *Publisher.Close should be a no-op, got err: %v", err)
	}
}
