package analytics

import (
	"context"
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

func TestNewSinkDisabledReturnsNilNoError(t *testing.T) {
	sink, err := NewSink(config.AnalyticsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewSink(disabled): %v", err)
	}
	if sink != nil {
		t.Errorf("expected nil sink when disabled, got %+v", sink)
	}
}

func TestNewSinkEnabledWithoutDSNReturnsNilNoError(t *testing.T) {
	sink, err := NewSink(config.AnalyticsConfig{Enabled: true, DSN: ""})
	if err != nil {
		t.Fatalf("NewSink(no dsn): %v", err)
	}
	if sink != nil {
		t.Errorf("expected nil sink when DSN unset, got %+v", sink)
	}
}

func TestNilSinkRecordIsNoOp(t *testing.T) {
	var s *Sink
	if err := s.Record(context.Background(), Event{BotID: "b1"}); err != nil {
		t.Errorf("nil *Sink.Record should be a no-op, got err: %v", err)
	}
}

func TestNilSinkCloseIsNoOp(t *testing.T) {
	var s *Sink
	if err := s.Close(); err != nil {
		t.Errorf("nil *Sink.Close should be a no-op, got err: %v", err)
	}
}
