package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
}

func TestLoggerWithStripeEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithStripeEvent(context.Background(), "evt_1", "invoice.payment_succeeded")
	log.Info(ctx, "reconciled")

	if !bytes.Contains(buf.Bytes(), []byte("\"stripe_event_id\"")) {
		t.Fatalf("expected stripe_event_id field; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("invoice.payment_succeeded")) {
		t.Fatalf("expected event type field; entry=%s", buf.String())
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if lvl := ParseLevel(""); lvl.String() != "info" {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("not-a-level"); lvl.String() != "info" {
		t.Fatalf("invalid level should fall back to info, got %v", lvl)
	}
}
