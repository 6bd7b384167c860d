package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestHandler_AddsAttemptGroup(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.NewJSONHandler(&buf, nil))

	a := &Attempt{RequestID: "req-1", Realm: "r", Provider: "client-jwt"}
	ctx := WithAttempt(context.Background(), a)
	a.ClientID = "acme"
	log.InfoContext(ctx, "hello")

	m := decode(t, &buf)
	grp, ok := m["attempt"].(map[string]any)
	if !ok {
		t.Fatalf("missing attempt group: %v", m)
	}
	if grp["request_id"] != "req-1" || grp["realm"] != "r" || grp["provider"] != "client-jwt" || grp["client_id"] != "acme" {
		t.Fatalf("unexpected attempt group: %v", grp)
	}
}

func TestHandler_NoAttempt(t *testing.T) {
	var buf bytes.Buffer
	New(slog.NewJSONHandler(&buf, nil)).Info("plain")
	if _, ok := decode(t, &buf)["attempt"]; ok {
		t.Fatal("unexpected attempt group")
	}
}

func TestHandler_WithAttrsKeepsDecoration(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.NewJSONHandler(&buf, nil)).With("component", "x")
	ctx := WithAttempt(context.Background(), &Attempt{RequestID: "req-2"})
	log.InfoContext(ctx, "hello")

	m := decode(t, &buf)
	if m["component"] != "x" {
		t.Fatalf("missing component attr: %v", m)
	}
	if _, ok := m["attempt"]; !ok {
		t.Fatalf("decoration lost after With: %v", m)
	}
}

func TestAttemptFrom(t *testing.T) {
	if AttemptFrom(context.Background()) != nil {
		t.Fatal("expected nil attempt")
	}
	a := &Attempt{Realm: "r"}
	if AttemptFrom(WithAttempt(context.Background(), a)) != a {
		t.Fatal("expected stored attempt")
	}
}

func TestNew_NilHandlerDiscards(t *testing.T) {
	New(nil).Info("dropped")
}
