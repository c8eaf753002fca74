package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/infrastructure/mqtt"
)

var topics = mqtt.Topics{}

type mockMQTT struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]func(topic string, payload []byte) error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		published: make(map[string][][]byte),
		handlers:  make(map[string]func(string, []byte) error),
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[topic] = append(m.published[topic], payload)
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func startForwarder(t *testing.T) (*Forwarder, *mockMQTT) {
	t.Helper()

	bus := newMockMQTT()
	fwd, err := New(Options{
		MQTT:  bus,
		Clock: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fwd.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return fwd, bus
}

func TestForwardsBatchWithFreshStamp(t *testing.T) {
	_, bus := startForwarder(t)

	in := `{"from":"sensor","timestamp":100.5,"light_commands":{"kitchen":"green","hall":"off"}}`
	if err := bus.handlers[topics.LightCommands()](topics.LightCommands(), []byte(in)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	out := bus.published[topics.ActuatorCommands()]
	if len(out) != 1 {
		t.Fatalf("forwarded %d batches, want 1", len(out))
	}

	var env batchEnvelope
	if err := json.Unmarshal(out[0], &env); err != nil {
		t.Fatalf("parsing forwarded batch: %v", err)
	}
	if env.From != "controller" {
		t.Errorf("from = %q, want controller", env.From)
	}
	if env.Timestamp == 100.5 || env.Timestamp == 0 {
		t.Errorf("timestamp = %v, want a fresh stamp", env.Timestamp)
	}
	if len(env.LightCommands) != 2 || env.LightCommands["kitchen"] != "green" {
		t.Errorf("light_commands = %v, want forwarded unchanged", env.LightCommands)
	}
}

func TestRejectsMalformedInput(t *testing.T) {
	_, bus := startForwarder(t)
	handler := bus.handlers[topics.LightCommands()]

	if err := handler(topics.LightCommands(), []byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if err := handler(topics.LightCommands(), []byte(`{"from":"sensor"}`)); err == nil {
		t.Error("expected error when light_commands is missing")
	}
	if n := len(bus.published[topics.ActuatorCommands()]); n != 0 {
		t.Errorf("forwarded %d batches, want 0", n)
	}
}

func TestFeedbackObservedNotForwarded(t *testing.T) {
	_, bus := startForwarder(t)

	in := `{"from":"supervisor","decision":{"status":"approved","reason":"ok","request_id":"r1"}}`
	if err := bus.handlers[topics.SupervisorFeedback()](topics.SupervisorFeedback(), []byte(in)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 0 {
		t.Errorf("published to %d topics, want 0 (feedback is log-only)", len(bus.published))
	}
}

func TestNewRequiresMQTT(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrMQTTRequired) {
		t.Errorf("err = %v, want ErrMQTTRequired", err)
	}
}
