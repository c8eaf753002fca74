// Package controller forwards light-command batches from the sensing side
// onto the approval pipeline.
//
// The forwarder subscribes to the raw light-commands topic, re-stamps each
// batch with its own source label and send time, and republishes it on the
// actuator-commands topic for the coordinator. It also observes supervisor
// feedback purely for the operator log; the coordinator is the only
// consumer that acts on decisions.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/approval"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/mqtt"
)

// agentName is the "from" label on every forwarded batch.
const agentName = "controller"

// ErrMQTTRequired indicates the forwarder was constructed without a bus
// client.
var ErrMQTTRequired = errors.New("controller: mqtt client required")

// MQTTClient is the bus surface the forwarder needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Logger is the logging surface the forwarder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Forwarder. MQTT is required.
type Options struct {
	MQTT   MQTTClient
	Logger Logger

	// QoS for all publishes and subscriptions. Defaults to 1.
	QoS byte

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Forwarder bridges raw light commands onto the approval pipeline.
type Forwarder struct {
	mqttClient MQTTClient
	logger     Logger
	topics     mqtt.Topics
	qos        byte
	now        func() time.Time
}

// New creates a Forwarder from opts.
func New(opts Options) (*Forwarder, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Forwarder{
		mqttClient: opts.MQTT,
		logger:     logger,
		qos:        qos,
		now:        now,
	}, nil
}

// Start subscribes to the light-commands and feedback topics.
func (f *Forwarder) Start(_ context.Context) error {
	if err := f.mqttClient.Subscribe(f.topics.LightCommands(), f.qos, f.handleCommands); err != nil {
		return fmt.Errorf("subscribing to light commands: %w", err)
	}
	if err := f.mqttClient.Subscribe(f.topics.SupervisorFeedback(), f.qos, f.handleFeedback); err != nil {
		return fmt.Errorf("subscribing to supervisor feedback: %w", err)
	}
	f.logger.Info("controller started")
	return nil
}

// batchEnvelope is the wire form shared by the raw and forwarded topics.
type batchEnvelope struct {
	From          string            `json:"from"`
	Timestamp     float64           `json:"timestamp"`
	LightCommands map[string]string `json:"light_commands"`
}

// handleCommands re-stamps an incoming batch and forwards it unchanged.
func (f *Forwarder) handleCommands(_ string, payload []byte) error {
	var env batchEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("parsing light commands: %w", err)
	}
	if env.LightCommands == nil {
		return fmt.Errorf("light commands missing from payload")
	}

	out, err := json.Marshal(batchEnvelope{
		From:          agentName,
		Timestamp:     approval.UnixSeconds(f.now()),
		LightCommands: env.LightCommands,
	})
	if err != nil {
		return fmt.Errorf("encoding forwarded batch: %w", err)
	}
	if err := f.mqttClient.Publish(f.topics.ActuatorCommands(), out, f.qos, false); err != nil {
		return fmt.Errorf("forwarding batch: %w", err)
	}

	f.logger.Info("batch forwarded",
		"source", env.From,
		"rooms", len(env.LightCommands))
	return nil
}

// handleFeedback logs supervisor decisions as they pass by.
func (f *Forwarder) handleFeedback(_ string, payload []byte) error {
	var env struct {
		From     string            `json:"from"`
		Decision approval.Decision `json:"decision"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("parsing supervisor feedback: %w", err)
	}
	f.logger.Info("supervisor feedback observed",
		"request_id", env.Decision.RequestID,
		"status", string(env.Decision.Status),
		"reason", env.Decision.Reason)
	return nil
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
