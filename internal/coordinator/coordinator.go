package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/approval"
	"github.com/halcyon-home/halcyon-core/internal/audit"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/mqtt"
)

// agentName is the "from" label on every message the coordinator publishes.
const agentName = "coordinator"

// Decision sources recorded in the audit log and telemetry.
const (
	sourceSupervisor = "supervisor"
	sourceTimeout    = "timeout"
)

// defaultRequestTimeout bounds the wait for a supervisor decision.
const defaultRequestTimeout = 30 * time.Second

// MQTTClient is the bus surface the coordinator needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Logger is the logging surface the coordinator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Telemetry records resolution metrics. Implemented by the influxdb client.
type Telemetry interface {
	RecordResolution(status, source string, rooms int, executed bool, waited time.Duration)
}

// Options configures a Coordinator. MQTT is required; everything else has
// a usable zero value.
type Options struct {
	MQTT      MQTTClient
	Logger    Logger
	Audit     audit.Repository // optional decision log
	Telemetry Telemetry        // optional metrics

	// RequestTimeout bounds the wait for a supervisor decision.
	// Defaults to 30s.
	RequestTimeout time.Duration

	// Policy decides the synthesized verdict on timeout.
	// Defaults to fail-open.
	Policy approval.SafetyPolicy

	// MatchLatestWithoutID matches a decision lacking a request ID to the
	// most recent pending request instead of discarding it. Off by
	// default; only needed with supervisors that predate request IDs.
	MatchLatestWithoutID bool

	// QoS for all publishes and subscriptions. Defaults to 1.
	QoS byte

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Coordinator executes command batches once the supervisor approves them.
//
// It owns the correlation store and the per-request watcher goroutines;
// the MQTT message handlers only parse, validate, and hand off, so the
// bus dispatch loop is never blocked on a pending request.
type Coordinator struct {
	mqttClient MQTTClient
	logger     Logger
	auditRepo  audit.Repository
	telemetry  Telemetry
	store      *Store
	topics     mqtt.Topics

	requestTimeout time.Duration
	policy         approval.SafetyPolicy
	matchLatest    bool
	qos            byte
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Coordinator from opts.
func New(opts Options) (*Coordinator, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	policy := opts.Policy
	if !policy.Valid() {
		policy = approval.PolicyFailOpen
	}
	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Coordinator{
		mqttClient:     opts.MQTT,
		logger:         logger,
		auditRepo:      opts.Audit,
		telemetry:      opts.Telemetry,
		store:          NewStore(),
		requestTimeout: timeout,
		policy:         policy,
		matchLatest:    opts.MatchLatestWithoutID,
		qos:            qos,
		now:            now,
	}, nil
}

// Start subscribes to the command and feedback topics. It returns once the
// subscriptions are established; message handling runs on the bus client's
// dispatch goroutines.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.ctx != nil {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.mqttClient.Subscribe(c.topics.ActuatorCommands(), c.qos, c.handleBatch); err != nil {
		return fmt.Errorf("subscribing to command batches: %w", err)
	}
	if err := c.mqttClient.Subscribe(c.topics.SupervisorFeedback(), c.qos, c.handleFeedback); err != nil {
		return fmt.Errorf("subscribing to supervisor feedback: %w", err)
	}

	c.logger.Info("coordinator started",
		"request_timeout", c.requestTimeout,
		"safety_policy", string(c.policy),
		"match_latest_without_id", c.matchLatest)
	return nil
}

// Close stops the watcher goroutines. Requests still pending at shutdown
// are abandoned without a completed event; a restarted coordinator begins
// with an empty store.
func (c *Coordinator) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Pending returns a snapshot of the outstanding requests, oldest first.
func (c *Coordinator) Pending() []PendingSnapshot {
	return c.store.Pending()
}

// PendingCount returns the number of outstanding requests.
func (c *Coordinator) PendingCount() int {
	return c.store.Len()
}

// batchEnvelope is the wire form of an incoming command batch.
type batchEnvelope struct {
	From          string            `json:"from"`
	Timestamp     float64           `json:"timestamp"`
	LightCommands map[string]string `json:"light_commands"`
}

// deviceCommand is the wire form of a single per-room light command.
type deviceCommand struct {
	Color string `json:"color"`
	Room  string `json:"room"`
}

// feedbackEnvelope is the wire form of a supervisor decision.
type feedbackEnvelope struct {
	From     string            `json:"from"`
	Decision approval.Decision `json:"decision"`
}

// handleBatch parses an incoming batch and submits it for approval.
func (c *Coordinator) handleBatch(_ string, payload []byte) error {
	var env batchEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("parsing command batch: %w", err)
	}

	batch := approval.CommandBatch{
		Source:   env.From,
		SentAt:   env.Timestamp,
		Commands: env.LightCommands,
	}
	if _, err := c.Submit(batch); err != nil {
		return fmt.Errorf("submitting command batch: %w", err)
	}
	return nil
}

// Submit registers the batch as pending, announces it on the status topic,
// and starts the bounded wait for a decision. It returns the request ID.
//
// If the pending announcement cannot be published the entry is rolled back
// and no watcher is started; a batch the supervisor never saw must not sit
// in the store until timeout.
func (c *Coordinator) Submit(batch approval.CommandBatch) (string, error) {
	if err := batch.Validate(); err != nil {
		return "", err
	}

	p := c.store.Add(batch)

	ev := approval.StatusEvent{
		From:      agentName,
		Stage:     approval.StagePending,
		RequestID: p.ID,
		Rooms:     batch.Rooms(),
		Commands:  batch.Commands,
		Timestamp: approval.UnixSeconds(c.now()),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		c.store.Resolve(p.ID)
		return "", fmt.Errorf("encoding pending status: %w", err)
	}
	if err := c.mqttClient.Publish(c.topics.ActuatorStatus(), payload, c.qos, false); err != nil {
		c.store.Resolve(p.ID)
		return "", fmt.Errorf("publishing pending status: %w", err)
	}

	c.logger.Info("awaiting supervisor decision",
		"request_id", p.ID,
		"rooms", len(ev.Rooms),
		"timeout", c.requestTimeout)

	go c.watch(p)
	return p.ID, nil
}

// OnDecision delivers a parsed supervisor decision to its pending request.
//
// A decision for an unknown or already-resolved request is logged and
// dropped; QoS 1 redelivers, and the supervisor may answer after the
// timeout already resolved the request.
func (c *Coordinator) OnDecision(d approval.Decision) error {
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %q", approval.ErrInvalidStatus, d.Status)
	}

	id := d.RequestID
	if id == "" {
		if !c.matchLatest {
			c.logger.Warn("decision without request_id discarded",
				"status", string(d.Status))
			return nil
		}
		latest, ok := c.store.LatestID()
		if !ok {
			c.logger.Warn("decision without request_id and nothing pending, discarded",
				"status", string(d.Status))
			return nil
		}
		c.logger.Warn("decision without request_id matched to latest pending request",
			"request_id", latest,
			"status", string(d.Status))
		id = latest
	}

	if !c.store.Deliver(id, d) {
		c.logger.Debug("late or duplicate decision ignored",
			"request_id", id,
			"status", string(d.Status))
		return nil
	}

	c.logger.Info("supervisor decision received",
		"request_id", id,
		"status", string(d.Status),
		"reason", d.Reason)
	return nil
}

// handleFeedback parses a supervisor feedback message and delivers it.
func (c *Coordinator) handleFeedback(_ string, payload []byte) error {
	var env feedbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("parsing supervisor feedback: %w", err)
	}
	return c.OnDecision(env.Decision)
}

// watch waits for the request's decision, bounded by the request timeout.
// Exactly one of the three arms runs to resolution per request; the store's
// atomic remove in resolve makes a lost race harmless.
func (c *Coordinator) watch(p *PendingRequest) {
	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case d := <-p.Decision():
		c.resolve(p, d, sourceSupervisor)
	case <-timer.C:
		c.logger.Warn("no decision before timeout, applying safety policy",
			"request_id", p.ID,
			"policy", string(c.policy))
		reason := fmt.Sprintf("%ds timeout", int(c.requestTimeout.Seconds()))
		c.resolve(p, c.policy.Fallback(reason), sourceTimeout)
	case <-c.ctx.Done():
	}
}

// resolve removes the request from the store, executes or rejects the
// batch, and publishes the completed event.
//
// Device commands are published before the completed event so a consumer
// watching both topics sees execution precede the completion report.
// Audit and telemetry are best effort: a failing decision log never blocks
// resolution.
func (c *Coordinator) resolve(p *PendingRequest, d approval.Decision, source string) {
	if _, ok := c.store.Resolve(p.ID); !ok {
		return
	}

	rooms := p.Batch.Rooms()
	executed := false

	if d.Status.Authorizes() {
		executed = true
		for _, room := range rooms {
			cmd := deviceCommand{Color: p.Batch.Commands[room], Room: room}
			payload, err := json.Marshal(cmd)
			if err != nil {
				c.logger.Error("encoding device command failed",
					"request_id", p.ID, "room", room, "error", err)
				continue
			}
			if err := c.mqttClient.Publish(c.topics.RoomLightControl(room), payload, c.qos, false); err != nil {
				c.logger.Error("publishing device command failed",
					"request_id", p.ID, "room", room, "error", err)
			}
		}
	} else {
		c.logger.Info("batch rejected",
			"request_id", p.ID,
			"reason", d.Reason)
	}

	resolvedAt := c.now()
	ev := approval.StatusEvent{
		From:      agentName,
		Stage:     approval.StageCompleted,
		RequestID: p.ID,
		Rooms:     rooms,
		Decision:  d.Status,
		Timestamp: approval.UnixSeconds(resolvedAt),
	}
	if payload, err := json.Marshal(ev); err == nil {
		if err := c.mqttClient.Publish(c.topics.ActuatorStatus(), payload, c.qos, false); err != nil {
			c.logger.Error("publishing completed status failed",
				"request_id", p.ID, "error", err)
		}
	}

	waited := resolvedAt.Sub(p.CreatedAt)

	if c.auditRepo != nil {
		rec := &audit.Record{
			RequestID:  p.ID,
			Rooms:      rooms,
			Status:     string(d.Status),
			Reason:     d.Reason,
			Source:     source,
			CreatedAt:  p.CreatedAt,
			ResolvedAt: resolvedAt,
			DurationMS: waited.Milliseconds(),
		}
		if err := c.auditRepo.Create(c.ctx, rec); err != nil {
			c.logger.Error("writing decision log failed",
				"request_id", p.ID, "error", err)
		}
	}

	if c.telemetry != nil {
		c.telemetry.RecordResolution(string(d.Status), source, len(rooms), executed, waited)
	}

	c.logger.Info("request completed",
		"request_id", p.ID,
		"decision", string(d.Status),
		"rooms", len(rooms),
		"executed", executed,
		"source", source,
		"waited", waited)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
