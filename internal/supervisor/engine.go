package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/approval"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/mqtt"
)

// agentName is the "from" label on every decision the supervisor publishes.
const agentName = "supervisor"

// Decision sources recorded in telemetry.
const (
	sourceRules     = "rules"
	sourceReasoner  = "reasoner"
	sourceHeuristic = "heuristic"
	sourceFallback  = "fallback"
)

// Defaults for the review rules.
const (
	defaultDecisionBudget = 100 * time.Second
	defaultNightStart     = 22
	defaultNightEnd       = 6
	defaultFloodThreshold = 5

	// maxReasonLength caps reasoner-supplied reasons; model output can
	// ramble and the reason ends up in log lines and MQTT payloads.
	maxReasonLength = 50

	// heuristicMaxRooms is the largest batch the time-of-day heuristic
	// will approve without a model verdict.
	heuristicMaxRooms = 3
)

// MQTTClient is the bus surface the engine needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Telemetry records decision metrics. Implemented by the influxdb client.
type Telemetry interface {
	RecordDecision(status, source string, rooms int, duration time.Duration)
}

// Options configures an Engine. MQTT is required. A nil Reasoner is
// valid: the engine then runs rules plus the time-of-day heuristic only.
type Options struct {
	MQTT      MQTTClient
	Logger    Logger
	Reasoner  Reasoner
	Telemetry Telemetry

	// DecisionBudget bounds a single reasoner call. Defaults to 100s.
	DecisionBudget time.Duration

	// NightStartHour and NightEndHour delimit night: a clock hour h is
	// night when h >= start or h <= end. Defaults 22 and 6.
	NightStartHour int
	NightEndHour   int

	// FloodThreshold is the largest room count a batch may touch before
	// it is rejected outright. Defaults to 5.
	FloodThreshold int

	// SensitiveRooms get a warning instead of silent approval at night.
	// Compared case-insensitively. Defaults to ["bedroom"].
	SensitiveRooms []string

	// Policy decides the synthesized verdict when the reasoner times out
	// or fails. Defaults to fail-open.
	Policy approval.SafetyPolicy

	// QoS for all publishes and subscriptions. Defaults to 1.
	QoS byte

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Engine reviews pending command batches and publishes decisions.
type Engine struct {
	mqttClient MQTTClient
	logger     Logger
	reasoner   Reasoner
	telemetry  Telemetry
	topics     mqtt.Topics

	budget         time.Duration
	nightStart     int
	nightEnd       int
	floodThreshold int
	sensitiveRooms []string
	policy         approval.SafetyPolicy
	qos            byte
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	budget := opts.DecisionBudget
	if budget <= 0 {
		budget = defaultDecisionBudget
	}
	nightStart := opts.NightStartHour
	if nightStart == 0 {
		nightStart = defaultNightStart
	}
	nightEnd := opts.NightEndHour
	if nightEnd == 0 {
		nightEnd = defaultNightEnd
	}
	flood := opts.FloodThreshold
	if flood <= 0 {
		flood = defaultFloodThreshold
	}
	sensitive := opts.SensitiveRooms
	if sensitive == nil {
		sensitive = []string{"bedroom"}
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

	return &Engine{
		mqttClient:     opts.MQTT,
		logger:         logger,
		reasoner:       opts.Reasoner,
		telemetry:      opts.Telemetry,
		budget:         budget,
		nightStart:     nightStart,
		nightEnd:       nightEnd,
		floodThreshold: flood,
		sensitiveRooms: sensitive,
		policy:         policy,
		qos:            qos,
		now:            now,
	}, nil
}

// Start subscribes to the actuator status topic. Reviews run on their own
// goroutines so a slow reasoner never blocks bus dispatch.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.mqttClient.Subscribe(e.topics.ActuatorStatus(), e.qos, e.handleStatus); err != nil {
		return fmt.Errorf("subscribing to actuator status: %w", err)
	}

	e.logger.Info("supervisor started",
		"decision_budget", e.budget,
		"flood_threshold", e.floodThreshold,
		"sensitive_rooms", strings.Join(e.sensitiveRooms, ","),
		"reasoner", e.reasoner != nil)
	return nil
}

// Close cancels in-flight reviews.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
}

// handleStatus parses a status event and reviews pending ones. Completed
// events share the topic and are skipped.
func (e *Engine) handleStatus(_ string, payload []byte) error {
	var ev approval.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("parsing status event: %w", err)
	}
	if ev.Stage != approval.StagePending {
		return nil
	}

	e.logger.Info("reviewing pending batch",
		"request_id", ev.RequestID,
		"rooms", len(ev.Rooms))

	go e.review(ev)
	return nil
}

// review produces exactly one decision for the event and publishes it.
func (e *Engine) review(ev approval.StatusEvent) {
	start := e.now()
	d, source := e.safeDecide(ev)
	d.RequestID = ev.RequestID

	if err := e.publish(d); err != nil {
		e.logger.Error("publishing decision failed",
			"request_id", ev.RequestID, "error", err)
		return
	}

	elapsed := e.now().Sub(start)
	if e.telemetry != nil {
		e.telemetry.RecordDecision(string(d.Status), source, len(ev.Rooms), elapsed)
	}

	e.logger.Info("decision published",
		"request_id", ev.RequestID,
		"status", string(d.Status),
		"reason", d.Reason,
		"source", source,
		"elapsed", elapsed)
}

// safeDecide runs decide under a recover. A panicking review must still
// answer: the coordinator's timeout fallback exists for a dead supervisor,
// not for a buggy one.
func (e *Engine) safeDecide(ev approval.StatusEvent) (d approval.Decision, source string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("review panicked, emergency fallback",
				"request_id", ev.RequestID, "panic", r)
			d = e.policy.Fallback("Emergency fallback")
			source = sourceFallback
		}
	}()
	return e.decide(ev)
}

// decide applies the three review tiers in order.
func (e *Engine) decide(ev approval.StatusEvent) (approval.Decision, string) {
	rooms := ev.Rooms
	n := len(rooms)
	hour := e.now().Hour()

	// Tier 1: deterministic rules.
	if n == 0 {
		return approval.Decision{Status: approval.StatusRejected, Reason: "No rooms executed"}, sourceRules
	}
	if n > e.floodThreshold {
		return approval.Decision{
			Status: approval.StatusRejected,
			Reason: fmt.Sprintf("Flood: %d rooms", n),
		}, sourceRules
	}
	if e.isNight(hour) {
		if room, ok := e.sensitiveRoom(rooms); ok {
			return approval.Decision{
				Status: approval.StatusWarning,
				Reason: fmt.Sprintf("Night %s lights", room),
			}, sourceRules
		}
	}

	// Tier 2: the reasoner, if configured.
	if e.reasoner == nil {
		return e.heuristic(hour, n, 0), sourceHeuristic
	}
	return e.consultReasoner(rooms, hour, n)
}

// consultReasoner runs one budget-bounded reasoner call.
func (e *Engine) consultReasoner(rooms []string, hour, n int) (approval.Decision, string) {
	ctx, cancel := context.WithTimeout(e.ctx, e.budget)
	defer cancel()

	start := e.now()
	text, err := e.callBounded(ctx, buildPrompt(rooms, start, n))
	elapsed := e.now().Sub(start)

	if err != nil {
		// Tier 3: safety policy.
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("reasoner budget exhausted, applying safety policy",
				"budget", e.budget, "policy", string(e.policy))
			reason := fmt.Sprintf("%ds timeout: %d rooms", int(e.budget.Seconds()), n)
			return e.policy.Fallback(reason), sourceFallback
		}
		e.logger.Warn("reasoner failed, applying safety policy",
			"error", err, "policy", string(e.policy))
		return e.policy.Fallback("Reasoner unavailable"), sourceFallback
	}

	if d, ok := ExtractDecision(text); ok {
		if d.Reason == "" {
			d.Reason = "Reasoner decision"
		}
		if len(d.Reason) > maxReasonLength {
			d.Reason = d.Reason[:maxReasonLength]
		}
		d.TimeTaken = formatSeconds(elapsed)
		return d, sourceReasoner
	}

	e.logger.Warn("unparseable reasoner output, using heuristic",
		"output_length", len(text))
	return e.heuristic(hour, n, elapsed), sourceHeuristic
}

// callBounded runs the reasoner on its own goroutine and enforces the
// budget even against an implementation that ignores ctx. The result
// channel is single-slot so an overdue reply never blocks its sender.
func (e *Engine) callBounded(ctx context.Context, prompt string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("reasoner panic: %v", r)}
			}
		}()
		text, err := e.reasoner.Review(ctx, prompt)
		ch <- result{text: text, err: err}
	}()

	select {
	case res := <-ch:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// heuristic is the rule-of-thumb verdict used when no model verdict is
// available: small daytime batches pass, everything else gets a warning.
func (e *Engine) heuristic(hour, n int, elapsed time.Duration) approval.Decision {
	d := approval.Decision{
		Status: approval.StatusWarning,
		Reason: "Unusual pattern detected",
	}
	if hour >= e.nightEnd && hour < e.nightStart && n <= heuristicMaxRooms {
		d = approval.Decision{
			Status: approval.StatusApproved,
			Reason: fmt.Sprintf("Normal %d rooms daytime", n),
		}
	}
	if elapsed > 0 {
		d.TimeTaken = formatSeconds(elapsed)
	}
	return d
}

// isNight reports whether hour falls in the configured night window.
// The window wraps midnight: h >= start or h <= end.
func (e *Engine) isNight(hour int) bool {
	return hour >= e.nightStart || hour <= e.nightEnd
}

// sensitiveRoom returns the first sensitive room in rooms, if any.
func (e *Engine) sensitiveRoom(rooms []string) (string, bool) {
	for _, room := range rooms {
		for _, sensitive := range e.sensitiveRooms {
			if strings.EqualFold(room, sensitive) {
				return room, true
			}
		}
	}
	return "", false
}

func (e *Engine) publish(d approval.Decision) error {
	payload, err := json.Marshal(struct {
		From     string            `json:"from"`
		Decision approval.Decision `json:"decision"`
	}{From: agentName, Decision: d})
	if err != nil {
		return fmt.Errorf("encoding decision: %w", err)
	}
	return e.mqttClient.Publish(e.topics.SupervisorFeedback(), payload, e.qos, false)
}

// buildPrompt renders the review prompt in the chat template the model
// was tuned for. The instruction pins the output to a bare JSON verdict;
// extraction still copes when the model ignores it.
func buildPrompt(rooms []string, now time.Time, n int) string {
	return fmt.Sprintf(
		"<|im_start|>system\nYou are a JSON generator. Output ONLY valid JSON.\n<|im_end|>\n"+
			"<|im_start|>user\nReview rooms: %s\nTime: %s\nCount: %d\n\n"+
			"Output ONLY: {\"status\":\"approved\",\"reason\":\"Normal operation\"}\n<|im_end|>\n"+
			"<|im_start|>assistant\n",
		strings.Join(rooms, ", "), now.Format("15:04"), n)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
