package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/dispatcher"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Bridge defaults.
const (
	// defaultQoS is used for commands and subscriptions.
	defaultQoS = 1

	// defaultStaleAfter is how long a command station may stay silent
	// before HealthCheck reports it.
	defaultStaleAfter = 90 * time.Second

	// defaultHealthInterval is how often the core publishes its health.
	defaultHealthInterval = 30 * time.Second
)

var _ dispatcher.Control = (*Bridge)(nil)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Sink receives hardware input. *dispatcher.Manager satisfies it.
type Sink interface {
	FeedbackInput(control string, pin uint32, occupied bool)
	BoosterInput(state interlock.BoosterState)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Stations are the command station ids the layout uses. Booster
	// commands go to each of them and HealthCheck expects each to report.
	Stations []string

	// QoS for commands and subscriptions. Default: 1.
	QoS byte

	// StaleAfter is the silence after which a station counts as lost.
	// Default: 90 seconds.
	StaleAfter time.Duration

	// HealthInterval is how often the core health is published.
	// Default: 30 seconds.
	HealthInterval time.Duration

	// Version is reported in the core health message.
	Version string

	Logger Logger
}

// Bridge translates between the dispatcher and command station gateways
// on the MQTT bus. It implements dispatcher.Control for commands and feeds
// sensor and booster reports into a Sink.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	topics     mqtt.Topics
	qos        byte
	staleAfter time.Duration
	stations   []string
	logger     Logger
	health     *HealthReporter

	seenMu   sync.RWMutex
	lastSeen map[string]time.Time

	started   atomic.Bool
	startedAt time.Time
	now       func() time.Time
}

// New creates a bridge. Call Start to subscribe to hardware input.
//
// Returns:
//   - *Bridge: Ready to send commands
//   - error: If no MQTT client is given
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	b := &Bridge{
		mqtt:       opts.MQTT,
		qos:        opts.QoS,
		staleAfter: opts.StaleAfter,
		logger:     opts.Logger,
		lastSeen:   make(map[string]time.Time),
		now:        time.Now,
	}
	if b.qos == 0 {
		b.qos = defaultQoS
	}
	if b.staleAfter <= 0 {
		b.staleAfter = defaultStaleAfter
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	for _, s := range opts.Stations {
		if s != "" && !slices.Contains(b.stations, s) {
			b.stations = append(b.stations, s)
		}
	}
	slices.Sort(b.stations)

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Source:    b,
	})
	b.health.SetLogger(b.logger)
	return b, nil
}

// Start subscribes to sensor, booster and health reports and starts the
// health reporter.
//
// Parameters:
//   - ctx: Stops the health reporter when cancelled
//   - sink: Receives every decoded report
func (b *Bridge) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("sink is required")
	}
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	b.seenMu.Lock()
	b.startedAt = b.now()
	b.seenMu.Unlock()

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllFeedbacks(), b.feedbackHandler(sink)},
		{b.topics.AllBoosters(), b.boosterHandler(sink)},
		{b.topics.AllHealth(), b.handleHealth},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, b.qos, s.handler); err != nil {
			b.started.Store(false)
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("publishing starting health", "error", err)
	}
	b.health.Start(ctx)
	b.logger.Info("control bridge started", "stations", b.stations)
	return nil
}

// Stop halts the health reporter and publishes a final stopping status.
func (b *Bridge) Stop() {
	b.health.Stop()
}

// ─── Commands ───────────────────────────────────────────────────────────────

// LocoSpeed publishes a speed step for a loco decoder.
func (b *Bridge) LocoSpeed(d dispatcher.Decoder, speed loco.Speed) error {
	cmd := newLocoCommand(d.Protocol, d.Address)
	s := uint16(speed)
	cmd.Speed = &s
	return b.publish(d.ControlID, mqtt.CommandLoco, cmd)
}

// LocoOrientation publishes the travel direction for a loco decoder.
func (b *Bridge) LocoOrientation(d dispatcher.Decoder, orientation interlock.Orientation) error {
	cmd := newLocoCommand(d.Protocol, d.Address)
	cmd.Orientation = orientation.String()
	return b.publish(d.ControlID, mqtt.CommandLoco, cmd)
}

// LocoFunction publishes a decoder function switch.
func (b *Bridge) LocoFunction(d dispatcher.Decoder, nr uint8, on bool) error {
	cmd := newLocoCommand(d.Protocol, d.Address)
	cmd.Function = &FunctionCommand{Nr: nr, On: on}
	return b.publish(d.ControlID, mqtt.CommandLoco, cmd)
}

// Accessory publishes a switch, signal or accessory output state.
func (b *Bridge) Accessory(d dispatcher.Decoder, state interlock.AccessoryState, duration time.Duration) error {
	cmd := AccessoryCommand{
		ID:         newCommandID(),
		Timestamp:  b.now().UTC(),
		Protocol:   d.Protocol,
		Address:    d.Address,
		State:      uint8(state),
		DurationMS: duration.Milliseconds(),
	}
	return b.publish(d.ControlID, mqtt.CommandAccessory, cmd)
}

// Booster switches track power on every known command station. All
// stations are tried; the errors of those that failed are joined.
func (b *Bridge) Booster(state interlock.BoosterState) error {
	stations := b.Stations()
	if len(stations) == 0 {
		return ErrNoStations
	}
	var errs []error
	for _, s := range stations {
		cmd := BoosterCommand{ID: newCommandID(), Timestamp: b.now().UTC(), State: state}
		if err := b.publish(s, mqtt.CommandBooster, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bridge) publish(station, kind string, msg any) error {
	if station == "" {
		return fmt.Errorf("%s command: %w", kind, ErrMissingStation)
	}
	if !b.mqtt.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", kind, err)
	}
	topic := b.topics.Command(station, kind)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// ─── Input ──────────────────────────────────────────────────────────────────

func (b *Bridge) feedbackHandler(sink Sink) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		station, pin, err := b.topics.ParseFeedback(topic)
		if err != nil {
			return err
		}
		var msg FeedbackMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
		}
		b.markSeen(station)
		sink.FeedbackInput(station, pin, msg.Occupied)
		return nil
	}
}

func (b *Bridge) boosterHandler(sink Sink) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		station, err := b.topics.ParseStation(topic, "booster")
		if err != nil {
			return err
		}
		var msg BoosterMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
		}
		b.markSeen(station)
		b.logger.Info("booster reported", "control_id", station, "state", msg.State.String())
		sink.BoosterInput(msg.State)
		return nil
	}
}

func (b *Bridge) handleHealth(topic string, payload []byte) error {
	station, err := b.topics.ParseStation(topic, "health")
	if err != nil {
		return err
	}
	if station == mqtt.CoreHealthID {
		return nil
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
	}
	b.markSeen(station)
	if msg.Status == HealthDegraded {
		b.logger.Warn("command station degraded", "control_id", station, "reason", msg.Reason)
	}
	return nil
}

func (b *Bridge) markSeen(station string) {
	now := b.now()
	b.seenMu.Lock()
	_, known := b.lastSeen[station]
	b.lastSeen[station] = now
	b.seenMu.Unlock()
	if !known {
		b.logger.Info("command station seen", "control_id", station)
	}
}

// ─── Health ─────────────────────────────────────────────────────────────────

// Stations returns the configured command stations together with every
// station that has reported, sorted.
func (b *Bridge) Stations() []string {
	b.seenMu.RLock()
	defer b.seenMu.RUnlock()
	out := slices.Clone(b.stations)
	for s := range b.lastSeen {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

// LastSeen returns when each command station last reported.
func (b *Bridge) LastSeen() map[string]time.Time {
	b.seenMu.RLock()
	defer b.seenMu.RUnlock()
	return maps.Clone(b.lastSeen)
}

// HealthCheck reports an error when the broker is unreachable or a
// configured command station has been silent for longer than StaleAfter.
// Stations get StaleAfter from Start to report for the first time.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("control health check: %w", ctx.Err())
	default:
	}
	if !b.mqtt.IsConnected() {
		return ErrNotConnected
	}

	now := b.now()
	b.seenMu.RLock()
	var silent []string
	for _, s := range b.stations {
		last, ok := b.lastSeen[s]
		if !ok {
			last = b.startedAt
		}
		if now.Sub(last) > b.staleAfter {
			silent = append(silent, s)
		}
	}
	b.seenMu.RUnlock()

	if len(silent) > 0 {
		return fmt.Errorf("%w: %s", ErrStationSilent, strings.Join(silent, ", "))
	}
	return nil
}
