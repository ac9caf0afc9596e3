package control

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nerrad567/rail-logic-core/internal/dispatcher"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockMQTT struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	publishErr   error
	subscribeErr error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

// deliver routes a message to the handler whose pattern matches topic.
func (m *mockMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
		}
	}
	m.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription matches %s", topic)
	}
	return handler(topic, []byte(payload))
}

func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != s[i] {
			return false
		}
	}
	return true
}

type feedbackInput struct {
	Control  string
	Pin      uint32
	Occupied bool
}

type mockSink struct {
	mu        sync.Mutex
	feedbacks []feedbackInput
	boosters  []interlock.BoosterState
}

func (s *mockSink) FeedbackInput(control string, pin uint32, occupied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks = append(s.feedbacks, feedbackInput{Control: control, Pin: pin, Occupied: occupied})
}

func (s *mockSink) BoosterInput(state interlock.BoosterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boosters = append(s.boosters, state)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

var cs1Decoder = dispatcher.Decoder{ControlID: "cs1", Protocol: "dcc", Address: 3}

func newTestBridge(t *testing.T, client *mockMQTT, stations ...string) (*Bridge, *fakeClock) {
	t.Helper()
	b, err := New(Options{MQTT: client, Stations: stations, StaleAfter: time.Minute, HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	return b, clock
}

func startBridge(t *testing.T, b *Bridge, sink Sink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx, sink); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
}

func decode[T any](t *testing.T, msgs []published) []T {
	t.Helper()
	out := make([]T, len(msgs))
	for i, msg := range msgs {
		if err := json.Unmarshal(msg.Payload, &out[i]); err != nil {
			t.Fatalf("decoding %s: %v", msg.Topic, err)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without MQTT client succeeded, want error")
	}

	b, _ := newTestBridge(t, newMockMQTT(), "cs2", "cs1", "", "cs2")
	if diff := cmp.Diff([]string{"cs1", "cs2"}, b.Stations()); diff != "" {
		t.Errorf("Stations() mismatch (-want +got):\n%s", diff)
	}
	if b.qos != defaultQoS {
		t.Errorf("qos = %d, want %d", b.qos, defaultQoS)
	}
}

func TestBridge_LocoCommands(t *testing.T) {
	client := newMockMQTT()
	b, _ := newTestBridge(t, client, "cs1")

	if err := b.LocoSpeed(cs1Decoder, loco.SpeedReduced); err != nil {
		t.Fatalf("LocoSpeed() error = %v", err)
	}
	if err := b.LocoOrientation(cs1Decoder, interlock.OrientationRight); err != nil {
		t.Fatalf("LocoOrientation() error = %v", err)
	}
	if err := b.LocoFunction(cs1Decoder, 2, true); err != nil {
		t.Fatalf("LocoFunction() error = %v", err)
	}

	msgs := client.on("raillogic/command/cs1/loco")
	want := []LocoCommand{
		{Protocol: "dcc", Address: 3, Speed: ptr(uint16(400))},
		{Protocol: "dcc", Address: 3, Orientation: "right"},
		{Protocol: "dcc", Address: 3, Function: &FunctionCommand{Nr: 2, On: true}},
	}
	got := decode[LocoCommand](t, msgs)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(LocoCommand{}, "ID", "Timestamp")); diff != "" {
		t.Errorf("loco commands mismatch (-want +got):\n%s", diff)
	}
	for _, c := range got {
		if c.ID == "" {
			t.Error("command without id")
		}
	}
	if msgs[0].Retained || msgs[0].QoS != 1 {
		t.Errorf("command published with qos %d retained %v, want qos 1 not retained", msgs[0].QoS, msgs[0].Retained)
	}
}

func TestBridge_Accessory(t *testing.T) {
	client := newMockMQTT()
	b, _ := newTestBridge(t, client, "cs1")
	d := dispatcher.Decoder{ControlID: "cs1", Protocol: "mm", Address: 12}

	if err := b.Accessory(d, interlock.SwitchTurnout, 100*time.Millisecond); err != nil {
		t.Fatalf("Accessory() error = %v", err)
	}

	got := decode[AccessoryCommand](t, client.on("raillogic/command/cs1/accessory"))
	want := []AccessoryCommand{{Protocol: "mm", Address: 12, State: 0, DurationMS: 100}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(AccessoryCommand{}, "ID", "Timestamp")); diff != "" {
		t.Errorf("accessory commands mismatch (-want +got):\n%s", diff)
	}
}

func TestBridge_CommandErrors(t *testing.T) {
	publishErr := errors.New("broker gone")

	tests := []struct {
		name    string
		setup   func(*mockMQTT)
		decoder dispatcher.Decoder
		wantErr error
	}{
		{
			name:    "disconnected",
			setup:   func(m *mockMQTT) { m.connected = false },
			decoder: cs1Decoder,
			wantErr: ErrNotConnected,
		},
		{
			name:    "decoder without station",
			decoder: dispatcher.Decoder{Protocol: "dcc", Address: 3},
			wantErr: ErrMissingStation,
		},
		{
			name:    "publish fails",
			setup:   func(m *mockMQTT) { m.publishErr = publishErr },
			decoder: cs1Decoder,
			wantErr: publishErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockMQTT()
			if tt.setup != nil {
				tt.setup(client)
			}
			b, _ := newTestBridge(t, client, "cs1")
			if err := b.LocoSpeed(tt.decoder, loco.SpeedTravel); !errors.Is(err, tt.wantErr) {
				t.Errorf("LocoSpeed() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridge_Booster(t *testing.T) {
	t.Run("no stations", func(t *testing.T) {
		b, _ := newTestBridge(t, newMockMQTT())
		if err := b.Booster(interlock.BoosterGo); !errors.Is(err, ErrNoStations) {
			t.Errorf("Booster() error = %v, want ErrNoStations", err)
		}
	})

	t.Run("configured and seen stations", func(t *testing.T) {
		client := newMockMQTT()
		b, _ := newTestBridge(t, client, "cs1")
		startBridge(t, b, &mockSink{})
		if err := client.deliver(t, "raillogic/health/s88", `{"id":"s88","status":"healthy"}`); err != nil {
			t.Fatalf("health message error = %v", err)
		}

		if err := b.Booster(interlock.BoosterStop); err != nil {
			t.Fatalf("Booster() error = %v", err)
		}
		for _, station := range []string{"cs1", "s88"} {
			got := decode[BoosterCommand](t, client.on("raillogic/command/"+station+"/booster"))
			if len(got) != 1 || got[0].State != interlock.BoosterStop {
				t.Errorf("booster commands to %s = %+v, want one stop", station, got)
			}
		}
	})

	t.Run("every station fails", func(t *testing.T) {
		client := newMockMQTT()
		client.connected = false
		b, _ := newTestBridge(t, client, "cs1", "cs2")
		err := b.Booster(interlock.BoosterGo)
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Booster() error = %v, want ErrNotConnected", err)
		}
	})
}

func TestBridge_Input(t *testing.T) {
	client := newMockMQTT()
	b, _ := newTestBridge(t, client, "cs1")
	sink := &mockSink{}
	startBridge(t, b, sink)

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{name: "occupied", topic: "raillogic/feedback/cs1/17", payload: `{"occupied":true}`},
		{name: "free", topic: "raillogic/feedback/cs1/17", payload: `{"occupied":false}`},
		{name: "booster stop", topic: "raillogic/booster/cs1", payload: `{"state":"stop"}`},
		{name: "bad pin", topic: "raillogic/feedback/cs1/x", payload: `{"occupied":true}`, wantErr: mqtt.ErrInvalidTopic},
		{name: "bad feedback json", topic: "raillogic/feedback/cs1/3", payload: `occupied`, wantErr: ErrInvalidPayload},
		{name: "bad booster state", topic: "raillogic/booster/cs1", payload: `{"state":"maybe"}`, wantErr: ErrInvalidPayload},
		{name: "own health", topic: "raillogic/health/core", payload: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.deliver(t, tt.topic, tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("handler error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	wantFeedback := []feedbackInput{{"cs1", 17, true}, {"cs1", 17, false}}
	if diff := cmp.Diff(wantFeedback, sink.feedbacks); diff != "" {
		t.Errorf("feedback input mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interlock.BoosterState{interlock.BoosterStop}, sink.boosters); diff != "" {
		t.Errorf("booster input mismatch (-want +got):\n%s", diff)
	}
	if _, ok := b.LastSeen()["cs1"]; !ok {
		t.Error("cs1 not marked as seen")
	}
}

func TestBridge_Start(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		b, _ := newTestBridge(t, newMockMQTT(), "cs1")
		startBridge(t, b, &mockSink{})
		if err := b.Start(context.Background(), &mockSink{}); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
		}
	})

	t.Run("nil sink", func(t *testing.T) {
		b, _ := newTestBridge(t, newMockMQTT(), "cs1")
		if err := b.Start(context.Background(), nil); err == nil {
			t.Error("Start(nil) succeeded, want error")
		}
	})

	t.Run("subscribe fails", func(t *testing.T) {
		client := newMockMQTT()
		client.subscribeErr = mqtt.ErrSubscribeFailed
		b, _ := newTestBridge(t, client, "cs1")
		if err := b.Start(context.Background(), &mockSink{}); !errors.Is(err, mqtt.ErrSubscribeFailed) {
			t.Errorf("Start() error = %v, want ErrSubscribeFailed", err)
		}
	})

	t.Run("publishes starting health", func(t *testing.T) {
		client := newMockMQTT()
		b, _ := newTestBridge(t, client, "cs1")
		startBridge(t, b, &mockSink{})
		msgs := client.on("raillogic/health/core")
		if len(msgs) == 0 {
			t.Fatal("no core health published")
		}
		first := decode[HealthMessage](t, msgs[:1])[0]
		if first.Status != HealthStarting || !msgs[0].Retained {
			t.Errorf("first health = %s retained %v, want starting retained", first.Status, msgs[0].Retained)
		}
	})
}

func TestBridge_HealthCheck(t *testing.T) {
	client := newMockMQTT()
	b, clock := newTestBridge(t, client, "cs1", "cs2")
	startBridge(t, b, &mockSink{})
	ctx := context.Background()

	if err := b.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() right after start error = %v", err)
	}

	clock.Advance(30 * time.Second)
	if err := client.deliver(t, "raillogic/health/cs1", `{"id":"cs1","status":"healthy"}`); err != nil {
		t.Fatalf("health message error = %v", err)
	}
	clock.Advance(45 * time.Second)

	err := b.HealthCheck(ctx)
	if !errors.Is(err, ErrStationSilent) {
		t.Fatalf("HealthCheck() error = %v, want ErrStationSilent", err)
	}
	if !strings.Contains(err.Error(), "cs2") || strings.Contains(err.Error(), "cs1") {
		t.Errorf("HealthCheck() error = %q, want only cs2 silent", err)
	}

	if err := client.deliver(t, "raillogic/feedback/cs2/1", `{"occupied":true}`); err != nil {
		t.Fatalf("feedback message error = %v", err)
	}
	if err := b.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after cs2 reported error = %v", err)
	}

	client.setConnected(false)
	if err := b.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() disconnected error = %v, want ErrNotConnected", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := b.HealthCheck(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}
