package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/layout"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type speedCmd struct {
	Decoder Decoder
	Speed   loco.Speed
}

type accessoryCmd struct {
	Decoder Decoder
	State   interlock.AccessoryState
}

type mockControl struct {
	mu          sync.Mutex
	speeds      []speedCmd
	functions   []uint8
	accessories []accessoryCmd
	boosters    []interlock.BoosterState
	healthErr   error
}

func (c *mockControl) LocoSpeed(d Decoder, speed loco.Speed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speeds = append(c.speeds, speedCmd{Decoder: d, Speed: speed})
	return nil
}

func (c *mockControl) LocoOrientation(Decoder, interlock.Orientation) error { return nil }

func (c *mockControl) LocoFunction(_ Decoder, nr uint8, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions = append(c.functions, nr)
	return nil
}

func (c *mockControl) Accessory(d Decoder, state interlock.AccessoryState, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessories = append(c.accessories, accessoryCmd{Decoder: d, State: state})
	return nil
}

func (c *mockControl) Booster(state interlock.BoosterState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boosters = append(c.boosters, state)
	return nil
}

func (c *mockControl) HealthCheck(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthErr
}

func (c *mockControl) speedSteps() []loco.Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]loco.Speed, len(c.speeds))
	for i, s := range c.speeds {
		out[i] = s.Speed
	}
	return out
}

func (c *mockControl) accessoryCmds() []accessoryCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]accessoryCmd(nil), c.accessories...)
}

func (c *mockControl) boosterCmds() []interlock.BoosterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interlock.BoosterState(nil), c.boosters...)
}

type hubEvent struct {
	Channel string
	Payload any
}

type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{Channel: channel, Payload: payload})
}

func (h *mockHub) on(channel string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, e := range h.events {
		if e.Channel == channel {
			out = append(out, e.Payload)
		}
	}
	return out
}

type mockTelemetry struct {
	mu         sync.Mutex
	speeds     int
	feedbacks  int
	executions []uint32
	boosters   []bool
}

func (m *mockTelemetry) WriteLocoSpeed(uint32, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speeds++
}

func (m *mockTelemetry) WriteFeedbackState(uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedbacks++
}

func (m *mockTelemetry) WriteRouteExecution(routeID uint32, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, routeID)
}

func (m *mockTelemetry) WriteBoosterState(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boosters = append(m.boosters, on)
}

type savedTrack struct {
	Track       interlock.ObjectID
	Orientation interlock.Orientation
}

type mockStore struct {
	mu     sync.Mutex
	usage  map[interlock.ObjectID]layout.RouteUsage
	tracks map[interlock.ObjectID]savedTrack
}

func newMockStore() *mockStore {
	return &mockStore{
		usage:  make(map[interlock.ObjectID]layout.RouteUsage),
		tracks: make(map[interlock.ObjectID]savedTrack),
	}
}

func (s *mockStore) SaveRouteUsage(_ context.Context, id interlock.ObjectID, usage layout.RouteUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[id] = usage
	return nil
}

func (s *mockStore) SaveLocoTrack(_ context.Context, id, track interlock.ObjectID, o interlock.Orientation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[id] = savedTrack{Track: track, Orientation: o}
	return nil
}

func (s *mockStore) savedTrack(id interlock.ObjectID) (savedTrack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[id]
	return st, ok
}

func (s *mockStore) savedUsage(id interlock.ObjectID) layout.RouteUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[id]
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

type fixture struct {
	m         *Manager
	control   *mockControl
	hub       *mockHub
	telemetry *mockTelemetry
	store     *mockStore
}

func testConfig() Config {
	return Config{
		TickInterval:        2 * time.Millisecond,
		DebounceInterval:    5 * time.Millisecond,
		HealthInterval:      time.Hour,
		NrOfTracksToReserve: 2,
	}
}

// newFixture builds l into a manager wired to mocks. The manager is
// stopped when the test ends.
func newFixture(t *testing.T, cfg Config, l *layout.Layout) *fixture {
	t.Helper()
	f := &fixture{
		control:   &mockControl{},
		hub:       &mockHub{},
		telemetry: &mockTelemetry{},
		store:     newMockStore(),
	}
	f.m = New(cfg, Deps{Control: f.control, Hub: f.hub, Telemetry: f.telemetry, Store: f.store})
	if err := f.m.Build(l); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() {
		if err := f.m.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func automodeRoute(id, from, to, reduced, stop interlock.ObjectID) interlock.RouteConfig {
	cfg := interlock.DefaultRouteConfig()
	cfg.ID = id
	cfg.Name = "route"
	cfg.DelayMS = 0
	cfg.FromTrack = from
	cfg.ToTrack = to
	cfg.Automode = true
	cfg.FeedbackReduced = reduced
	cfg.FeedbackStop = stop
	return cfg
}

// lineLayout is A(1) ──route 10──▶ B(2) with switch 100 set straight on
// the way and signal 101 guarding B. B has feedbacks 21 (reduced, pin 1)
// and 22 (stop, pin 2) on command station "cs1". Loco 1 stands on A.
func lineLayout() *layout.Layout {
	route := automodeRoute(10, 1, 2, 21, 22)
	route.Relations = []interlock.RelationConfig{
		{Kind: interlock.RelationAtLock, ObjectType: interlock.ObjectTypeSwitch, ObjectID: 100, Data: uint16(interlock.SwitchStraight)},
	}
	return &layout.Layout{
		Tracks: []interlock.TrackConfig{
			{ID: 1, Name: "A", AllowLocoTurn: true},
			{ID: 2, Name: "B", AllowLocoTurn: true, Signals: []interlock.ObjectID{101}},
		},
		Feedbacks: []interlock.FeedbackConfig{
			{ID: 21, Name: "B reduced", ControlID: "cs1", Pin: 1, TrackID: 2},
			{ID: 22, Name: "B stop", ControlID: "cs1", Pin: 2, TrackID: 2},
		},
		Accessories: []interlock.AccessoryConfig{
			{ID: 100, Name: "W1", Kind: interlock.ObjectTypeSwitch, ControlID: "cs1", Protocol: "dcc", Address: 5},
			{ID: 101, Name: "S1", Kind: interlock.ObjectTypeSignal, ControlID: "cs1", Protocol: "dcc", Address: 6},
		},
		Routes: []interlock.RouteConfig{route},
		Locos: []loco.Config{
			{ID: 1, Name: "BR 218", ControlID: "cs1", Protocol: "dcc", Address: 3, TrackID: 1},
		},
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func holderOf(l interface {
	LockState() (interlock.LockState, interlock.Handle)
}) interlock.Handle {
	_, h := l.LockState()
	return h
}

func stateOf(l interface {
	LockState() (interlock.LockState, interlock.Handle)
}) interlock.LockState {
	s, _ := l.LockState()
	return s
}
