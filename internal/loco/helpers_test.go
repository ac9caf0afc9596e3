package loco

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// testLayout is a small in-memory dispatcher serving both the interlock
// objects and the locos, so feedbacks reach the automaton the same way
// they do in production.
type testLayout struct {
	mu          sync.Mutex
	tracks      map[interlock.ObjectID]*interlock.Track
	routes      map[interlock.ObjectID]*interlock.Route
	feedbacks   map[interlock.ObjectID]*interlock.Feedback
	accessories map[interlock.ObjectID]*interlock.Accessory
	locos       map[interlock.ObjectID]*Loco

	booster      interlock.BoosterState
	boosterReads []interlock.BoosterState
	nrOfTracks   int
	speedWrites  []speedWrite
	destinations []destination
	published    int
}

type speedWrite struct {
	Loco  interlock.ObjectID
	Speed Speed
}

type destination struct {
	Loco, Route, Track interlock.ObjectID
}

func newTestLayout() *testLayout {
	return &testLayout{
		tracks:      make(map[interlock.ObjectID]*interlock.Track),
		routes:      make(map[interlock.ObjectID]*interlock.Route),
		feedbacks:   make(map[interlock.ObjectID]*interlock.Feedback),
		accessories: make(map[interlock.ObjectID]*interlock.Accessory),
		locos:       make(map[interlock.ObjectID]*Loco),
		booster:     interlock.BoosterGo,
		nrOfTracks:  DefaultNrOfTracksToReserve,
	}
}

func (tl *testLayout) GetTrack(id interlock.ObjectID) *interlock.Track {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.tracks[id]
}

func (tl *testLayout) GetRoute(id interlock.ObjectID) *interlock.Route {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.routes[id]
}

func (tl *testLayout) GetFeedback(id interlock.ObjectID) *interlock.Feedback {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.feedbacks[id]
}

func (tl *testLayout) GetAccessory(id interlock.ObjectID) *interlock.Accessory {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.accessories[id]
}

func (tl *testLayout) GetCounter(interlock.ObjectID) *interlock.Counter { return nil }
func (tl *testLayout) GetCluster(interlock.ObjectID) *interlock.Cluster { return nil }

func (tl *testLayout) getLoco(h interlock.Handle) *Loco {
	if h.Type != interlock.ObjectTypeLoco {
		return nil
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.locos[h.ID]
}

// Booster answers from boosterReads first, then with the stored state.
func (tl *testLayout) Booster() interlock.BoosterState {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.boosterReads) > 0 {
		state := tl.boosterReads[0]
		tl.boosterReads = tl.boosterReads[1:]
		return state
	}
	return tl.booster
}

func (tl *testLayout) SetBooster(state interlock.BoosterState) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.booster = state
}

func (tl *testLayout) NrOfTracksToReserve() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.nrOfTracks
}

func (tl *testLayout) StopOnFeedbackInFreeTrack() bool { return false }

func (tl *testLayout) SelectRouteApproach() interlock.SelectRouteApproach {
	return interlock.SelectRouteDoNotCare
}

func (tl *testLayout) AccessoryState(interlock.AccessorySnapshot) error { return nil }

func (tl *testLayout) LocoBaseFunctionState(h interlock.Handle, nr uint8, on bool) {
	if l := tl.getLoco(h); l != nil {
		l.SetFunctionState(nr, on)
	}
}

func (tl *testLayout) LocoBaseOrientation(h interlock.Handle, o interlock.Orientation) {
	if l := tl.getLoco(h); l != nil {
		l.SetOrientation(o)
	}
}

func (tl *testLayout) LocationReached(h interlock.Handle, feedback interlock.ObjectID) {
	if l := tl.getLoco(h); l != nil {
		l.LocationReached(feedback)
	}
}

func (tl *testLayout) CheckFreeingTrack(h interlock.Handle, track interlock.ObjectID) bool {
	if l := tl.getLoco(h); l != nil {
		return l.CheckFreeingTrack(track)
	}
	return false
}

func (tl *testLayout) TrackPublishState(interlock.TrackSnapshot)       {}
func (tl *testLayout) RoutePublishState(interlock.RouteSnapshot)       {}
func (tl *testLayout) FeedbackPublishState(interlock.FeedbackSnapshot) {}

func (tl *testLayout) SendLocoSpeed(id interlock.ObjectID, speed Speed) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.speedWrites = append(tl.speedWrites, speedWrite{Loco: id, Speed: speed})
}

func (tl *testLayout) SendLocoOrientation(interlock.ObjectID, interlock.Orientation) {}
func (tl *testLayout) SendLocoFunction(interlock.ObjectID, uint8, bool)              {}

func (tl *testLayout) LocoDestinationReached(loco, route, track interlock.ObjectID) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.destinations = append(tl.destinations, destination{Loco: loco, Route: route, Track: track})
}

func (tl *testLayout) LocoPublishState(Snapshot) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.published++
}

// ─── Layout builders ────────────────────────────────────────────────────────

func (tl *testLayout) addTrack(id interlock.ObjectID) *interlock.Track {
	track := interlock.NewTrack(interlock.TrackConfig{ID: id, Name: "track", AllowLocoTurn: true}, tl, nil)
	tl.mu.Lock()
	tl.tracks[id] = track
	tl.mu.Unlock()
	return track
}

func (tl *testLayout) addRoute(t *testing.T, cfg interlock.RouteConfig) *interlock.Route {
	t.Helper()
	route, err := interlock.NewRoute(cfg, tl, nil)
	if err != nil {
		t.Fatalf("NewRoute(%d) error = %v", cfg.ID, err)
	}
	tl.mu.Lock()
	tl.routes[cfg.ID] = route
	from := tl.tracks[cfg.FromTrack]
	tl.mu.Unlock()
	if from != nil {
		from.AddRoute(cfg.ID)
	}
	return route
}

func (tl *testLayout) addFeedback(id, trackID interlock.ObjectID) *interlock.Feedback {
	f := interlock.NewFeedback(interlock.FeedbackConfig{ID: id, TrackID: trackID}, tl, nil)
	tl.mu.Lock()
	tl.feedbacks[id] = f
	track := tl.tracks[trackID]
	tl.mu.Unlock()
	if track != nil {
		track.BindFeedback(id)
	}
	return f
}

// addLoco creates a loco with a fast tick and places it on trackID.
func (tl *testLayout) addLoco(t *testing.T, cfg Config, trackID interlock.ObjectID) *Loco {
	t.Helper()
	l := New(cfg, tl, 2*time.Millisecond, nil)
	tl.mu.Lock()
	tl.locos[cfg.ID] = l
	tl.mu.Unlock()

	if trackID == 0 {
		return l
	}
	track := tl.GetTrack(trackID)
	if err := track.ReserveForce(l.Handle()); err != nil {
		t.Fatalf("ReserveForce() error = %v", err)
	}
	if err := track.Lock(l.Handle()); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := l.SetTrack(trackID); err != nil {
		t.Fatalf("SetTrack() error = %v", err)
	}
	t.Cleanup(l.ForceManualMode)
	return l
}

// fire reports a feedback as occupied.
func (tl *testLayout) fire(id interlock.ObjectID) {
	tl.GetFeedback(id).SetState(true)
}

func (tl *testLayout) destinationsReached() []destination {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]destination(nil), tl.destinations...)
}

// testRoute returns an automode route with reduced and stop feedbacks.
func testRoute(id, from, to, reduced, stop interlock.ObjectID) interlock.RouteConfig {
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

func stateIs(l *Loco, want State) func() bool {
	return func() bool { return l.State() == want }
}

func holderOf(l interface {
	LockState() (interlock.LockState, interlock.Handle)
}) interlock.Handle {
	_, h := l.LockState()
	return h
}
