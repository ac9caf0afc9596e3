package interlock

import (
	"sync"
	"testing"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// fakeDispatcher is an in-memory layout registry that records fan-out.
type fakeDispatcher struct {
	mu          sync.Mutex
	tracks      map[ObjectID]*Track
	routes      map[ObjectID]*Route
	feedbacks   map[ObjectID]*Feedback
	counters    map[ObjectID]*Counter
	accessories map[ObjectID]*Accessory
	clusters    map[ObjectID]*Cluster

	booster          BoosterState
	stopOnFreeTrack  bool
	approach         SelectRouteApproach
	allowFreeing     bool
	accessoryFailOn  ObjectID
	accessoryWrites  []AccessorySnapshot
	locationsReached []locationReached
	freeingChecks    int
	functionWrites   []functionWrite
}

type locationReached struct {
	Loco     Handle
	Feedback ObjectID
}

type functionWrite struct {
	Loco Handle
	Nr   uint8
	On   bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		tracks:      make(map[ObjectID]*Track),
		routes:      make(map[ObjectID]*Route),
		feedbacks:   make(map[ObjectID]*Feedback),
		counters:    make(map[ObjectID]*Counter),
		accessories: make(map[ObjectID]*Accessory),
		clusters:    make(map[ObjectID]*Cluster),
		booster:     BoosterGo,
		approach:    SelectRouteDoNotCare,
	}
}

func (d *fakeDispatcher) GetTrack(id ObjectID) *Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracks[id]
}

func (d *fakeDispatcher) GetRoute(id ObjectID) *Route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.routes[id]
}

func (d *fakeDispatcher) GetFeedback(id ObjectID) *Feedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedbacks[id]
}

func (d *fakeDispatcher) GetCounter(id ObjectID) *Counter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters[id]
}

func (d *fakeDispatcher) GetAccessory(id ObjectID) *Accessory {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accessories[id]
}

func (d *fakeDispatcher) GetCluster(id ObjectID) *Cluster {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clusters[id]
}

func (d *fakeDispatcher) Booster() BoosterState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.booster
}

func (d *fakeDispatcher) SetBooster(state BoosterState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.booster = state
}

func (d *fakeDispatcher) StopOnFeedbackInFreeTrack() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopOnFreeTrack
}

func (d *fakeDispatcher) SelectRouteApproach() SelectRouteApproach {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.approach
}

func (d *fakeDispatcher) AccessoryState(a AccessorySnapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.accessoryFailOn != 0 && a.ID == d.accessoryFailOn {
		return errTestHardware
	}
	d.accessoryWrites = append(d.accessoryWrites, a)
	return nil
}

func (d *fakeDispatcher) LocoBaseFunctionState(loco Handle, nr uint8, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.functionWrites = append(d.functionWrites, functionWrite{Loco: loco, Nr: nr, On: on})
}

func (d *fakeDispatcher) LocoBaseOrientation(Handle, Orientation) {}

func (d *fakeDispatcher) LocationReached(loco Handle, feedback ObjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locationsReached = append(d.locationsReached, locationReached{Loco: loco, Feedback: feedback})
}

func (d *fakeDispatcher) CheckFreeingTrack(Handle, ObjectID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freeingChecks++
	return d.allowFreeing
}

func (d *fakeDispatcher) TrackPublishState(TrackSnapshot)       {}
func (d *fakeDispatcher) RoutePublishState(RouteSnapshot)       {}
func (d *fakeDispatcher) FeedbackPublishState(FeedbackSnapshot) {}

type testError string

func (e testError) Error() string { return string(e) }

const errTestHardware = testError("hardware unavailable")

// ─── Helpers ────────────────────────────────────────────────────────────────

var (
	loco1 = LocoHandle(1)
	loco2 = LocoHandle(2)
)

func (d *fakeDispatcher) addTrack(t *testing.T, cfg TrackConfig) *Track {
	t.Helper()
	track := NewTrack(cfg, d, nil)
	d.mu.Lock()
	d.tracks[cfg.ID] = track
	d.mu.Unlock()
	return track
}

func (d *fakeDispatcher) addRoute(t *testing.T, cfg RouteConfig) *Route {
	t.Helper()
	route, err := NewRoute(cfg, d, nil)
	if err != nil {
		t.Fatalf("NewRoute(%d) error = %v", cfg.ID, err)
	}
	d.mu.Lock()
	d.routes[cfg.ID] = route
	d.mu.Unlock()
	if from := d.GetTrack(cfg.FromTrack); from != nil {
		from.AddRoute(cfg.ID)
	}
	return route
}

func (d *fakeDispatcher) addAccessory(t *testing.T, cfg AccessoryConfig) *Accessory {
	t.Helper()
	acc := NewAccessory(cfg, d)
	d.mu.Lock()
	d.accessories[cfg.ID] = acc
	d.mu.Unlock()
	return acc
}

func (d *fakeDispatcher) addFeedback(t *testing.T, cfg FeedbackConfig) *Feedback {
	t.Helper()
	f := NewFeedback(cfg, d, nil)
	d.mu.Lock()
	d.feedbacks[cfg.ID] = f
	d.mu.Unlock()
	if track := d.GetTrack(cfg.TrackID); track != nil {
		track.BindFeedback(cfg.ID)
	}
	return f
}

func (d *fakeDispatcher) addCounter(t *testing.T, cfg CounterConfig) *Counter {
	t.Helper()
	c := NewCounter(cfg)
	d.mu.Lock()
	d.counters[cfg.ID] = c
	d.mu.Unlock()
	return c
}

func (d *fakeDispatcher) addCluster(t *testing.T, cfg ClusterConfig, members ...ObjectID) *Cluster {
	t.Helper()
	c := NewCluster(cfg, d)
	for _, m := range members {
		c.AddTrack(m)
	}
	d.mu.Lock()
	d.clusters[cfg.ID] = c
	d.mu.Unlock()
	return c
}

func (d *fakeDispatcher) reachedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locationsReached)
}

// autoRoute returns an automode route config from one track to another.
func autoRoute(id, from, to ObjectID) RouteConfig {
	cfg := DefaultRouteConfig()
	cfg.ID = id
	cfg.Name = "route"
	cfg.DelayMS = 0
	cfg.FromTrack = from
	cfg.ToTrack = to
	cfg.Automode = true
	return cfg
}

func assertLockState(t *testing.T, name string, l interface{ LockState() (LockState, Handle) }, want LockState) {
	t.Helper()
	got, holder := l.LockState()
	if got != want {
		t.Errorf("%s lock state = %s (holder %s), want %s", name, got, holder, want)
	}
}
