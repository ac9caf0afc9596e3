package loco

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// lineLayout builds A(1) ─route 10─▶ B(2) ─route 11─▶ C(3) with reduced
// feedbacks 21/31 and stop feedbacks 22/32.
func lineLayout(t *testing.T) *testLayout {
	t.Helper()
	tl := newTestLayout()
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addTrack(3)
	tl.addFeedback(21, 2)
	tl.addFeedback(22, 2)
	tl.addFeedback(31, 3)
	tl.addFeedback(32, 3)
	tl.addRoute(t, testRoute(10, 1, 2, 21, 22))
	tl.addRoute(t, testRoute(11, 2, 3, 31, 32))
	return tl
}

func (tl *testLayout) speedsOf(id interlock.ObjectID) []Speed {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	var speeds []Speed
	for _, w := range tl.speedWrites {
		if w.Loco == id {
			speeds = append(speeds, w.Speed)
		}
	}
	return speeds
}

func routeFirstIs(l *Loco, id interlock.ObjectID) func() bool {
	return func() bool { return l.Snapshot().RouteFirst == id }
}

func TestLoco_GoToAutoModeErrors(t *testing.T) {
	tl := lineLayout(t)

	unplaced := tl.addLoco(t, Config{ID: 1}, 0)
	if err := unplaced.GoToAutoMode(AutoModeAutomode); !errors.Is(err, ErrNotOnTrack) {
		t.Errorf("GoToAutoMode() unplaced error = %v, want ErrNotOnTrack", err)
	}

	l := tl.addLoco(t, Config{ID: 2}, 3)
	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	if err := l.GoToAutoMode(AutoModeAutomode); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("GoToAutoMode() twice error = %v, want ErrAlreadyRunning", err)
	}

	l.ForceManualMode()
	l.mu.Lock()
	l.state = StateError
	l.mu.Unlock()
	if err := l.GoToAutoMode(AutoModeAutomode); !errors.Is(err, ErrErrorState) {
		t.Errorf("GoToAutoMode() in error state error = %v, want ErrErrorState", err)
	}
	l.mu.Lock()
	l.state = StateManual
	l.mu.Unlock()
}

func TestLoco_TwoRouteWindow(t *testing.T) {
	tl := lineLayout(t)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "both routes reserved", stateIs(l, StateAutomodeRunning))

	snap := l.Snapshot()
	got := []interlock.ObjectID{snap.TrackFrom, snap.TrackFirst, snap.TrackSecond, snap.RouteFirst, snap.RouteSecond}
	if diff := cmp.Diff([]interlock.ObjectID{1, 2, 3, 10, 11}, got); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []interlock.ObjectID{2, 3} {
		if h := tl.GetTrack(id).Holder(); h != l.Handle() {
			t.Errorf("track %d holder = %v, want loco", id, h)
		}
	}

	// Entering B moves the window on; route 10 and track A are given back.
	tl.fire(22)
	eventually(t, "window shift", routeFirstIs(l, 11))
	eventually(t, "route 10 released", func() bool {
		return holderOf(tl.GetRoute(10)) == interlock.Handle{}
	})
	if h := tl.GetTrack(1).Holder(); h.IsSet() {
		t.Errorf("track 1 holder = %v, want free", h)
	}
	if got := l.State(); got != StateAutomodeGetSecond {
		t.Errorf("State() = %v, want %v", got, StateAutomodeGetSecond)
	}

	tl.fire(31)
	tl.fire(32)
	eventually(t, "destination reached", func() bool { return len(tl.destinationsReached()) == 1 })
	eventually(t, "searching from C", stateIs(l, StateAutomodeGetFirst))

	if diff := cmp.Diff([]destination{{Loco: 1, Route: 11, Track: 3}}, tl.destinationsReached()); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Speed{SpeedTravel, SpeedReduced, SpeedMin}, tl.speedsOf(1)); diff != "" {
		t.Errorf("speed writes mismatch (-want +got):\n%s", diff)
	}

	// B still reads occupied, so the loco keeps it as delayed holder.
	track := tl.GetTrack(2)
	if track.Holder().IsSet() {
		t.Errorf("track 2 holder = %v, want released", track.Holder())
	}
	if got := track.DelayedHolder(); got != l.Handle() {
		t.Errorf("track 2 delayed holder = %v, want loco", got)
	}
	if got := l.TrackID(); got != 3 {
		t.Errorf("TrackID() = %d, want 3", got)
	}
}

func TestLoco_SpeedOnlyDrops(t *testing.T) {
	tl := newTestLayout()
	tl.nrOfTracks = 1
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addFeedback(21, 2)
	tl.addFeedback(22, 2)
	tl.addFeedback(23, 2)
	cfg := testRoute(10, 1, 2, 21, 22)
	cfg.FeedbackCreep = 23
	tl.addRoute(t, cfg)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))

	// Stop before creep before reduced: the loco must stay stopped.
	tl.fire(22)
	tl.fire(23)
	tl.fire(21)
	l.LocationReached(22)

	eventually(t, "destination reached", func() bool { return len(tl.destinationsReached()) == 1 })
	time.Sleep(10 * time.Millisecond)

	if got := len(tl.destinationsReached()); got != 1 {
		t.Errorf("destinations reached = %d, want 1", got)
	}
	if diff := cmp.Diff([]Speed{SpeedTravel, SpeedMin}, tl.speedsOf(1)); diff != "" {
		t.Errorf("speed writes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoco_DelayedStop(t *testing.T) {
	tl := newTestLayout()
	tl.nrOfTracks = 1
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addFeedback(22, 2)
	cfg := testRoute(10, 1, 2, 0, 22)
	cfg.StopDelayMS = 30
	tl.addRoute(t, cfg)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))

	tl.fire(22)
	if got := l.PendingDelays(); got != 1 {
		t.Fatalf("PendingDelays() = %d, want 1", got)
	}
	if got := l.Speed(); got != SpeedTravel {
		t.Errorf("Speed() before delay = %d, want %d", got, SpeedTravel)
	}

	eventually(t, "delayed stop", func() bool { return len(tl.destinationsReached()) == 1 })
	if got := l.Speed(); got != SpeedMin {
		t.Errorf("Speed() after delay = %d, want 0", got)
	}
	if got := l.PendingDelays(); got != 0 {
		t.Errorf("PendingDelays() after delay = %d, want 0", got)
	}
}

func TestLoco_ReleaseCancelsDelaysAndFreesEverything(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	cfg := testRoute(10, 1, 2, 21, 22)
	cfg.StopDelayMS = 60_000
	tl.addRoute(t, cfg)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))
	tl.fire(22)
	if got := l.PendingDelays(); got != 1 {
		t.Fatalf("PendingDelays() = %d, want 1", got)
	}

	l.Release()

	if got := l.PendingDelays(); got != 0 {
		t.Errorf("PendingDelays() after Release = %d, want 0", got)
	}
	if got := l.State(); got != StateManual {
		t.Errorf("State() = %v, want manual", got)
	}
	if got := l.Speed(); got != SpeedMin {
		t.Errorf("Speed() = %d, want 0", got)
	}
	if state, _ := tl.GetRoute(10).LockState(); state != interlock.LockStateFree {
		t.Errorf("route 10 lock state = %v, want free", state)
	}
	if state, _ := tl.GetTrack(1).LockState(); state != interlock.LockStateFree {
		t.Errorf("track 1 lock state = %v, want free", state)
	}
	if h := tl.GetTrack(2).Holder(); h.IsSet() {
		t.Errorf("track 2 holder = %v, want released", h)
	}
	if got := l.TrackID(); got != 0 {
		t.Errorf("TrackID() = %d, want 0", got)
	}
}

func TestLoco_ManualModeHandshake(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))

	l.RequestManualMode()
	eventually(t, "stopping", stateIs(l, StateStopping))
	if l.GoToManualMode() {
		t.Fatal("GoToManualMode() = true while the train is still running")
	}

	tl.fire(22)
	eventually(t, "manual mode", l.GoToManualMode)

	if got := l.State(); got != StateManual {
		t.Errorf("State() = %v, want manual", got)
	}
	if got := len(tl.destinationsReached()); got != 1 {
		t.Errorf("destinations reached = %d, want 1", got)
	}
	if got := l.TrackID(); got != 2 {
		t.Errorf("TrackID() = %d, want 2", got)
	}
	if h := tl.GetTrack(2).Holder(); h != l.Handle() {
		t.Errorf("track 2 holder = %v, want loco", h)
	}
}

func TestLoco_ManualModeWhileSearching(t *testing.T) {
	tl := newTestLayout()
	tl.addTrack(1)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	l.RequestManualMode()
	eventually(t, "manual mode", l.GoToManualMode)

	// A loco in manual mode ignores feedback markers.
	l.LocationReached(22)
	if got := tl.speedsOf(1); len(got) != 0 {
		t.Errorf("speed writes = %v, want none", got)
	}
}

func TestLoco_ForceManualModeKeepsReservations(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))

	l.ForceManualMode()

	if got := l.State(); got != StateManual {
		t.Errorf("State() = %v, want manual", got)
	}
	if h := holderOf(tl.GetRoute(10)); h != l.Handle() {
		t.Errorf("route 10 holder = %v, want loco", h)
	}

	// Automode resumes on the reserved window.
	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() after force error = %v", err)
	}
	l.ForceManualMode()
	l.Release()
	if h := holderOf(tl.GetRoute(10)); h.IsSet() {
		t.Errorf("route 10 holder after Release = %v, want free", h)
	}
}

func TestLoco_OverrunStopsBooster(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	tl.addFeedback(29, 2)
	cfg := testRoute(10, 1, 2, 21, 22)
	cfg.FeedbackOver = 29
	tl.addRoute(t, cfg)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route reserved", routeFirstIs(l, 10))

	tl.fire(29)

	if got := tl.Booster(); got != interlock.BoosterStop {
		t.Errorf("Booster() = %v, want stop", got)
	}
	if got := l.Speed(); got != SpeedMin {
		t.Errorf("Speed() = %d, want 0", got)
	}
}

func TestLoco_Timetable(t *testing.T) {
	tl := newTestLayout()
	tl.nrOfTracks = 1
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addFeedback(12, 1)
	tl.addFeedback(22, 2)
	tl.addRoute(t, testRoute(10, 1, 2, 0, 22))
	tl.addRoute(t, testRoute(11, 2, 1, 0, 12))
	l := tl.addLoco(t, Config{ID: 1}, 1)

	_ = l.AddTimetable(10, 0)
	_ = l.AddTimetable(11, RouteStop)
	if err := l.GoToAutoMode(AutoModeTimetable); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}

	eventually(t, "first timetable route", routeFirstIs(l, 10))
	tl.fire(22)
	eventually(t, "second timetable route", routeFirstIs(l, 11))
	tl.fire(12)
	eventually(t, "timetable finished", stateIs(l, StateTerminated))

	want := []destination{
		{Loco: 1, Route: 10, Track: 2},
		{Loco: 1, Route: 11, Track: 1},
	}
	if diff := cmp.Diff(want, tl.destinationsReached()); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
	if !l.GoToManualMode() {
		t.Error("GoToManualMode() = false after timetable finished")
	}
}

func TestLoco_TimetableDropsForeignEntry(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	l := tl.addLoco(t, Config{ID: 1}, 1)

	// Route 11 starts at B, not where the loco stands.
	_ = l.AddTimetable(11, 0)
	if err := l.GoToAutoMode(AutoModeTimetable); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}

	eventually(t, "fallback search", routeFirstIs(l, 10))
	if got := l.Timetable(); len(got) != 0 {
		t.Errorf("Timetable() = %v, want dropped", got)
	}
}

func TestLoco_ContentionSingleWinner(t *testing.T) {
	tl := newTestLayout()
	tl.nrOfTracks = 1
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addTrack(3)
	tl.addFeedback(22, 2)
	tl.addRoute(t, testRoute(10, 1, 2, 0, 22))
	tl.addRoute(t, testRoute(11, 3, 2, 0, 22))
	l1 := tl.addLoco(t, Config{ID: 1}, 1)
	l2 := tl.addLoco(t, Config{ID: 2}, 3)

	if err := l1.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode(1) error = %v", err)
	}
	if err := l2.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode(2) error = %v", err)
	}

	eventually(t, "a route reserved", func() bool {
		return l1.Snapshot().RouteFirst != 0 || l2.Snapshot().RouteFirst != 0
	})
	time.Sleep(20 * time.Millisecond)

	winners := 0
	var winner *Loco
	for _, l := range []*Loco{l1, l2} {
		if l.Snapshot().RouteFirst != 0 {
			winners++
			winner = l
		}
	}
	if winners != 1 {
		t.Fatalf("locos holding a route = %d, want 1", winners)
	}
	if h := tl.GetTrack(2).Holder(); h != winner.Handle() {
		t.Errorf("track 2 holder = %v, want %v", h, winner.Handle())
	}
}

func TestLoco_LockFailureReleasesDestination(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	// The search and Route.Reserve see Go; the booster stops before
	// Route.Lock.
	tl.booster = interlock.BoosterStop
	tl.boosterReads = []interlock.BoosterState{interlock.BoosterGo, interlock.BoosterGo}
	l := tl.addLoco(t, Config{ID: 7}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "scripted booster reads used", func() bool {
		tl.mu.Lock()
		defer tl.mu.Unlock()
		return len(tl.boosterReads) == 0
	})
	time.Sleep(10 * time.Millisecond)

	if state, h := tl.GetRoute(10).LockState(); state != interlock.LockStateFree {
		t.Errorf("route 10 = %v held by %v, want free", state, h)
	}
	if h := tl.GetTrack(2).Holder(); h.IsSet() {
		t.Errorf("track 2 holder = %v, want free", h)
	}
	if got := l.State(); got != StateAutomodeGetFirst {
		t.Errorf("State() = %v, want %v", got, StateAutomodeGetFirst)
	}

	tl.SetBooster(interlock.BoosterGo)
	eventually(t, "route 10 taken once the booster is back", routeFirstIs(l, 10))
	if h := tl.GetTrack(2).Holder(); h != l.Handle() {
		t.Errorf("track 2 holder = %v, want loco", h)
	}
}

func TestLoco_FeedbackDuringRouteExecution(t *testing.T) {
	tl := newTestLayout()
	tl.nrOfTracks = 1
	tl.addTrack(1)
	tl.addTrack(2)
	tl.addFeedback(12, 1)
	tl.addFeedback(22, 2)
	cfg := testRoute(10, 1, 2, 0, 22)
	cfg.Relations = []interlock.RelationConfig{
		{Kind: interlock.RelationAtLock, ObjectType: interlock.ObjectTypePause, Data: 5},
	}
	tl.addRoute(t, cfg)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "route 10 reserved", func() bool {
		return holderOf(tl.GetRoute(10)) == l.Handle()
	})

	// The worker is inside the 500 ms pause; sensor input must not wait for it.
	start := time.Now()
	tl.fire(12)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("feedback input took %v while the route was executing", elapsed)
	}

	eventually(t, "route 10 executed", routeFirstIs(l, 10))
	tl.fire(22)
	eventually(t, "destination reached", func() bool { return len(tl.destinationsReached()) == 1 })
}

func TestLoco_ErrorStateUntilManualRequest(t *testing.T) {
	tl := lineLayout(t)
	l := tl.addLoco(t, Config{ID: 1}, 1)

	// Someone else takes over the track the loco stands on.
	track := tl.GetTrack(1)
	track.ReleaseForce()
	if err := track.Reserve(interlock.LocoHandle(9)); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	if err := l.GoToAutoMode(AutoModeAutomode); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "error state", stateIs(l, StateError))

	for i := 0; i < 2; i++ {
		l.SetSpeed(SpeedTravel)
		eventually(t, "speed forced to zero", func() bool { return l.Speed() == SpeedMin })
	}

	time.Sleep(20 * time.Millisecond)
	if got := l.State(); got != StateError {
		t.Fatalf("State() = %v, want %v to persist", got, StateError)
	}
	if err := l.GoToAutoMode(AutoModeAutomode); !errors.Is(err, ErrErrorState) {
		t.Errorf("GoToAutoMode() in error error = %v, want ErrErrorState", err)
	}
	if l.GoToManualMode() {
		t.Error("GoToManualMode() = true before the worker left the error state")
	}

	l.RequestManualMode()
	eventually(t, "worker terminated", stateIs(l, StateTerminated))
	if !l.GoToManualMode() {
		t.Fatal("GoToManualMode() = false after termination")
	}
	if got := l.State(); got != StateManual {
		t.Errorf("State() = %v, want %v", got, StateManual)
	}
	if h := holderOf(tl.GetRoute(10)); h.IsSet() {
		t.Errorf("route 10 holder = %v, want none", h)
	}
}

func TestLoco_TimetableDropsForeignFollowUp(t *testing.T) {
	tl := lineLayout(t)
	tl.nrOfTracks = 1
	l := tl.addLoco(t, Config{ID: 1}, 1)

	// Route 10 leaves A, so it cannot follow itself from B.
	_ = l.AddTimetable(10, 10)
	if err := l.GoToAutoMode(AutoModeTimetable); err != nil {
		t.Fatalf("GoToAutoMode() error = %v", err)
	}
	eventually(t, "timetable route", routeFirstIs(l, 10))

	tl.fire(22)
	eventually(t, "search from B after the follow-up was dropped", routeFirstIs(l, 11))
	if got := l.Timetable(); len(got) != 0 {
		t.Errorf("Timetable() = %v, want empty", got)
	}
}
