package loco

import (
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// ─── Mode changes ───────────────────────────────────────────────────────────

// GoToAutoMode starts the worker goroutine. A window kept by
// ForceManualMode is resumed.
//
// Returns:
//   - ErrNotOnTrack if the loco has not been placed on a track
//   - ErrErrorState if the automaton is in error; Release or
//     ForceManualMode first
//   - ErrAlreadyRunning if automode is active
func (l *Loco) GoToAutoMode(mode AutoModeType) error {
	l.mu.Lock()
	if l.trackFrom == 0 {
		l.mu.Unlock()
		l.logger.Warn("cannot start automode, loco not on a track", "loco_id", l.cfg.ID)
		return ErrNotOnTrack
	}
	if l.state == StateError {
		l.mu.Unlock()
		return ErrErrorState
	}
	if l.state == StateTerminated {
		// The worker never takes mu after terminating.
		l.joinLocked()
		l.state = StateManual
	}
	if l.state != StateManual {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}

	l.mode = mode
	l.requestManual.Store(false)
	l.fbMu.Lock()
	l.reached = nil
	l.fbMu.Unlock()
	switch {
	case l.routeSecond != 0:
		l.state = StateAutomodeRunning
	case l.routeFirst != 0:
		l.state = StateAutomodeGetSecond
	default:
		l.state = StateAutomodeGetFirst
	}
	l.syncAutomaticLocked()
	done := make(chan struct{})
	l.done = done
	snap := l.snapshotLocked()
	l.mu.Unlock()

	go l.run(done)
	l.logger.Info("loco in automode", "loco_id", l.cfg.ID, "mode", mode.String())
	l.dispatcher.LocoPublishState(snap)
	return nil
}

// RequestManualMode asks the worker to stop at the next destination. The
// request is ignored when the loco is not automating.
func (l *Loco) RequestManualMode() {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state == StateManual || state == StateTerminated {
		return
	}
	l.requestManual.Store(true)
	l.wakeUp()
}

// GoToManualMode completes a manual mode request. It returns true once the
// worker has terminated (or the loco was already manual) and false while
// the train is still on its way.
func (l *Loco) GoToManualMode() bool {
	l.mu.Lock()
	switch l.state {
	case StateManual:
		l.mu.Unlock()
		return true
	case StateTerminated:
		l.joinLocked()
		l.state = StateManual
		l.syncAutomaticLocked()
		snap := l.snapshotLocked()
		l.mu.Unlock()
		l.dispatcher.LocoPublishState(snap)
		return true
	}
	l.mu.Unlock()
	return false
}

// ForceManualMode stops the worker at once and waits for it to exit.
// Reservations are kept; Release gives them back.
func (l *Loco) ForceManualMode() {
	l.mu.Lock()
	switch l.state {
	case StateManual:
		l.mu.Unlock()
		return
	case StateTerminated:
	default:
		l.state = StateOff
	}
	l.fbMu.Lock()
	l.cancelTimersLocked()
	l.fbMu.Unlock()
	done := l.done
	l.mu.Unlock()

	l.wakeUp()
	if done != nil {
		<-done
	}

	l.mu.Lock()
	l.done = nil
	l.state = StateManual
	l.syncAutomaticLocked()
	l.requestManual.Store(false)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.dispatcher.LocoPublishState(snap)
}

func (l *Loco) joinLocked() {
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

func (l *Loco) wakeUp() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// ─── Worker ─────────────────────────────────────────────────────────────────

// window is the part of the automaton that is published when it changes.
type window struct {
	state                              State
	trackFrom, trackFirst, trackSecond interlock.ObjectID
	routeFirst, routeSecond            interlock.ObjectID
}

func (l *Loco) windowLocked() window {
	return window{
		state:       l.state,
		trackFrom:   l.trackFrom,
		trackFirst:  l.trackFirst,
		trackSecond: l.trackSecond,
		routeFirst:  l.routeFirst,
		routeSecond: l.routeSecond,
	}
}

type stepResult struct {
	releases []releaser
	snapshot *Snapshot
	again    bool
	exit     bool
}

func (l *Loco) run(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		res := l.step()
		l.release(res.releases)
		if res.snapshot != nil {
			l.dispatcher.LocoPublishState(*res.snapshot)
		}
		if res.exit {
			return
		}
		if res.again {
			continue
		}
		select {
		case <-ticker.C:
		case <-l.wake:
		}
	}
}

// step runs one iteration of the automaton. Releases collected during the
// step are handed back to run so they happen outside mu.
func (l *Loco) step() stepResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.windowLocked()
	var res stepResult
	res.again, res.exit = l.advanceLocked()
	l.syncAutomaticLocked()
	res.releases = l.releases
	l.releases = nil
	if l.windowLocked() != before {
		snap := l.snapshotLocked()
		res.snapshot = &snap
	}
	return res
}

func (l *Loco) advanceLocked() (again, exit bool) {
	if l.state == StateOff {
		l.logger.Info("loco in manual mode", "loco_id", l.cfg.ID)
		l.state = StateTerminated
		l.requestManual.Store(false)
		return false, true
	}

	if feedback, first, stop, ok := l.nextReached(); ok {
		switch feedback {
		case first:
			l.firstReachedLocked()
		case stop:
			l.stopReachedLocked()
		}
		return true, false
	}

	requested := l.requestManual.Load()
	switch l.state {
	case StateAutomodeGetFirst:
		if requested {
			l.state = StateOff
			return true, false
		}
		if l.wait > 0 {
			l.wait--
			return false, false
		}
		l.destinationFirstLocked()

	case StateAutomodeGetSecond:
		if requested {
			l.logger.Info("loco running, waiting until destination", "loco_id", l.cfg.ID)
			l.state = StateStopping
			return false, false
		}
		if l.dispatcher.NrOfTracksToReserve() <= 1 || l.wait > 0 {
			return false, false
		}
		l.destinationSecondLocked()

	case StateAutomodeRunning:
		if requested {
			l.logger.Info("loco running, waiting until destination", "loco_id", l.cfg.ID)
			l.state = StateStopping
		}

	case StateStopping:
		if l.routeFirst == 0 {
			l.state = StateOff
			return true, false
		}
		l.logger.Debug("loco has not reached its destination yet", "loco_id", l.cfg.ID)

	case StateTerminated, StateManual:
		l.logger.Error("loco worker running in invalid state", "loco_id", l.cfg.ID, "state", l.state.String())
		l.state = StateError
		fallthrough

	case StateError:
		l.logger.Error("loco in error state", "loco_id", l.cfg.ID)
		l.lowerSpeed(SpeedMin)
		if requested {
			l.state = StateOff
			return true, false
		}
	}
	return false, false
}

// nextReached pops the oldest queued marker along with the first and stop
// feedbacks it is matched against.
func (l *Loco) nextReached() (feedback, first, stop interlock.ObjectID, ok bool) {
	l.fbMu.Lock()
	defer l.fbMu.Unlock()
	if len(l.reached) == 0 {
		return 0, 0, 0, false
	}
	feedback = l.reached[0]
	l.reached = l.reached[1:]
	return feedback, l.fbFirst, l.fbStop, true
}

// ─── Route selection ────────────────────────────────────────────────────────

func (l *Loco) destinationFirstLocked() {
	if l.routeFirst != 0 {
		l.state = StateError
		l.logger.Error("loco has already reserved a route", "loco_id", l.cfg.ID, "route_id", l.routeFirst)
		return
	}

	var route *interlock.Route
	if l.mode == AutoModeTimetable {
		route = l.timetableDestinationLocked(l.trackFrom, true, true)
	} else {
		route = l.searchDestinationLocked(l.trackFrom, true)
	}
	if route != nil {
		l.prepareFirstLocked(route)
	}
}

func (l *Loco) destinationSecondLocked() {
	var route *interlock.Route
	if l.mode == AutoModeTimetable {
		route = l.timetableDestinationLocked(l.trackFirst, false, false)
	} else {
		route = l.searchDestinationLocked(l.trackFirst, false)
	}
	if route != nil {
		l.prepareSecondLocked(route)
	}
}

// searchDestinationLocked reserves the first valid route leaving trackID.
func (l *Loco) searchDestinationLocked(trackID interlock.ObjectID, allowTurn bool) *interlock.Route {
	if l.dispatcher.Booster() == interlock.BoosterStop {
		return nil
	}
	if l.routeSecond != 0 {
		l.state = StateError
		l.logger.Error("loco has already reserved a route", "loco_id", l.cfg.ID, "route_id", l.routeSecond)
		return nil
	}
	track := l.trackByID(trackID)
	if track == nil {
		l.state = StateOff
		l.logger.Info("loco is not on a track", "loco_id", l.cfg.ID)
		return nil
	}
	if holder := track.Holder(); holder != l.handle {
		l.state = StateError
		l.logger.Error("loco is on a track held by someone else",
			"loco_id", l.cfg.ID, "track_id", trackID, "holder", holder.String())
		return nil
	}

	l.logger.Debug("looking for destination", "loco_id", l.cfg.ID, "track_id", trackID)
	for _, route := range track.GetValidRoutes(l.cfg.Profile(), allowTurn) {
		if l.reserveRouteLocked(track, route, allowTurn) {
			return route
		}
	}
	l.logger.Debug("no valid route found", "loco_id", l.cfg.ID, "track_id", trackID)
	return nil
}

// timetableDestinationLocked takes the next route from the timetable. With
// an empty timetable the last follow-up decides: search, stop or continue
// with the follow-up route. A follow-up route that does not start here is
// dropped like any entry and the loco goes back to searching.
func (l *Loco) timetableDestinationLocked(trackID interlock.ObjectID, allowTurn, first bool) *interlock.Route {
	if len(l.timetable) == 0 {
		switch l.followUp {
		case RouteAuto:
			return l.searchDestinationLocked(trackID, allowTurn)
		case RouteStop:
			if first {
				l.logger.Info("timetable finished", "loco_id", l.cfg.ID)
				l.state = StateOff
			}
			return nil
		default:
			l.timetable = append(l.timetable, TimetableEntry{Route: l.followUp})
		}
	}

	entry := l.timetable[0]
	if entry.Route == RouteStop {
		if first {
			l.timetable = l.timetable[1:]
			l.logger.Info("timetable stop reached", "loco_id", l.cfg.ID)
			l.state = StateOff
		}
		return nil
	}

	if l.dispatcher.Booster() == interlock.BoosterStop {
		return nil
	}
	track := l.trackByID(trackID)
	route := l.routeByID(entry.Route)
	if track == nil || route == nil || !route.Automode() || route.FromTrack() != trackID {
		l.timetable = l.timetable[1:]
		if entry.Route == l.followUp {
			l.followUp = RouteAuto
		}
		l.logger.Warn("timetable entry does not start here, dropped",
			"loco_id", l.cfg.ID, "route_id", entry.Route, "track_id", trackID)
		return nil
	}
	if !l.reserveRouteLocked(track, route, allowTurn) {
		return nil
	}

	l.timetable = l.timetable[1:]
	l.followUp = entry.FollowUp
	if l.followUp == RouteAuto {
		l.followUp = route.FollowUpRoute()
	}
	l.logger.Debug("using route from timetable", "loco_id", l.cfg.ID, "route_id", route.ID())
	return route
}

// reserveRouteLocked reserves, locks and executes route for this loco.
// On failure the route and its destination track are released again.
func (l *Loco) reserveRouteLocked(from *interlock.Track, route *interlock.Route, allowTurn bool) bool {
	h := l.handle
	if err := route.Reserve(h); err != nil {
		l.logger.Debug("route not reserved", "loco_id", l.cfg.ID, "route_id", route.ID(), "error", err)
		return false
	}
	if err := route.Lock(h); err != nil {
		l.logger.Debug("route not locked", "loco_id", l.cfg.ID, "route_id", route.ID(), "error", err)
		l.giveBack(route)
		return false
	}

	to := l.trackByID(route.ToTrack())
	if to == nil {
		_ = route.Release(h)
		return false
	}
	abort := func(reason string, args ...any) bool {
		l.logger.Debug(reason, append([]any{"loco_id", l.cfg.ID, "route_id", route.ID()}, args...)...)
		_ = route.Release(h)
		_ = to.Release(h)
		return false
	}
	if !to.CanSetLocoOrientation(route.ToOrientation(), h) {
		return abort("destination orientation not settable")
	}
	if !allowTurn && from.Orientation() != route.FromOrientation() {
		return abort("route needs the loco to turn")
	}
	if err := route.Execute(h); err != nil {
		return abort("route not executed", "error", err)
	}
	return true
}

// giveBack releases a route this loco reserved. Route.Release keeps the
// destination track, so an automode route's track is released here.
func (l *Loco) giveBack(route *interlock.Route) {
	_ = route.Release(l.handle)
	if !route.Automode() {
		return
	}
	if to := l.trackByID(route.ToTrack()); to != nil {
		_ = to.Release(l.handle)
	}
}

func (l *Loco) routeSpeed(speed interlock.RouteSpeed) Speed {
	switch speed {
	case interlock.RouteSpeedMax:
		return l.cfg.MaxSpeed
	case interlock.RouteSpeedTravel:
		return l.cfg.TravelSpeed
	case interlock.RouteSpeedReduced:
		return l.cfg.ReducedSpeed
	default:
		return l.cfg.CreepingSpeed
	}
}

// prepareFirstLocked turns the reserved route into the first leg of the
// window and starts the train.
func (l *Loco) prepareFirstLocked(route *interlock.Route) {
	h := l.handle
	to := l.trackByID(route.ToTrack())
	from := l.trackByID(l.trackFrom)
	if to == nil || from == nil {
		l.giveBack(route)
		return
	}
	abort := func(err error) {
		l.logger.Warn("cannot start on route", "loco_id", l.cfg.ID, "route_id", route.ID(), "error", err)
		_ = route.Release(h)
		_ = to.Release(h)
	}

	if err := to.SetLocoOrientation(route.ToOrientation()); err != nil {
		abort(err)
		return
	}
	turn := from.Orientation() != route.FromOrientation()
	if turn {
		if err := from.SetLocoOrientation(route.FromOrientation()); err != nil {
			abort(err)
			return
		}
	}
	l.SetOrientation(l.Orientation().Flip(turn))
	l.logger.Info("loco heading to track", "loco_id", l.cfg.ID, "track", to.Name(), "route", route.Name())

	l.trackFirst = to.ID()
	l.routeFirst = route.ID()
	l.wait = route.WaitAfterRelease()

	l.fbMu.Lock()
	l.fbFirst = 0
	l.fbReduced = route.FeedbackReduced()
	l.fbCreep = route.FeedbackCreep()
	l.fbStop = route.FeedbackStop()
	l.fbOver = route.FeedbackOver()
	l.delayReduced = route.ReducedDelay()
	l.delayCreep = route.CreepDelay()
	l.delayStop = route.StopDelay()
	l.fbMu.Unlock()

	l.SetSpeed(l.routeSpeed(route.Speed()))
	l.state = StateAutomodeGetSecond
}

// prepareSecondLocked appends the reserved route as the second leg. The
// first leg's stop feedback becomes the "first" marker that releases it.
func (l *Loco) prepareSecondLocked(route *interlock.Route) {
	h := l.handle
	to := l.trackByID(route.ToTrack())
	if to == nil {
		_ = route.Release(h)
		return
	}
	if err := to.SetLocoOrientation(route.ToOrientation()); err != nil {
		l.logger.Warn("cannot continue on route", "loco_id", l.cfg.ID, "route_id", route.ID(), "error", err)
		_ = route.Release(h)
		_ = to.Release(h)
		return
	}
	l.logger.Info("loco heading to track via second route",
		"loco_id", l.cfg.ID, "track", to.Name(), "route_first", l.routeFirst, "route_second", route.ID())

	l.trackSecond = to.ID()
	l.routeSecond = route.ID()
	l.wait = route.WaitAfterRelease()
	l.state = StateAutomodeRunning

	l.fbMu.Lock()
	defer l.fbMu.Unlock()
	l.fbFirst = l.fbStop
	l.fbFirstCreep = l.fbCreep
	l.fbFirstReduced = l.fbReduced
	l.secondSpeed = route.Speed()
	l.fbOver = route.FeedbackOver()
	l.fbStop = route.FeedbackStop()
	l.fbCreep = route.FeedbackCreep()
	l.fbReduced = route.FeedbackReduced()
	l.delayReduced = route.ReducedDelay()
	l.delayCreep = route.CreepDelay()
	l.delayStop = route.StopDelay()
	l.pruneTimersLocked()
}

// ─── Window rotation ────────────────────────────────────────────────────────

func (l *Loco) queueRelease(routeID, trackID interlock.ObjectID) {
	if route := l.routeByID(routeID); route != nil {
		l.releases = append(l.releases, route)
	}
	if track := l.trackByID(trackID); track != nil {
		l.releases = append(l.releases, track)
	}
}

// firstReachedLocked runs when the train has entered the second leg: the
// first leg and the departure track are given back and the window shifts.
func (l *Loco) firstReachedLocked() {
	if l.routeFirst == 0 || l.trackFrom == 0 {
		l.SetSpeed(SpeedMin)
		l.state = StateError
		l.logger.Error("loco in automode without route or track", "loco_id", l.cfg.ID)
		return
	}

	if second := l.routeByID(l.routeSecond); second != nil {
		l.SetSpeed(l.routeSpeed(second.Speed()))
	}

	l.queueRelease(l.routeFirst, l.trackFrom)
	l.routeFirst, l.routeSecond = l.routeSecond, 0
	l.trackFrom, l.trackFirst, l.trackSecond = l.trackFirst, l.trackSecond, 0

	l.fbMu.Lock()
	marker := l.fbFirst
	l.fbFirst, l.fbFirstCreep, l.fbFirstReduced = 0, 0, 0
	l.pruneTimersLocked()
	l.fbMu.Unlock()

	switch l.state {
	case StateAutomodeRunning:
		l.state = StateAutomodeGetSecond
	case StateStopping:
	default:
		l.logger.Error("loco in invalid automode state",
			"loco_id", l.cfg.ID, "state", l.state.String(), "feedback_id", marker)
		l.state = StateError
	}
}

// stopReachedLocked runs when the train has stopped at the end of its
// first leg.
func (l *Loco) stopReachedLocked() {
	if l.routeFirst == 0 || l.trackFrom == 0 {
		l.SetSpeed(SpeedMin)
		l.state = StateError
		l.logger.Error("loco in automode without route or track", "loco_id", l.cfg.ID)
		return
	}

	l.SetSpeed(SpeedMin)
	l.dispatcher.LocoDestinationReached(l.cfg.ID, l.routeFirst, l.trackFirst)

	l.queueRelease(l.routeFirst, l.trackFrom)
	l.routeFirst = 0
	l.trackFrom, l.trackFirst = l.trackFirst, 0
	l.logger.Info("loco reached its destination", "loco_id", l.cfg.ID, "track_id", l.trackFrom)

	l.fbMu.Lock()
	marker := l.fbStop
	l.fbStop, l.fbCreep, l.fbReduced = 0, 0, 0
	l.delayStop, l.delayCreep, l.delayReduced = 0, 0, 0
	l.pruneTimersLocked()
	l.fbMu.Unlock()

	switch l.state {
	case StateAutomodeGetSecond:
		l.state = StateAutomodeGetFirst
	case StateStopping:
		l.state = StateOff
	default:
		l.logger.Error("loco in invalid automode state",
			"loco_id", l.cfg.ID, "state", l.state.String(), "feedback_id", marker)
		l.state = StateError
	}
}
