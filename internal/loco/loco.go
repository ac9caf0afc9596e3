package loco

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// releaser is a route or track the automaton gives back once it has left it.
type releaser interface {
	Release(holder interlock.Handle) error
}

// pendingTask is a delayed speed change waiting for its timer.
type pendingTask struct {
	feedback interlock.ObjectID
	timer    *time.Timer
}

// Loco is a locomotive (or multiple unit) and its automation state machine.
//
// In manual mode it only tracks speed, orientation and functions. In
// automode a worker goroutine reserves routes ahead of the train and
// advances on the feedbacks the train hits.
//
// Thread Safety: all methods are safe for concurrent use. mu guards the
// automaton and is held by the worker while it sets routes up. fbMu guards
// the feedback window, the reached queue and the delay timers, so
// LocationReached never waits for the worker. Lock order is mu, fbMu,
// driveMu.
type Loco struct {
	cfg        Config
	dispatcher Dispatcher
	logger     Logger
	handle     interlock.Handle
	tick       time.Duration

	requestManual atomic.Bool
	automatic     atomic.Bool

	driveMu     sync.Mutex
	speed       Speed
	orientation interlock.Orientation
	functions   map[uint8]bool

	mu          sync.Mutex
	state       State
	mode        AutoModeType
	trackFrom   interlock.ObjectID
	trackFirst  interlock.ObjectID
	trackSecond interlock.ObjectID
	routeFirst  interlock.ObjectID
	routeSecond interlock.ObjectID
	wait        uint32
	timetable   []TimetableEntry
	followUp    interlock.ObjectID
	releases    []releaser

	fbMu           sync.Mutex
	fbFirst        interlock.ObjectID
	fbFirstReduced interlock.ObjectID
	fbFirstCreep   interlock.ObjectID
	fbReduced      interlock.ObjectID
	fbCreep        interlock.ObjectID
	fbStop         interlock.ObjectID
	fbOver         interlock.ObjectID

	delayReduced time.Duration
	delayCreep   time.Duration
	delayStop    time.Duration
	secondSpeed  interlock.RouteSpeed

	reached   []interlock.ObjectID
	pending   map[uint64]pendingTask
	nextTimer uint64

	wake chan struct{}
	done chan struct{}
}

// New creates a loco in manual mode.
//
// Parameters:
//   - cfg: Loco configuration; zero speeds take the package defaults
//   - d: Dispatcher for layout lookups and drive commands
//   - tick: Worker polling interval (DefaultTickInterval if zero)
//   - logger: Logger instance (may be nil)
func New(cfg Config, d Dispatcher, tick time.Duration, logger Logger) *Loco {
	if logger == nil {
		logger = noopLogger{}
	}
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	cfg = cfg.withDefaults()
	cfg.Slaves = slices.Clone(cfg.Slaves)
	return &Loco{
		cfg:         cfg,
		dispatcher:  d,
		logger:      logger,
		handle:      interlock.LocoHandle(cfg.ID),
		tick:        tick,
		orientation: cfg.Orientation,
		functions:   make(map[uint8]bool),
		state:       StateManual,
		trackFrom:   cfg.TrackID,
		pending:     make(map[uint64]pendingTask),
		wake:        make(chan struct{}, 1),
	}
}

func (l *Loco) ID() interlock.ObjectID       { return l.cfg.ID }
func (l *Loco) Name() string                 { return l.cfg.Name }
func (l *Loco) Handle() interlock.Handle     { return l.handle }
func (l *Loco) Slaves() []interlock.ObjectID { return slices.Clone(l.cfg.Slaves) }

// Config returns the loco configuration with its current track and
// orientation, ready to persist.
func (l *Loco) Config() Config {
	cfg := l.cfg
	cfg.Slaves = slices.Clone(l.cfg.Slaves)
	cfg.TrackID = l.TrackID()
	cfg.Orientation = l.Orientation()
	return cfg
}

// State returns the automaton state.
func (l *Loco) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// TrackID returns the track the loco stands on or departs from.
func (l *Loco) TrackID() interlock.ObjectID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trackFrom
}

// SetTrack places the loco on a track. The caller reserves the track.
// Fails with ErrNotManual while automode runs and ErrTrackAlreadySet if
// the loco is already placed.
func (l *Loco) SetTrack(id interlock.ObjectID) error {
	l.mu.Lock()
	if l.state.IsAutomatic() {
		l.mu.Unlock()
		return ErrNotManual
	}
	if l.trackFrom != 0 {
		l.mu.Unlock()
		return ErrTrackAlreadySet
	}
	l.trackFrom = id
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.dispatcher.LocoPublishState(snap)
	return nil
}

// IsRunningFromTrack reports whether the loco is leaving track id for the
// next track of its window.
func (l *Loco) IsRunningFromTrack(id interlock.ObjectID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trackFirst != 0 && l.trackFrom == id
}

// CheckFreeingTrack reports whether a track held by this loco may be
// released because it reads free. Tracks ahead of the train never qualify;
// the departure track only once the train is running away from it.
func (l *Loco) CheckFreeingTrack(id interlock.ObjectID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch id {
	case l.trackFirst, l.trackSecond:
		return false
	case l.trackFrom:
		return l.trackFirst != 0
	}
	return true
}

// ─── Drive ──────────────────────────────────────────────────────────────────

// drive runs send for the loco and every slave of a multiple unit.
func (l *Loco) drive(send func(id interlock.ObjectID)) {
	send(l.cfg.ID)
	for _, id := range l.cfg.Slaves {
		send(id)
	}
}

// Speed returns the current speed.
func (l *Loco) Speed() Speed {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	return l.speed
}

// SetSpeed changes the speed, capped at the configured maximum. Repeating
// the current speed sends nothing.
func (l *Loco) SetSpeed(speed Speed) {
	speed = min(speed, l.cfg.MaxSpeed)

	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	l.setSpeedLocked(speed)
}

// lowerSpeed sets speed only if the loco is currently faster.
func (l *Loco) lowerSpeed(speed Speed) {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	if l.speed > speed {
		l.setSpeedLocked(speed)
	}
}

func (l *Loco) setSpeedLocked(speed Speed) {
	if l.speed == speed {
		return
	}
	l.speed = speed
	l.drive(func(id interlock.ObjectID) { l.dispatcher.SendLocoSpeed(id, speed) })
}

// Orientation returns the direction the loco faces.
func (l *Loco) Orientation() interlock.Orientation {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	return l.orientation
}

// SetOrientation changes the direction the loco faces.
func (l *Loco) SetOrientation(o interlock.Orientation) {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	if l.orientation == o {
		return
	}
	l.orientation = o
	l.drive(func(id interlock.ObjectID) { l.dispatcher.SendLocoOrientation(id, o) })
}

// FunctionState reports whether function nr is on.
func (l *Loco) FunctionState(nr uint8) bool {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	return l.functions[nr]
}

// SetFunctionState switches function nr.
func (l *Loco) SetFunctionState(nr uint8, on bool) {
	l.driveMu.Lock()
	defer l.driveMu.Unlock()
	if l.functions[nr] == on {
		return
	}
	if on {
		l.functions[nr] = true
	} else {
		delete(l.functions, nr)
	}
	l.drive(func(id interlock.ObjectID) { l.dispatcher.SendLocoFunction(id, nr, on) })
}

// ─── Timetable ──────────────────────────────────────────────────────────────

// AddTimetable queues a route for timetable mode. followUp decides what
// happens after the route once the queue is empty: RouteAuto searches,
// RouteStop ends automode, anything else is the next route. A zero
// followUp uses the route's configured follow-up.
func (l *Loco) AddTimetable(route, followUp interlock.ObjectID) error {
	if route == 0 {
		return ErrInvalidTimetable
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timetable = append(l.timetable, TimetableEntry{Route: route, FollowUp: followUp})
	return nil
}

// ClearTimetable drops every queued entry.
func (l *Loco) ClearTimetable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timetable = nil
	l.followUp = RouteAuto
}

// Timetable returns the queued entries.
func (l *Loco) Timetable() []TimetableEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.timetable)
}

// ─── Release ────────────────────────────────────────────────────────────────

// Release stops the loco, leaves automode and gives back every route and
// track it holds, including the one it stands on.
func (l *Loco) Release() {
	l.SetSpeed(SpeedMin)
	l.ForceManualMode()

	l.mu.Lock()
	var held []releaser
	for _, id := range []interlock.ObjectID{l.routeFirst, l.routeSecond} {
		if route := l.routeByID(id); route != nil {
			held = append(held, route)
		}
	}
	for _, id := range []interlock.ObjectID{l.trackFrom, l.trackFirst, l.trackSecond} {
		if track := l.trackByID(id); track != nil {
			held = append(held, track)
		}
	}
	held = append(held, l.releases...)
	l.releases = nil
	l.routeFirst, l.routeSecond = 0, 0
	l.trackFrom, l.trackFirst, l.trackSecond = 0, 0, 0
	l.wait = 0
	l.fbMu.Lock()
	l.clearFeedbacksLocked()
	l.reached = nil
	l.cancelTimersLocked()
	l.fbMu.Unlock()
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.release(held)
	l.dispatcher.LocoPublishState(snap)
	l.logger.Info("loco released", "loco_id", l.cfg.ID)
}

func (l *Loco) release(items []releaser) {
	for _, item := range items {
		if err := item.Release(l.handle); err != nil {
			l.logger.Debug("release failed", "loco_id", l.cfg.ID, "error", err)
		}
	}
}

func (l *Loco) routeByID(id interlock.ObjectID) *interlock.Route {
	if id == 0 {
		return nil
	}
	return l.dispatcher.GetRoute(id)
}

func (l *Loco) trackByID(id interlock.ObjectID) *interlock.Track {
	if id == 0 {
		return nil
	}
	return l.dispatcher.GetTrack(id)
}

// clearFeedbacksLocked empties the feedback window. fbMu must be held.
func (l *Loco) clearFeedbacksLocked() {
	l.fbFirst, l.fbFirstReduced, l.fbFirstCreep = 0, 0, 0
	l.fbReduced, l.fbCreep, l.fbStop, l.fbOver = 0, 0, 0, 0
	l.delayReduced, l.delayCreep, l.delayStop = 0, 0, 0
	l.secondSpeed = 0
}

// syncAutomaticLocked mirrors the state for LocationReached, which does
// not take mu.
func (l *Loco) syncAutomaticLocked() {
	l.automatic.Store(l.state.IsAutomatic())
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

// Snapshot returns a copy of the loco state.
func (l *Loco) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loco) snapshotLocked() Snapshot {
	l.driveMu.Lock()
	speed, orientation := l.speed, l.orientation
	functions := make([]uint8, 0, len(l.functions))
	for nr := range l.functions {
		functions = append(functions, nr)
	}
	l.driveMu.Unlock()
	slices.Sort(functions)

	return Snapshot{
		ID:          l.cfg.ID,
		Name:        l.cfg.Name,
		State:       l.state,
		Mode:        l.mode,
		Speed:       speed,
		Orientation: orientation,
		Functions:   functions,
		TrackFrom:   l.trackFrom,
		TrackFirst:  l.trackFirst,
		TrackSecond: l.trackSecond,
		RouteFirst:  l.routeFirst,
		RouteSecond: l.routeSecond,
		Wait:        l.wait,
		Timetable:   slices.Clone(l.timetable),
		Slaves:      slices.Clone(l.cfg.Slaves),
	}
}
