package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// operator is the holder of routes set manually. It is the unset handle,
// so a feedback-triggered route and an operator route share it.
var operator = interlock.Handle{}

func (m *Manager) mustLoco(id interlock.ObjectID) (*loco.Loco, error) {
	lc := m.locos.get(id)
	if lc == nil {
		return nil, fmt.Errorf("%w: loco %d", ErrNotFound, id)
	}
	return lc, nil
}

func (m *Manager) mustRoute(id interlock.ObjectID) (*interlock.Route, error) {
	route := m.routes.get(id)
	if route == nil {
		return nil, fmt.Errorf("%w: route %d", ErrNotFound, id)
	}
	return route, nil
}

func (m *Manager) mustTrack(id interlock.ObjectID) (*interlock.Track, error) {
	track := m.tracks.get(id)
	if track == nil {
		return nil, fmt.Errorf("%w: track %d", ErrNotFound, id)
	}
	return track, nil
}

// ─── Locos ──────────────────────────────────────────────────────────────────

// LocoAutoMode starts automode or timetable mode for a loco.
func (m *Manager) LocoAutoMode(id interlock.ObjectID, mode loco.AutoModeType) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	return lc.GoToAutoMode(mode)
}

// LocoManualMode asks a loco to leave automode at its next destination and
// waits until it has.
//
// Parameters:
//   - ctx: Cancels the wait; the request itself stays pending
//   - id: The loco
//
// Returns:
//   - nil once the loco is in manual mode
//   - ErrNotFound for an unknown loco
//   - ErrManualModeTimeout if the train is still running after
//     Config.ManualModeTimeout or when ctx ends
func (m *Manager) LocoManualMode(ctx context.Context, id interlock.ObjectID) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	lc.RequestManualMode()
	if lc.GoToManualMode() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ManualModeTimeout)
	defer cancel()
	ticker := time.NewTicker(manualModePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: loco %d", ErrManualModeTimeout, id)
		case <-ticker.C:
			if lc.GoToManualMode() {
				return nil
			}
		}
	}
}

// LocoRelease stops a loco at once and gives back everything it holds.
func (m *Manager) LocoRelease(id interlock.ObjectID) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	lc.Release()
	return nil
}

// SetLocoTrack places a loco in manual mode on a track facing o. A loco
// that already stands somewhere is released first.
//
// Returns:
//   - ErrNotFound for an unknown loco or track
//   - loco.ErrNotManual while automode runs
//   - interlock.ErrNotFree if another holder reserved the track
func (m *Manager) SetLocoTrack(id, trackID interlock.ObjectID, o interlock.Orientation) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	track, err := m.mustTrack(trackID)
	if err != nil {
		return err
	}
	if lc.State() != loco.StateManual {
		return loco.ErrNotManual
	}
	if lc.TrackID() != 0 {
		lc.Release()
	}

	h := lc.Handle()
	if err := track.ReserveForce(h); err != nil {
		return fmt.Errorf("placing loco %d on track %d: %w", id, trackID, err)
	}
	if err := track.Lock(h); err != nil {
		_ = track.Release(h)
		return fmt.Errorf("placing loco %d on track %d: %w", id, trackID, err)
	}
	if err := track.SetLocoOrientation(o); err != nil {
		m.logger.Warn("loco orientation not set", "loco_id", id, "track_id", trackID, "error", err)
	}
	lc.SetOrientation(o)
	if err := lc.SetTrack(trackID); err != nil {
		_ = track.Release(h)
		return err
	}

	m.enqueuePersist("loco track", func(ctx context.Context) error {
		return m.store.SaveLocoTrack(ctx, id, trackID, o)
	})
	m.logger.Info("loco placed", "loco_id", id, "track_id", trackID, "orientation", o.String())
	return nil
}

// LocoSpeed sets the speed of a loco driven by hand.
func (m *Manager) LocoSpeed(id interlock.ObjectID, speed loco.Speed) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	if lc.State() != loco.StateManual {
		return loco.ErrNotManual
	}
	lc.SetSpeed(speed)
	return nil
}

// LocoFunction switches a decoder function of a loco.
func (m *Manager) LocoFunction(id interlock.ObjectID, nr uint8, on bool) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	lc.SetFunctionState(nr, on)
	return nil
}

// LocoTimetable queues a route for timetable mode.
func (m *Manager) LocoTimetable(id, route, followUp interlock.ObjectID) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	if _, err := m.mustRoute(route); err != nil {
		return err
	}
	return lc.AddTimetable(route, followUp)
}

// LocoClearTimetable drops every queued timetable entry of a loco.
func (m *Manager) LocoClearTimetable(id interlock.ObjectID) error {
	lc, err := m.mustLoco(id)
	if err != nil {
		return err
	}
	lc.ClearTimetable()
	return nil
}

// ─── Routes and tracks ──────────────────────────────────────────────────────

// ExecuteRoute sets a route by hand: it is reserved, locked and executed
// for the operator and stays locked until ReleaseRoute.
func (m *Manager) ExecuteRoute(id interlock.ObjectID) error {
	route, err := m.mustRoute(id)
	if err != nil {
		return err
	}
	if err := route.Reserve(operator); err != nil {
		return fmt.Errorf("reserving route %d: %w", id, err)
	}
	if err := route.Lock(operator); err != nil {
		m.releaseOperatorRoute(route)
		return fmt.Errorf("locking route %d: %w", id, err)
	}
	if err := route.Execute(operator); err != nil {
		m.releaseOperatorRoute(route)
		return fmt.Errorf("executing route %d: %w", id, err)
	}
	m.logger.Info("route set by operator", "route_id", id)
	return nil
}

// ReleaseRoute gives back a route set with ExecuteRoute, including its
// destination track.
func (m *Manager) ReleaseRoute(id interlock.ObjectID) error {
	route, err := m.mustRoute(id)
	if err != nil {
		return err
	}
	state, holder := route.LockState()
	if state == interlock.LockStateFree {
		return nil
	}
	if holder != operator {
		return fmt.Errorf("%w: route %d held by %s", ErrRouteNotHeld, id, holder)
	}
	m.releaseOperatorRoute(route)
	m.logger.Info("route released by operator", "route_id", id)
	return nil
}

func (m *Manager) releaseOperatorRoute(route *interlock.Route) {
	if err := route.Release(operator); err != nil {
		m.logger.Warn("route not released", "route_id", route.ID(), "error", err)
	}
	if !route.Automode() {
		return
	}
	track := m.tracks.get(route.ToTrack())
	if track == nil {
		return
	}
	if state, holder := track.LockState(); state == interlock.LockStateFree || holder != operator {
		return
	}
	if err := track.Release(operator); err != nil {
		m.logger.Warn("route track not released", "route_id", route.ID(), "error", err)
	}
}

// SetTrackBlocked blocks or unblocks a track for new reservations.
func (m *Manager) SetTrackBlocked(id interlock.ObjectID, blocked bool) error {
	track, err := m.mustTrack(id)
	if err != nil {
		return err
	}
	track.SetBlocked(blocked)
	return nil
}

// SetFeedbackState simulates a reading of a feedback.
func (m *Manager) SetFeedbackState(id interlock.ObjectID, occupied bool) error {
	f := m.feedbacks.get(id)
	if f == nil {
		return fmt.Errorf("%w: feedback %d", ErrNotFound, id)
	}
	f.SetState(occupied)
	return nil
}

// ─── Snapshots ──────────────────────────────────────────────────────────────

// Tracks returns the state of every track ordered by id.
func (m *Manager) Tracks() []interlock.TrackSnapshot {
	return snapshots(m.tracks.list(), (*interlock.Track).Snapshot)
}

// Routes returns the state of every route ordered by id.
func (m *Manager) Routes() []interlock.RouteSnapshot {
	return snapshots(m.routes.list(), (*interlock.Route).Snapshot)
}

// Feedbacks returns the state of every feedback ordered by id.
func (m *Manager) Feedbacks() []interlock.FeedbackSnapshot {
	return snapshots(m.feedbacks.list(), (*interlock.Feedback).Snapshot)
}

// Accessories returns the state of every accessory ordered by id.
func (m *Manager) Accessories() []interlock.AccessorySnapshot {
	return snapshots(m.accessories.list(), (*interlock.Accessory).Snapshot)
}

// Locos returns the state of every loco ordered by id.
func (m *Manager) Locos() []loco.Snapshot {
	return snapshots(m.locos.list(), (*loco.Loco).Snapshot)
}

func snapshots[T, S any](items []*T, snap func(*T) S) []S {
	out := make([]S, len(items))
	for i, item := range items {
		out[i] = snap(item)
	}
	return out
}
