package dispatcher

import (
	"context"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/layout"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Compile-time interface checks.
var (
	_ interlock.Dispatcher = (*Manager)(nil)
	_ loco.Dispatcher      = (*Manager)(nil)
)

func (m *Manager) broadcast(channel string, payload any) {
	if m.hub != nil {
		m.hub.Broadcast(channel, payload)
	}
}

// ─── Booster ────────────────────────────────────────────────────────────────

// Booster returns the global track power state.
func (m *Manager) Booster() interlock.BoosterState {
	m.boosterMu.Lock()
	defer m.boosterMu.Unlock()
	return m.booster
}

// SetBooster switches track power on the command stations.
func (m *Manager) SetBooster(state interlock.BoosterState) {
	if !m.changeBooster(state, "core") {
		return
	}
	if m.control == nil {
		return
	}
	if err := m.control.Booster(state); err != nil {
		m.logger.Error("booster command failed", "state", state.String(), "error", err)
	}
}

// BoosterInput records a booster change reported by a command station.
func (m *Manager) BoosterInput(state interlock.BoosterState) {
	m.changeBooster(state, "hardware")
}

func (m *Manager) changeBooster(state interlock.BoosterState, source string) bool {
	m.boosterMu.Lock()
	if m.booster == state {
		m.boosterMu.Unlock()
		return false
	}
	m.booster = state
	m.boosterMu.Unlock()

	m.logger.Info("booster changed", "state", state.String(), "source", source)
	m.broadcast(ChannelBoosterState, BoosterEvent{State: state, Source: source})
	if m.telemetry != nil {
		m.telemetry.WriteBoosterState(state == interlock.BoosterGo)
	}
	return true
}

// ─── Sensors ────────────────────────────────────────────────────────────────

// FeedbackInput feeds a raw reading from a command station pin into its
// feedback. Readings from unknown pins are ignored.
func (m *Manager) FeedbackInput(control string, pin uint32, occupied bool) {
	f := m.FeedbackByPin(control, pin)
	if f == nil {
		m.logger.Debug("reading from unmapped pin", "control_id", control, "pin", pin)
		return
	}
	f.SetState(occupied)
}

// ─── Interlocking callbacks ─────────────────────────────────────────────────

// AccessoryState sends a changed accessory to its decoder and the UI.
func (m *Manager) AccessoryState(a interlock.AccessorySnapshot) error {
	m.broadcast(ChannelAccessoryState, a)
	if m.control == nil {
		m.logger.Debug("accessory state without control", "accessory_id", a.ID, "state", a.State)
		return nil
	}
	state := a.State
	if a.Inverted && state <= interlock.AccessoryOn {
		state ^= 1
	}
	d := Decoder{ControlID: a.ControlID, Protocol: a.Protocol, Address: a.Address}
	return m.control.Accessory(d, state, time.Duration(a.DurationMS)*time.Millisecond)
}

func (m *Manager) LocoBaseFunctionState(h interlock.Handle, nr uint8, on bool) {
	if lc := m.locoFor(h); lc != nil {
		lc.SetFunctionState(nr, on)
	}
}

func (m *Manager) LocoBaseOrientation(h interlock.Handle, o interlock.Orientation) {
	if lc := m.locoFor(h); lc != nil {
		lc.SetOrientation(o)
	}
}

func (m *Manager) LocationReached(h interlock.Handle, feedback interlock.ObjectID) {
	if lc := m.locoFor(h); lc != nil {
		lc.LocationReached(feedback)
	}
}

func (m *Manager) CheckFreeingTrack(h interlock.Handle, track interlock.ObjectID) bool {
	if lc := m.locoFor(h); lc != nil {
		return lc.CheckFreeingTrack(track)
	}
	return false
}

func (m *Manager) TrackPublishState(t interlock.TrackSnapshot) {
	m.broadcast(ChannelTrackState, t)
}

func (m *Manager) FeedbackPublishState(f interlock.FeedbackSnapshot) {
	m.broadcast(ChannelFeedbackState, f)
	if m.telemetry != nil {
		m.telemetry.WriteFeedbackState(uint32(f.ID), bool(f.State))
	}
}

// RoutePublishState broadcasts the route. When its usage counter moved
// the execution is recorded and the new usage persisted.
func (m *Manager) RoutePublishState(r interlock.RouteSnapshot) {
	m.broadcast(ChannelRouteState, r)

	m.usageMu.Lock()
	executed := r.Counter > m.usage[r.ID]
	if executed {
		m.usage[r.ID] = r.Counter
	}
	m.usageMu.Unlock()
	if !executed {
		return
	}

	if m.telemetry != nil {
		m.telemetry.WriteRouteExecution(uint32(r.ID), r.Holder.String())
	}
	usage := layout.RouteUsage{LastUsed: r.LastUsed, Counter: r.Counter}
	m.enqueuePersist("route usage", func(ctx context.Context) error {
		return m.store.SaveRouteUsage(ctx, r.ID, usage)
	})
}

// ─── Loco callbacks ─────────────────────────────────────────────────────────

// SendLocoSpeed is called with the loco's drive mutex held; it only reads
// the decoder table.
func (m *Manager) SendLocoSpeed(id interlock.ObjectID, speed loco.Speed) {
	m.broadcast(ChannelLocoSpeed, LocoSpeedEvent{Loco: id, Speed: speed})
	if m.telemetry != nil {
		m.telemetry.WriteLocoSpeed(uint32(id), int(speed))
	}
	d, ok := m.controlDecoder(id)
	if !ok {
		return
	}
	if err := m.control.LocoSpeed(d, speed); err != nil {
		m.logger.Error("loco speed command failed", "loco_id", id, "speed", speed, "error", err)
	}
}

func (m *Manager) SendLocoOrientation(id interlock.ObjectID, o interlock.Orientation) {
	d, ok := m.controlDecoder(id)
	if !ok {
		return
	}
	if err := m.control.LocoOrientation(d, o); err != nil {
		m.logger.Error("loco orientation command failed", "loco_id", id, "error", err)
	}
}

func (m *Manager) SendLocoFunction(id interlock.ObjectID, nr uint8, on bool) {
	d, ok := m.controlDecoder(id)
	if !ok {
		return
	}
	if err := m.control.LocoFunction(d, nr, on); err != nil {
		m.logger.Error("loco function command failed", "loco_id", id, "function", nr, "error", err)
	}
}

// controlDecoder returns the decoder for a loco command, or false when
// there is nothing to send it to.
func (m *Manager) controlDecoder(id interlock.ObjectID) (Decoder, bool) {
	if m.control == nil {
		return Decoder{}, false
	}
	d, ok := m.decoder(id)
	if !ok {
		m.logger.Warn("no decoder for loco", "loco_id", id)
	}
	return d, ok
}

// LocoDestinationReached is called with the loco's state mutex held. The
// track orientation is read later by the persist worker.
func (m *Manager) LocoDestinationReached(locoID, route, track interlock.ObjectID) {
	m.broadcast(ChannelDestinationReached, DestinationReachedEvent{Loco: locoID, Route: route, Track: track})
	m.enqueuePersist("loco track", func(ctx context.Context) error {
		var o interlock.Orientation
		if t := m.tracks.get(track); t != nil {
			o = t.Orientation()
		}
		return m.store.SaveLocoTrack(ctx, locoID, track, o)
	})
}

func (m *Manager) LocoPublishState(s loco.Snapshot) {
	m.broadcast(ChannelLocoState, s)
}
