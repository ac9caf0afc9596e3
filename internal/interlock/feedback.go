package interlock

import "sync"

// MaxStateCounter is the debounce depth of a feedback. After the hardware
// reports free, the feedback stays occupied for MaxStateCounter-1 debounce
// ticks; any occupied report in between restarts the window.
const MaxStateCounter = 10

// FeedbackConfig describes a track occupancy sensor.
type FeedbackConfig struct {
	ID        ObjectID `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	ControlID string   `yaml:"control_id" json:"control_id"`
	Pin       uint32   `yaml:"pin" json:"pin"`
	Inverted  bool     `yaml:"inverted" json:"inverted"`
	TrackID   ObjectID `yaml:"track_id,omitempty" json:"track_id,omitempty"`
	RouteID   ObjectID `yaml:"route_id,omitempty" json:"route_id,omitempty"`
}

// FeedbackSnapshot is a point-in-time copy of a feedback.
type FeedbackSnapshot struct {
	FeedbackConfig
	State Occupancy `json:"occupied"`
}

// Feedback is a debounced occupancy sensor bound to at most one track.
type Feedback struct {
	cfg        FeedbackConfig
	dispatcher Dispatcher
	logger     Logger

	mu           sync.Mutex
	stateCounter uint8
}

// NewFeedback creates a feedback in the free state.
func NewFeedback(cfg FeedbackConfig, d Dispatcher, logger Logger) *Feedback {
	return &Feedback{cfg: cfg, dispatcher: d, logger: loggerOrNoop(logger)}
}

func (f *Feedback) ID() ObjectID           { return f.cfg.ID }
func (f *Feedback) Name() string           { return f.cfg.Name }
func (f *Feedback) TrackID() ObjectID      { return f.cfg.TrackID }
func (f *Feedback) Config() FeedbackConfig { return f.cfg }

// State returns the debounced occupancy.
func (f *Feedback) State() Occupancy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateCounter > 0
}

// SetState feeds a raw hardware reading into the debouncer.
//
// An occupied reading takes effect immediately: it notifies the bound
// track and executes the feedback's route, if any. A free reading only
// starts the debounce countdown; Debounce completes it.
func (f *Feedback) SetState(occupied bool) {
	state := Occupancy(occupied != f.cfg.Inverted)

	f.mu.Lock()
	if state == OccupancyFree {
		if f.stateCounter == MaxStateCounter {
			f.stateCounter = MaxStateCounter - 1
		}
		f.mu.Unlock()
		return
	}
	old := f.stateCounter
	f.stateCounter = MaxStateCounter
	f.mu.Unlock()

	if old > 0 {
		return
	}

	f.dispatcher.FeedbackPublishState(f.Snapshot())
	f.updateTrack(OccupancyOccupied)

	if f.cfg.RouteID == 0 {
		return
	}
	route := f.dispatcher.GetRoute(f.cfg.RouteID)
	if route == nil {
		return
	}
	if err := route.Execute(Handle{}); err != nil {
		f.logger.Warn("feedback route not executed",
			"feedback_id", f.cfg.ID, "route_id", f.cfg.RouteID, "error", err)
	}
}

// Debounce advances the free countdown by one tick. It is called
// periodically by the dispatcher's debounce worker.
func (f *Feedback) Debounce() {
	f.mu.Lock()
	if f.stateCounter == MaxStateCounter || f.stateCounter == 0 {
		f.mu.Unlock()
		return
	}
	f.stateCounter--
	done := f.stateCounter == 0
	f.mu.Unlock()

	if !done {
		return
	}
	f.dispatcher.FeedbackPublishState(f.Snapshot())
	f.updateTrack(OccupancyFree)
}

func (f *Feedback) updateTrack(state Occupancy) {
	if f.cfg.TrackID == 0 {
		return
	}
	track := f.dispatcher.GetTrack(f.cfg.TrackID)
	if track == nil {
		return
	}
	track.SetFeedbackState(f.cfg.ID, state)
}

// Snapshot returns a copy of the feedback for publishing.
func (f *Feedback) Snapshot() FeedbackSnapshot {
	return FeedbackSnapshot{FeedbackConfig: f.cfg, State: f.State()}
}
