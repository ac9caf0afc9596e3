package interlock

import (
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// TrackConfig describes a block of track.
type TrackConfig struct {
	ID                  ObjectID            `yaml:"id" json:"id"`
	Name                string              `yaml:"name" json:"name"`
	Orientation         Orientation         `yaml:"orientation" json:"orientation"`
	Blocked             bool                `yaml:"blocked" json:"blocked"`
	ReleaseWhenFree     bool                `yaml:"release_when_free" json:"release_when_free"`
	AllowLocoTurn       bool                `yaml:"allow_loco_turn" json:"allow_loco_turn"`
	SelectRouteApproach SelectRouteApproach `yaml:"select_route_approach" json:"select_route_approach"`
	Cluster             ObjectID            `yaml:"cluster,omitempty" json:"cluster,omitempty"`
	ClusterInverted     bool                `yaml:"cluster_inverted,omitempty" json:"cluster_inverted,omitempty"`
	Signals             []ObjectID          `yaml:"signals,omitempty" json:"signals,omitempty"`
}

// UnmarshalYAML applies defaults for fields a hand-written layout usually
// omits.
func (c *TrackConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain TrackConfig
	p := plain{AllowLocoTurn: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = TrackConfig(p)
	return nil
}

// TrackSnapshot is a point-in-time copy of a track for publishing.
type TrackSnapshot struct {
	ID            ObjectID    `json:"id"`
	Name          string      `json:"name"`
	Occupancy     Occupancy   `json:"occupied"`
	Orientation   Orientation `json:"orientation"`
	Blocked       bool        `json:"blocked"`
	LockState     LockState   `json:"lock_state"`
	Holder        Handle      `json:"holder"`
	DelayedHolder Handle      `json:"delayed_holder"`
	Routes        []ObjectID  `json:"routes"`
	Feedbacks     []ObjectID  `json:"feedbacks"`
}

// Track is a physical block of the layout. It folds the occupancy of its
// feedbacks, remembers which way the occupying train faces, and is
// reserved by the train about to enter it.
//
// The delayed holder is the train that reserved the track. It survives a
// Release while the track still reads occupied, so a train whose tail is
// still in the block keeps others out and keeps receiving its feedbacks.
type Track struct {
	id         ObjectID
	name       string
	dispatcher Dispatcher
	logger     Logger

	res Reservable

	mu              sync.Mutex
	occupancy       Occupancy
	orientation     Orientation
	blocked         bool
	delayedHolder   Handle
	releaseWhenFree bool
	allowLocoTurn   bool
	approach        SelectRouteApproach
	cluster         ObjectID
	clusterInverted bool
	routes          []ObjectID
	feedbacks       []ObjectID
	signals         []ObjectID
}

// NewTrack creates a free, unoccupied track.
func NewTrack(cfg TrackConfig, d Dispatcher, logger Logger) *Track {
	return &Track{
		id:              cfg.ID,
		name:            cfg.Name,
		dispatcher:      d,
		logger:          loggerOrNoop(logger),
		orientation:     cfg.Orientation,
		blocked:         cfg.Blocked,
		releaseWhenFree: cfg.ReleaseWhenFree,
		allowLocoTurn:   cfg.AllowLocoTurn,
		approach:        cfg.SelectRouteApproach,
		cluster:         cfg.Cluster,
		clusterInverted: cfg.ClusterInverted,
		signals:         slices.Clone(cfg.Signals),
	}
}

func (t *Track) ID() ObjectID   { return t.id }
func (t *Track) Name() string   { return t.name }
func (t *Track) Handle() Handle { return Handle{Type: ObjectTypeTrack, ID: t.id} }

// ─── Reservation ────────────────────────────────────────────────────────────

// Reserve claims the track for holder.
//
// Fails with ErrTrackInUse if another train still occupies it, with
// ErrTrackBlocked if an operator blocked it, with ErrTrackOccupied if any
// bound feedback reads occupied, and with ErrNotFree if it is reserved.
func (t *Track) Reserve(holder Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.delayedHolder.IsSet() && t.delayedHolder != holder {
		return ErrTrackInUse
	}
	if t.blocked {
		return ErrTrackBlocked
	}
	if t.occupancy != OccupancyFree {
		return ErrTrackOccupied
	}
	return t.reserveLocked(holder)
}

// ReserveForce claims the track regardless of occupancy and blocking. It is
// used when an operator places a train on the track.
func (t *Track) ReserveForce(holder Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserveLocked(holder)
}

func (t *Track) reserveLocked(holder Handle) error {
	if err := t.res.Reserve(holder); err != nil {
		return err
	}
	t.delayedHolder = holder
	return nil
}

// Lock promotes holder's reservation.
func (t *Track) Lock(holder Handle) error {
	if err := t.res.Lock(holder); err != nil {
		return err
	}
	t.publish()
	return nil
}

// Downgrade reverts holder's Lock to a reservation.
func (t *Track) Downgrade(holder Handle) error {
	return t.res.Downgrade(holder)
}

// Release frees holder's reservation and sets the track's signals to stop.
// While the track still reads occupied the delayed holder is kept.
func (t *Track) Release(holder Handle) error {
	t.stopSignals(holder)

	t.mu.Lock()
	if err := t.res.Release(holder); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.occupancy == OccupancyFree {
		t.delayedHolder = Handle{}
	}
	t.mu.Unlock()

	t.publish()
	return nil
}

// ReleaseForce resets the track to free and unreserved whatever holds it.
func (t *Track) ReleaseForce() {
	t.stopSignals(t.res.Holder())

	t.mu.Lock()
	t.res.ReleaseForce()
	t.occupancy = OccupancyFree
	t.delayedHolder = Handle{}
	t.mu.Unlock()

	t.publish()
}

// LockState returns the reservation state and holder.
func (t *Track) LockState() (LockState, Handle) {
	return t.res.LockState()
}

// Holder returns the reservation holder.
func (t *Track) Holder() Handle {
	return t.res.Holder()
}

// DelayedHolder returns the train that still physically occupies the track.
func (t *Track) DelayedHolder() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delayedHolder
}

func (t *Track) stopSignals(holder Handle) {
	t.mu.Lock()
	signals := slices.Clone(t.signals)
	t.mu.Unlock()

	for _, id := range signals {
		signal := t.dispatcher.GetAccessory(id)
		if signal == nil || signal.Kind() != ObjectTypeSignal {
			continue
		}
		if h := signal.Holder(); h.IsSet() && h != holder {
			continue
		}
		if err := signal.SetState(SignalStop); err != nil {
			t.logger.Warn("stopping signal failed", "track_id", t.id, "signal_id", id, "error", err)
		}
	}
}

// ─── Occupancy ──────────────────────────────────────────────────────────────

// SetFeedbackState folds a debounced feedback change into the track.
//
// Occupied: the track becomes occupied and the train occupying it is told
// which feedback it reached. A hit on a track nobody claimed stops the
// booster and blocks the track when StopOnFeedbackInFreeTrack is set.
//
// Free: the track becomes free only once every bound feedback reads free.
// If the track is marked release-when-free and its holder agrees, the
// reservation is dropped on the spot.
func (t *Track) SetFeedbackState(feedbackID ObjectID, state Occupancy) {
	if state == OccupancyOccupied {
		t.feedbackOccupied(feedbackID)
		return
	}
	t.feedbackFree()
}

func (t *Track) feedbackOccupied(feedbackID ObjectID) {
	t.mu.Lock()
	changed := t.occupancy != OccupancyOccupied
	loco := t.delayedHolder
	stopBooster := false
	if !loco.IsSet() && !t.blocked && t.dispatcher.StopOnFeedbackInFreeTrack() {
		t.blocked = true
		stopBooster = true
		changed = true
	}
	t.occupancy = OccupancyOccupied
	t.mu.Unlock()

	if stopBooster {
		t.logger.Warn("feedback in free track, stopping booster", "track_id", t.id, "feedback_id", feedbackID)
		t.dispatcher.SetBooster(BoosterStop)
	}
	if loco.IsSet() {
		t.dispatcher.LocationReached(loco, feedbackID)
	}
	if changed {
		t.publish()
	}
}

func (t *Track) feedbackFree() {
	t.mu.Lock()
	for _, id := range t.feedbacks {
		f := t.dispatcher.GetFeedback(id)
		if f != nil && f.State() == OccupancyOccupied {
			t.mu.Unlock()
			return
		}
	}
	changed := t.occupancy != OccupancyFree
	t.occupancy = OccupancyFree
	holder := t.res.Holder()
	if !holder.IsSet() && t.delayedHolder.IsSet() {
		t.delayedHolder = Handle{}
		changed = true
	}
	releaseWhenFree := t.releaseWhenFree
	t.mu.Unlock()

	if releaseWhenFree && holder.IsSet() && t.dispatcher.CheckFreeingTrack(holder, t.id) {
		t.stopSignals(holder)
		t.mu.Lock()
		if t.occupancy == OccupancyFree && t.res.Holder() == holder {
			t.res.ReleaseForce()
			t.delayedHolder = Handle{}
			changed = true
			t.logger.Debug("track released when free", "track_id", t.id, "holder", holder.String())
		}
		t.mu.Unlock()
	}
	if changed {
		t.publish()
	}
}

// Occupancy returns the folded feedback state.
func (t *Track) Occupancy() Occupancy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.occupancy
}

// BindFeedback attaches a feedback sensor to the track.
func (t *Track) BindFeedback(id ObjectID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.feedbacks, id) {
		t.feedbacks = append(t.feedbacks, id)
	}
}

// ─── Orientation ────────────────────────────────────────────────────────────

// Orientation returns the direction the occupying train faces.
func (t *Track) Orientation() Orientation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.orientation
}

// AllowLocoTurn reports whether push-pull trains may reverse here.
func (t *Track) AllowLocoTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocoTurn
}

// CanSetLocoOrientation reports whether holder may set the orientation to o.
// A free track accepts anyone; a reserved track only its holder. Cluster
// members additionally need the cluster to agree.
func (t *Track) CanSetLocoOrientation(o Orientation, holder Handle) bool {
	state, h := t.res.LockState()
	if state != LockStateFree && h != holder {
		return false
	}
	cluster, inverted := t.clusterRef()
	if cluster == nil {
		return true
	}
	return cluster.CanSetOrientation(o.Flip(inverted), holder)
}

// SetLocoOrientation sets the direction the train on the track faces and
// turns the cluster with it.
func (t *Track) SetLocoOrientation(o Orientation) error {
	if t.Orientation() == o {
		return nil
	}
	if cluster, inverted := t.clusterRef(); cluster != nil {
		if !cluster.SetOrientation(o.Flip(inverted), t.res.Holder()) {
			return ErrOrientation
		}
	}
	t.mu.Lock()
	t.orientation = o
	t.mu.Unlock()
	return nil
}

func (t *Track) clusterRef() (*Cluster, bool) {
	t.mu.Lock()
	id, inverted := t.cluster, t.clusterInverted
	t.mu.Unlock()
	if id == 0 {
		return nil, false
	}
	return t.dispatcher.GetCluster(id), inverted
}

// ─── Routes ─────────────────────────────────────────────────────────────────

// AddRoute registers an outgoing route. Returns false if already present.
func (t *Track) AddRoute(id ObjectID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.Contains(t.routes, id) {
		return false
	}
	t.routes = append(t.routes, id)
	return true
}

// RemoveRoute unregisters an outgoing route.
func (t *Track) RemoveRoute(id ObjectID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.routes)
	t.routes = slices.DeleteFunc(t.routes, func(r ObjectID) bool { return r == id })
	return len(t.routes) < n
}

// GetValidRoutes returns the outgoing routes train may take from this track,
// ordered by the track's route selection policy.
func (t *Track) GetValidRoutes(train TrainProfile, allowTurn bool) []*Route {
	t.mu.Lock()
	ids := slices.Clone(t.routes)
	q := RouteQuery{
		TrackID:         t.id,
		Orientation:     t.orientation,
		Train:           train,
		AllowTurn:       allowTurn,
		TrackAllowsTurn: t.allowLocoTurn,
	}
	approach := t.approach
	t.mu.Unlock()

	if approach == SelectRouteSystemDefault {
		approach = t.dispatcher.SelectRouteApproach()
	}

	valid := make([]*Route, 0, len(ids))
	for _, id := range ids {
		route := t.dispatcher.GetRoute(id)
		if route == nil {
			continue
		}
		if route.FromTrackOrientation(q) {
			valid = append(valid, route)
		}
	}
	OrderRoutes(valid, approach)
	return valid
}

// ─── Admin ──────────────────────────────────────────────────────────────────

// SetBlocked sets or clears the operator block.
func (t *Track) SetBlocked(blocked bool) {
	t.mu.Lock()
	changed := t.blocked != blocked
	t.blocked = blocked
	t.mu.Unlock()
	if changed {
		t.publish()
	}
}

// Blocked reports whether an operator blocked the track.
func (t *Track) Blocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// Config returns the track's current configuration.
func (t *Track) Config() TrackConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackConfig{
		ID:                  t.id,
		Name:                t.name,
		Orientation:         t.orientation,
		Blocked:             t.blocked,
		ReleaseWhenFree:     t.releaseWhenFree,
		AllowLocoTurn:       t.allowLocoTurn,
		SelectRouteApproach: t.approach,
		Cluster:             t.cluster,
		ClusterInverted:     t.clusterInverted,
		Signals:             slices.Clone(t.signals),
	}
}

// Snapshot returns a copy of the track state.
func (t *Track) Snapshot() TrackSnapshot {
	state, holder := t.res.LockState()
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackSnapshot{
		ID:            t.id,
		Name:          t.name,
		Occupancy:     t.occupancy,
		Orientation:   t.orientation,
		Blocked:       t.blocked,
		LockState:     state,
		Holder:        holder,
		DelayedHolder: t.delayedHolder,
		Routes:        slices.Clone(t.routes),
		Feedbacks:     slices.Clone(t.feedbacks),
	}
}

func (t *Track) publish() {
	t.dispatcher.TrackPublishState(t.Snapshot())
}
