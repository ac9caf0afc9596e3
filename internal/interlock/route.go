package interlock

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RouteSpeed is the speed class a train runs at on a route.
type RouteSpeed uint8

const (
	RouteSpeedCreeping RouteSpeed = 0
	RouteSpeedReduced  RouteSpeed = 1
	RouteSpeedTravel   RouteSpeed = 2
	RouteSpeedMax      RouteSpeed = 3
)

// DefaultRouteDelay is slept after each accessory a route sets.
const DefaultRouteDelay = 250 * time.Millisecond

// RouteConfig describes a directed route between two tracks.
type RouteConfig struct {
	ID      ObjectID `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	DelayMS uint32   `yaml:"delay_ms" json:"delay_ms"`

	FromTrack       ObjectID    `yaml:"from_track" json:"from_track"`
	FromOrientation Orientation `yaml:"from_orientation" json:"from_orientation"`
	ToTrack         ObjectID    `yaml:"to_track" json:"to_track"`
	ToOrientation   Orientation `yaml:"to_orientation" json:"to_orientation"`

	Automode         bool       `yaml:"automode" json:"automode"`
	WaitAfterRelease uint32     `yaml:"wait_after_release" json:"wait_after_release"` // ticks
	Speed            RouteSpeed `yaml:"speed" json:"speed"`
	FollowUpRoute    ObjectID   `yaml:"follow_up_route,omitempty" json:"follow_up_route,omitempty"`

	FeedbackReduced ObjectID `yaml:"feedback_reduced,omitempty" json:"feedback_reduced,omitempty"`
	ReducedDelayMS  uint32   `yaml:"reduced_delay_ms,omitempty" json:"reduced_delay_ms,omitempty"`
	FeedbackCreep   ObjectID `yaml:"feedback_creep,omitempty" json:"feedback_creep,omitempty"`
	CreepDelayMS    uint32   `yaml:"creep_delay_ms,omitempty" json:"creep_delay_ms,omitempty"`
	FeedbackStop    ObjectID `yaml:"feedback_stop,omitempty" json:"feedback_stop,omitempty"`
	StopDelayMS     uint32   `yaml:"stop_delay_ms,omitempty" json:"stop_delay_ms,omitempty"`
	FeedbackOver    ObjectID `yaml:"feedback_over,omitempty" json:"feedback_over,omitempty"`

	PushPull       PushPull   `yaml:"push_pull" json:"push_pull"`
	Propulsion     Propulsion `yaml:"propulsion" json:"propulsion"`
	TrainType      TrainType  `yaml:"train_type" json:"train_type"`
	MinTrainLength uint32     `yaml:"min_train_length" json:"min_train_length"`
	MaxTrainLength uint32     `yaml:"max_train_length" json:"max_train_length"` // 0 = unlimited

	Relations []RelationConfig `yaml:"relations,omitempty" json:"relations,omitempty"`
}

// DefaultRouteConfig returns a route that accepts every train at travel
// speed.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		DelayMS:    uint32(DefaultRouteDelay / time.Millisecond),
		Speed:      RouteSpeedTravel,
		PushPull:   PushPullBoth,
		Propulsion: PropulsionAll,
		TrainType:  TrainTypeAll,
	}
}

// UnmarshalYAML starts from DefaultRouteConfig.
func (c *RouteConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain RouteConfig
	p := plain(DefaultRouteConfig())
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = RouteConfig(p)
	return nil
}

// RouteSnapshot is a point-in-time copy of a route for publishing.
type RouteSnapshot struct {
	ID              ObjectID  `json:"id"`
	Name            string    `json:"name"`
	FromTrack       ObjectID  `json:"from_track"`
	ToTrack         ObjectID  `json:"to_track"`
	LockState       LockState `json:"lock_state"`
	Holder          Handle    `json:"holder"`
	LastUsed        time.Time `json:"last_used"`
	Counter         uint64    `json:"counter"`
	ExecuteAtUnlock bool      `json:"execute_at_unlock"`
}

// RouteQuery is the input of FromTrackOrientation.
type RouteQuery struct {
	TrackID     ObjectID
	Orientation Orientation
	Train       TrainProfile
	// AllowTurn permits the train to reverse onto the route.
	AllowTurn bool
	// TrackAllowsTurn is the origin track's own permission to reverse.
	TrackAllowsTurn bool
}

// Route is a directed path between two tracks with the relations that set
// it up. It owns the multi-resource reserve/lock/execute/release protocol.
type Route struct {
	cfg        RouteConfig
	dispatcher Dispatcher
	logger     Logger

	res Reservable

	// execMu serialises executions of this route.
	execMu sync.Mutex

	mu              sync.Mutex
	atLock          []*Relation
	atUnlock        []*Relation
	conditions      []*Relation
	executeAtUnlock bool
	lastUsed        time.Time
	counter         uint64
}

// NewRoute creates a free route with the relations listed in cfg.
func NewRoute(cfg RouteConfig, d Dispatcher, logger Logger) (*Route, error) {
	r := &Route{dispatcher: d, logger: loggerOrNoop(logger)}
	relations := cfg.Relations
	cfg.Relations = nil
	r.cfg = cfg
	if err := r.AssignRelations(relations); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Route) ID() ObjectID                 { return r.cfg.ID }
func (r *Route) Name() string                 { return r.cfg.Name }
func (r *Route) Handle() Handle               { return Handle{Type: ObjectTypeRoute, ID: r.cfg.ID} }
func (r *Route) FromTrack() ObjectID          { return r.cfg.FromTrack }
func (r *Route) FromOrientation() Orientation { return r.cfg.FromOrientation }
func (r *Route) ToTrack() ObjectID            { return r.cfg.ToTrack }
func (r *Route) ToOrientation() Orientation   { return r.cfg.ToOrientation }
func (r *Route) Speed() RouteSpeed            { return r.cfg.Speed }
func (r *Route) Automode() bool               { return r.cfg.Automode }
func (r *Route) WaitAfterRelease() uint32     { return r.cfg.WaitAfterRelease }
func (r *Route) FollowUpRoute() ObjectID      { return r.cfg.FollowUpRoute }
func (r *Route) MinTrainLength() uint32       { return r.cfg.MinTrainLength }
func (r *Route) FeedbackReduced() ObjectID    { return r.cfg.FeedbackReduced }
func (r *Route) FeedbackCreep() ObjectID      { return r.cfg.FeedbackCreep }
func (r *Route) FeedbackStop() ObjectID       { return r.cfg.FeedbackStop }
func (r *Route) FeedbackOver() ObjectID       { return r.cfg.FeedbackOver }

// Delay is slept after each accessory the route sets.
func (r *Route) Delay() time.Duration {
	return time.Duration(r.cfg.DelayMS) * time.Millisecond
}

// ReducedDelay, CreepDelay and StopDelay postpone the speed change after
// the corresponding feedback fires.
func (r *Route) ReducedDelay() time.Duration {
	return time.Duration(r.cfg.ReducedDelayMS) * time.Millisecond
}

func (r *Route) CreepDelay() time.Duration {
	return time.Duration(r.cfg.CreepDelayMS) * time.Millisecond
}

func (r *Route) StopDelay() time.Duration {
	return time.Duration(r.cfg.StopDelayMS) * time.Millisecond
}

// ─── Relations ──────────────────────────────────────────────────────────────

// AssignRelations replaces the route's relations. Only a free route may be
// edited; the replacement is all or nothing.
func (r *Route) AssignRelations(cfgs []RelationConfig) error {
	var atLock, atUnlock, conditions []*Relation
	for _, c := range cfgs {
		rel, err := NewRelation(r.cfg.ID, c, r.dispatcher, r.logger)
		if err != nil {
			return fmt.Errorf("route %d: %w", r.cfg.ID, err)
		}
		switch c.Kind {
		case RelationAtLock:
			atLock = append(atLock, rel)
		case RelationAtUnlock:
			atUnlock = append(atUnlock, rel)
		case RelationCondition:
			conditions = append(conditions, rel)
		default:
			return fmt.Errorf("route %d: %w: kind %s", r.cfg.ID, ErrInvalidRelation, c.Kind)
		}
	}
	byPriority := func(a, b *Relation) int { return cmp.Compare(a.Priority(), b.Priority()) }
	slices.SortStableFunc(atLock, byPriority)
	slices.SortStableFunc(atUnlock, byPriority)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.res.IsInUse() {
		return ErrRouteNotFree
	}
	r.atLock, r.atUnlock, r.conditions = atLock, atUnlock, conditions
	return nil
}

// Relations returns the configured relations of every kind.
func (r *Route) Relations() []RelationConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RelationConfig, 0, len(r.atLock)+len(r.atUnlock)+len(r.conditions))
	for _, list := range [][]*Relation{r.atLock, r.atUnlock, r.conditions} {
		for _, rel := range list {
			out = append(out, rel.Config())
		}
	}
	return out
}

func (r *Route) lists() (atLock, atUnlock, conditions []*Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atLock, r.atUnlock, r.conditions
}

// ObjectIsPartOfRoute reports whether any lock or unlock relation acts on h.
func (r *Route) ObjectIsPartOfRoute(h Handle) bool {
	atLock, atUnlock, _ := r.lists()
	for _, rel := range slices.Concat(atLock, atUnlock) {
		if rel.Targets(h) {
			return true
		}
	}
	return false
}

// ─── Reservation ────────────────────────────────────────────────────────────

// Reserve claims the route, its destination track (automode routes only)
// and every lock-time relation for holder, in that order.
//
// Returns:
//   - ErrBoosterStopped while track power is off
//   - ErrConditionFailed if a condition relation does not hold
//   - the first acquisition error otherwise; everything this call reserved
//     has been released again in reverse order
func (r *Route) Reserve(holder Handle) error {
	if r.dispatcher.Booster() == BoosterStop {
		return ErrBoosterStopped
	}
	if err := r.res.Reserve(holder); err != nil {
		return err
	}

	atLock, _, conditions := r.lists()
	for _, cond := range conditions {
		if !cond.CheckCondition() {
			_ = r.res.Release(holder)
			return ErrConditionFailed
		}
	}

	acquired := make([]Lockable, 0, len(atLock)+1)
	rollback := func(err error) error {
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = acquired[i].Release(holder)
		}
		_ = r.res.Release(holder)
		return err
	}

	if r.cfg.Automode {
		track := r.dispatcher.GetTrack(r.cfg.ToTrack)
		if track == nil {
			return rollback(fmt.Errorf("%w: track %d", ErrNotFound, r.cfg.ToTrack))
		}
		if err := track.Reserve(holder); err != nil {
			return rollback(fmt.Errorf("destination %d: %w", r.cfg.ToTrack, err))
		}
		acquired = append(acquired, track)
	}

	for _, rel := range atLock {
		if err := rel.Reserve(holder); err != nil {
			return rollback(fmt.Errorf("relation %s: %w", rel.Target().Handle(), err))
		}
		acquired = append(acquired, rel)
	}

	r.publish()
	return nil
}

// Lock promotes holder's reservation of the route, its destination track
// and its relations. On failure everything this call locked is downgraded
// back to Reserved in reverse order.
func (r *Route) Lock(holder Handle) error {
	if r.dispatcher.Booster() == BoosterStop {
		return ErrBoosterStopped
	}
	if err := r.res.Lock(holder); err != nil {
		return err
	}

	atLock, _, _ := r.lists()
	locked := make([]Lockable, 0, len(atLock)+1)
	rollback := func(err error) error {
		for i := len(locked) - 1; i >= 0; i-- {
			_ = locked[i].Downgrade(holder)
		}
		_ = r.res.Downgrade(holder)
		return err
	}

	if r.cfg.Automode {
		track := r.dispatcher.GetTrack(r.cfg.ToTrack)
		if track == nil {
			return rollback(fmt.Errorf("%w: track %d", ErrNotFound, r.cfg.ToTrack))
		}
		if err := track.Lock(holder); err != nil {
			return rollback(fmt.Errorf("destination %d: %w", r.cfg.ToTrack, err))
		}
		locked = append(locked, track)
	}

	for _, rel := range atLock {
		if err := rel.Lock(holder); err != nil {
			return rollback(fmt.Errorf("relation %s: %w", rel.Target().Handle(), err))
		}
		locked = append(locked, rel)
	}

	r.publish()
	return nil
}

// Downgrade reverts a Lock of the route and everything it locked.
func (r *Route) Downgrade(holder Handle) error {
	atLock, _, _ := r.lists()
	for i := len(atLock) - 1; i >= 0; i-- {
		_ = atLock[i].Downgrade(holder)
	}
	if r.cfg.Automode {
		if track := r.dispatcher.GetTrack(r.cfg.ToTrack); track != nil {
			_ = track.Downgrade(holder)
		}
	}
	return r.res.Downgrade(holder)
}

// Release frees the route and its lock-time relations. The destination
// track is not released; it belongs to the train that is heading there.
//
// If the route was executed while in use, the unlock-time relations run
// first, exactly once. Their errors are logged and never block the release.
// Releasing a free route is a no-op.
func (r *Route) Release(holder Handle) error {
	state, h := r.res.LockState()
	if state == LockStateFree {
		return nil
	}
	if h != holder {
		return ErrHolderMismatch
	}

	r.mu.Lock()
	runUnlock := r.executeAtUnlock
	r.executeAtUnlock = false
	atLock, atUnlock := r.atLock, r.atUnlock
	r.mu.Unlock()

	if runUnlock {
		delay := r.Delay()
		for _, rel := range atUnlock {
			if err := rel.Execute(holder, delay); err != nil {
				r.logger.Warn("unlock relation failed", "route_id", r.cfg.ID, "error", err)
			}
		}
	}

	for _, rel := range atLock {
		if err := rel.Release(holder); err != nil {
			r.logger.Debug("relation not released", "route_id", r.cfg.ID, "error", err)
		}
	}
	if err := r.res.Release(holder); err != nil {
		return err
	}
	r.publish()
	return nil
}

// LockState returns the route's reservation state and holder.
func (r *Route) LockState() (LockState, Handle) {
	return r.res.LockState()
}

// ─── Execution ──────────────────────────────────────────────────────────────

// Execute sets the route up on behalf of holder by running every lock-time
// relation in order.
//
// A route held by someone else is refused with ErrRouteInUse. Execution
// stops at the first failing relation. When the route is in use by holder
// the unlock-time relations are armed for its release.
func (r *Route) Execute(holder Handle) error {
	state, h := r.res.LockState()
	inUse := state != LockStateFree
	if inUse && h != holder {
		return ErrRouteInUse
	}

	r.execMu.Lock()
	defer r.execMu.Unlock()

	atLock, _, _ := r.lists()
	delay := r.Delay()
	for _, rel := range atLock {
		if err := rel.Execute(holder, delay); err != nil {
			return fmt.Errorf("route %d: %w", r.cfg.ID, err)
		}
	}

	r.mu.Lock()
	r.lastUsed = time.Now()
	r.counter++
	if inUse {
		r.executeAtUnlock = true
	}
	r.mu.Unlock()

	r.logger.Debug("route executed", "route_id", r.cfg.ID, "holder", holder.String())
	r.publish()
	return nil
}

// Usage returns when the route was last executed and how often.
func (r *Route) Usage() (time.Time, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed, r.counter
}

// SetUsage restores persisted usage statistics.
func (r *Route) SetUsage(lastUsed time.Time, counter uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = lastUsed
	r.counter = counter
}

// ─── Route search ───────────────────────────────────────────────────────────

// FromTrackOrientation reports whether a train standing on q.TrackID facing
// q.Orientation may take this route.
func (r *Route) FromTrackOrientation(q RouteQuery) bool {
	c := &r.cfg
	if !c.Automode {
		return false
	}
	if c.FromTrack != q.TrackID {
		return false
	}
	if q.Train.Length < c.MinTrainLength {
		return false
	}
	if c.MaxTrainLength > 0 && q.Train.Length > c.MaxTrainLength {
		return false
	}
	trainPushPull := PushPullNo
	if q.Train.PushPull {
		trainPushPull = PushPullOnly
	}
	if c.PushPull != trainPushPull && c.PushPull != PushPullBoth {
		return false
	}
	if c.Propulsion&q.Train.Propulsion != q.Train.Propulsion {
		return false
	}
	if c.TrainType&q.Train.TrainType == 0 {
		return false
	}
	if c.FromOrientation == q.Orientation {
		return true
	}
	return q.AllowTurn && q.Train.PushPull && q.TrackAllowsTurn
}

// OrderRoutes sorts candidate routes in place according to approach.
// The deterministic policies are stable so ties keep insertion order.
func OrderRoutes(routes []*Route, approach SelectRouteApproach) {
	switch approach {
	case SelectRouteRandom:
		rand.Shuffle(len(routes), func(i, j int) { routes[i], routes[j] = routes[j], routes[i] })
	case SelectRouteMinTrackLength:
		slices.SortStableFunc(routes, func(a, b *Route) int {
			return cmp.Compare(a.MinTrainLength(), b.MinTrainLength())
		})
	case SelectRouteLongestUnused:
		slices.SortStableFunc(routes, func(a, b *Route) int {
			at, _ := a.Usage()
			bt, _ := b.Usage()
			return at.Compare(bt)
		})
	}
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

// Config returns the route configuration including its relations.
func (r *Route) Config() RouteConfig {
	cfg := r.cfg
	cfg.Relations = r.Relations()
	return cfg
}

// Snapshot returns a copy of the route state.
func (r *Route) Snapshot() RouteSnapshot {
	state, holder := r.res.LockState()
	r.mu.Lock()
	defer r.mu.Unlock()
	return RouteSnapshot{
		ID:              r.cfg.ID,
		Name:            r.cfg.Name,
		FromTrack:       r.cfg.FromTrack,
		ToTrack:         r.cfg.ToTrack,
		LockState:       state,
		Holder:          holder,
		LastUsed:        r.lastUsed,
		Counter:         r.counter,
		ExecuteAtUnlock: r.executeAtUnlock,
	}
}

func (r *Route) publish() {
	r.dispatcher.RoutePublishState(r.Snapshot())
}
