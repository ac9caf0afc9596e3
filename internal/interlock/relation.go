package interlock

import (
	"fmt"
	"strings"
	"time"
)

// RelationKind says when a relation takes part in its route's life cycle.
type RelationKind uint8

const (
	// RelationAtLock relations are reserved with the route and executed
	// when the route is set.
	RelationAtLock RelationKind = 0
	// RelationAtUnlock relations are executed when a route that was
	// executed while in use is released.
	RelationAtUnlock RelationKind = 1
	// RelationCondition relations gate reservation without changing anything.
	RelationCondition RelationKind = 2
)

var relationKindNames = map[RelationKind]string{
	RelationAtLock:    "at_lock",
	RelationAtUnlock:  "at_unlock",
	RelationCondition: "condition",
}

func (k RelationKind) String() string {
	if name, ok := relationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("relation_kind(%d)", uint8(k))
}

func (k RelationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RelationKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v, name := range relationKindNames {
		if name == s {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown relation kind %q", text)
}

// TargetKind is the tag of a RelationTarget.
type TargetKind uint8

const (
	// TargetNone is an action without a reservable object: pause, loco
	// function, loco orientation or booster.
	TargetNone TargetKind = iota
	// TargetRoute is a sub-route, reserved and executed with its parent.
	TargetRoute
	// TargetLockable is a track, switch, signal or accessory.
	TargetLockable
	// TargetCounter is a counter checked on reserve and counted on execute.
	TargetCounter
)

// RelationTarget is the closed set of things a relation can act on.
// Type carries the concrete object type (or the action for TargetNone)
// and ID the object id; for loco function actions ID is the function
// number.
type RelationTarget struct {
	Kind TargetKind
	Type ObjectType
	ID   ObjectID
}

// TargetFor classifies an object reference into a RelationTarget.
func TargetFor(t ObjectType, id ObjectID) (RelationTarget, error) {
	switch t {
	case ObjectTypeRoute:
		return RelationTarget{Kind: TargetRoute, Type: t, ID: id}, nil
	case ObjectTypeTrack, ObjectTypeSwitch, ObjectTypeSignal, ObjectTypeAccessory:
		return RelationTarget{Kind: TargetLockable, Type: t, ID: id}, nil
	case ObjectTypeCounter:
		return RelationTarget{Kind: TargetCounter, Type: t, ID: id}, nil
	case ObjectTypeLoco, ObjectTypePause, ObjectTypeMultipleUnit, ObjectTypeBooster:
		return RelationTarget{Kind: TargetNone, Type: t, ID: id}, nil
	default:
		return RelationTarget{}, fmt.Errorf("%w: unsupported target type %s", ErrInvalidRelation, t)
	}
}

// Handle returns the target as an object handle.
func (t RelationTarget) Handle() Handle {
	return Handle{Type: t.Type, ID: t.ID}
}

// RelationConfig describes one relation of a route.
//
// Data meaning depends on the target: the accessory state to set, the
// track or loco orientation, the counter direction, a pause in 100 ms
// units, or for loco functions 0/1 for off/on and larger values for a
// timed pulse of Data×100 ms.
type RelationConfig struct {
	Kind       RelationKind `yaml:"kind" json:"kind"`
	Priority   uint8        `yaml:"priority" json:"priority"`
	ObjectType ObjectType   `yaml:"type" json:"type"`
	ObjectID   ObjectID     `yaml:"id" json:"id"`
	Data       uint16       `yaml:"data" json:"data"`
}

// Relation is a side effect or precondition attached to a route. It is
// itself reservable so that a route acquires everything it touches in one
// transaction.
type Relation struct {
	route      ObjectID
	cfg        RelationConfig
	target     RelationTarget
	dispatcher Dispatcher
	logger     Logger

	res Reservable
}

// NewRelation creates a relation owned by route.
func NewRelation(route ObjectID, cfg RelationConfig, d Dispatcher, logger Logger) (*Relation, error) {
	target, err := TargetFor(cfg.ObjectType, cfg.ObjectID)
	if err != nil {
		return nil, err
	}
	return &Relation{route: route, cfg: cfg, target: target, dispatcher: d, logger: loggerOrNoop(logger)}, nil
}

func (r *Relation) Kind() RelationKind     { return r.cfg.Kind }
func (r *Relation) Target() RelationTarget { return r.target }
func (r *Relation) Config() RelationConfig { return r.cfg }
func (r *Relation) Priority() uint8        { return r.cfg.Priority }
func (r *Relation) Data() uint16           { return r.cfg.Data }
func (r *Relation) Route() ObjectID        { return r.route }
func (r *Relation) Targets(h Handle) bool  { return r.target.Handle() == h }

// lockable resolves the target for TargetRoute and TargetLockable.
// Returns nil if the target does not exist.
func (r *Relation) lockable() Lockable {
	switch r.target.Type {
	case ObjectTypeRoute:
		if route := r.dispatcher.GetRoute(r.target.ID); route != nil {
			return route
		}
	case ObjectTypeTrack:
		if track := r.dispatcher.GetTrack(r.target.ID); track != nil {
			return track
		}
	case ObjectTypeSwitch, ObjectTypeSignal, ObjectTypeAccessory:
		if acc := r.dispatcher.GetAccessory(r.target.ID); acc != nil {
			return acc
		}
	}
	return nil
}

// Reserve reserves the relation and then its target. On failure nothing
// stays reserved.
func (r *Relation) Reserve(holder Handle) error {
	if err := r.res.Reserve(holder); err != nil {
		return err
	}

	var err error
	switch r.target.Kind {
	case TargetNone:
		return nil
	case TargetCounter:
		counter := r.dispatcher.GetCounter(r.target.ID)
		switch {
		case counter == nil:
			err = fmt.Errorf("%w: counter %d", ErrNotFound, r.target.ID)
		case !counter.Check(CounterDirection(r.cfg.Data)):
			err = ErrCounterLimit
		}
	default:
		target := r.lockable()
		if target == nil {
			err = fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
		} else {
			err = target.Reserve(holder)
		}
	}

	if err != nil {
		_ = r.res.Release(holder)
		return err
	}
	return nil
}

// Lock locks the relation and then its target. On failure the relation is
// back to Reserved.
func (r *Relation) Lock(holder Handle) error {
	if err := r.res.Lock(holder); err != nil {
		return err
	}
	if r.target.Kind == TargetNone || r.target.Kind == TargetCounter {
		return nil
	}

	var err error
	target := r.lockable()
	if target == nil {
		err = fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
	} else {
		err = target.Lock(holder)
	}
	if err != nil {
		_ = r.res.Downgrade(holder)
		return err
	}
	return nil
}

// Downgrade reverts a Lock on the target and the relation.
func (r *Relation) Downgrade(holder Handle) error {
	if r.target.Kind == TargetRoute || r.target.Kind == TargetLockable {
		if target := r.lockable(); target != nil {
			_ = target.Downgrade(holder)
		}
	}
	return r.res.Downgrade(holder)
}

// Release frees the target and then the relation.
func (r *Relation) Release(holder Handle) error {
	if r.target.Kind == TargetRoute || r.target.Kind == TargetLockable {
		if target := r.lockable(); target != nil {
			if err := target.Release(holder); err != nil {
				r.logger.Debug("relation target not released",
					"route_id", r.route, "target", r.target.Handle().String(), "error", err)
			}
		}
	}
	return r.res.Release(holder)
}

// LockState returns the relation's own reservation state.
func (r *Relation) LockState() (LockState, Handle) {
	return r.res.LockState()
}

// Execute performs the relation's side effect on behalf of holder.
// Accessory changes are followed by delay so decoders are not flooded.
func (r *Relation) Execute(holder Handle, delay time.Duration) error {
	data := r.cfg.Data

	switch r.target.Type {
	case ObjectTypeAccessory, ObjectTypeSwitch, ObjectTypeSignal:
		acc := r.dispatcher.GetAccessory(r.target.ID)
		if acc == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
		}
		if err := acc.SetState(AccessoryState(data)); err != nil {
			return err
		}
		time.Sleep(delay)
		return nil

	case ObjectTypeTrack:
		track := r.dispatcher.GetTrack(r.target.ID)
		if track == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
		}
		if err := track.SetLocoOrientation(Orientation(data)); err != nil {
			r.logger.Warn("track orientation not set", "track_id", r.target.ID, "error", err)
		}
		return nil

	case ObjectTypeRoute:
		route := r.dispatcher.GetRoute(r.target.ID)
		if route == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
		}
		return route.Execute(holder)

	case ObjectTypeCounter:
		counter := r.dispatcher.GetCounter(r.target.ID)
		if counter == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, r.target.Handle())
		}
		return counter.Count(CounterDirection(data))

	case ObjectTypeLoco:
		nr := uint8(r.target.ID)
		if data > uint16(AccessoryOn) {
			r.dispatcher.LocoBaseFunctionState(holder, nr, true)
			time.Sleep(time.Duration(data) * 100 * time.Millisecond)
			r.dispatcher.LocoBaseFunctionState(holder, nr, false)
			return nil
		}
		r.dispatcher.LocoBaseFunctionState(holder, nr, data != 0)
		return nil

	case ObjectTypePause:
		time.Sleep(time.Duration(data) * 100 * time.Millisecond)
		return nil

	case ObjectTypeMultipleUnit:
		r.dispatcher.LocoBaseOrientation(holder, Orientation(data))
		return nil

	case ObjectTypeBooster:
		r.dispatcher.SetBooster(BoosterState(data != 0))
		return nil
	}
	return fmt.Errorf("%w: cannot execute %s", ErrInvalidRelation, r.target.Type)
}

// CheckCondition evaluates the target's current state against Data without
// changing anything.
func (r *Relation) CheckCondition() bool {
	data := r.cfg.Data
	switch r.target.Type {
	case ObjectTypeAccessory, ObjectTypeSwitch, ObjectTypeSignal:
		acc := r.dispatcher.GetAccessory(r.target.ID)
		return acc != nil && acc.State() == AccessoryState(data)
	case ObjectTypeTrack:
		track := r.dispatcher.GetTrack(r.target.ID)
		return track != nil && track.Occupancy() == Occupancy(data != 0)
	case ObjectTypeCounter:
		counter := r.dispatcher.GetCounter(r.target.ID)
		return counter != nil && counter.Check(CounterDirection(data))
	case ObjectTypeRoute:
		route := r.dispatcher.GetRoute(r.target.ID)
		if route == nil {
			return false
		}
		state, _ := route.LockState()
		return state == LockState(data)
	default:
		return true
	}
}
