package interlock

import (
	"fmt"
	"sync"
)

// MarshalText renders the type by name.
func (t ObjectType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts a type name ("switch") so layouts can be written
// by hand.
func (t *ObjectType) UnmarshalText(text []byte) error {
	v, ok := ParseObjectType(string(text))
	if !ok {
		return fmt.Errorf("unknown object type %q", text)
	}
	*t = v
	return nil
}

// AccessoryConfig describes a decoder-driven accessory, switch or signal.
type AccessoryConfig struct {
	ID         ObjectID       `yaml:"id" json:"id"`
	Name       string         `yaml:"name" json:"name"`
	Kind       ObjectType     `yaml:"kind" json:"kind"` // accessory, switch or signal
	ControlID  string         `yaml:"control_id" json:"control_id"`
	Protocol   string         `yaml:"protocol" json:"protocol"`
	Address    uint16         `yaml:"address" json:"address"`
	DurationMS uint32         `yaml:"duration_ms" json:"duration_ms"`
	Inverted   bool           `yaml:"inverted" json:"inverted"`
	State      AccessoryState `yaml:"state" json:"state"`
}

// AccessorySnapshot is a point-in-time copy of an accessory.
type AccessorySnapshot struct {
	AccessoryConfig
	LockState LockState `json:"lock_state"`
	Holder    Handle    `json:"holder"`
}

// Accessory is a switch, signal or generic accessory decoder. Routes
// reserve it through their relations and set its state on execution.
type Accessory struct {
	Reservable

	cfg        AccessoryConfig
	dispatcher Dispatcher

	mu    sync.Mutex
	state AccessoryState
}

// NewAccessory creates an accessory from its configuration. A zero Kind is
// treated as a generic accessory.
func NewAccessory(cfg AccessoryConfig, d Dispatcher) *Accessory {
	if cfg.Kind == ObjectTypeNone {
		cfg.Kind = ObjectTypeAccessory
	}
	return &Accessory{cfg: cfg, dispatcher: d, state: cfg.State}
}

func (a *Accessory) ID() ObjectID            { return a.cfg.ID }
func (a *Accessory) Name() string            { return a.cfg.Name }
func (a *Accessory) Kind() ObjectType        { return a.cfg.Kind }
func (a *Accessory) Handle() Handle          { return Handle{Type: a.cfg.Kind, ID: a.cfg.ID} }
func (a *Accessory) Config() AccessoryConfig { return a.cfg }

// State returns the last commanded state.
func (a *Accessory) State() AccessoryState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetState records the new state and sends it to the hardware. The command
// is sent even when the state is unchanged so a route can re-assert a
// switch position.
func (a *Accessory) SetState(state AccessoryState) error {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()

	if err := a.dispatcher.AccessoryState(a.Snapshot()); err != nil {
		return fmt.Errorf("setting %s %d: %w", a.cfg.Kind, a.cfg.ID, err)
	}
	return nil
}

// Snapshot returns a copy of the accessory for publishing.
func (a *Accessory) Snapshot() AccessorySnapshot {
	ls, holder := a.LockState()
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := AccessorySnapshot{AccessoryConfig: a.cfg, LockState: ls, Holder: holder}
	snap.State = a.state
	return snap
}
