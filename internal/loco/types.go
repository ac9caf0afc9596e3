package loco

import (
	"fmt"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// Speed is a decoder-independent speed step in the range 0..SpeedMax.
type Speed uint16

// Speed defaults. A loco config may override travel, reduced and creeping.
const (
	SpeedMin      Speed = 0
	SpeedCreeping Speed = 100
	SpeedReduced  Speed = 400
	SpeedTravel   Speed = 700
	SpeedMax      Speed = 1023
)

// Timetable route sentinels. RouteAuto falls back to route search once the
// timetable is empty; RouteStop ends automode after the current route.
const (
	RouteAuto interlock.ObjectID = 0
	RouteStop interlock.ObjectID = 0xFFFF
)

// Default worker settings.
const (
	DefaultTickInterval        = time.Second
	DefaultNrOfTracksToReserve = 2
)

// State is the automaton state of a locomotive.
type State uint8

const (
	StateManual State = iota
	StateTerminated
	StateOff
	StateAutomodeGetFirst
	StateAutomodeGetSecond
	StateAutomodeRunning
	StateStopping
	StateError
)

var stateNames = map[State]string{
	StateManual:            "manual",
	StateTerminated:        "terminated",
	StateOff:               "off",
	StateAutomodeGetFirst:  "automode_get_first",
	StateAutomodeGetSecond: "automode_get_second",
	StateAutomodeRunning:   "automode_running",
	StateStopping:          "stopping",
	StateError:             "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsAutomatic reports whether a worker goroutine owns the loco.
func (s State) IsAutomatic() bool {
	return s != StateManual && s != StateTerminated
}

// AutoModeType selects how the automaton picks its next route.
type AutoModeType uint8

const (
	// AutoModeAutomode searches the outgoing routes of the current track.
	AutoModeAutomode AutoModeType = iota
	// AutoModeTimetable takes routes from the loco's timetable queue.
	AutoModeTimetable
)

func (m AutoModeType) String() string {
	if m == AutoModeTimetable {
		return "timetable"
	}
	return "automode"
}

// MarshalText encodes the mode by name.
func (m AutoModeType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseAutoModeType parses "automode" or "timetable".
func ParseAutoModeType(s string) (AutoModeType, error) {
	switch s {
	case "", "automode":
		return AutoModeAutomode, nil
	case "timetable":
		return AutoModeTimetable, nil
	}
	return AutoModeAutomode, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Config describes a locomotive or multiple unit.
type Config struct {
	ID        interlock.ObjectID `yaml:"id" json:"id"`
	Name      string             `yaml:"name" json:"name"`
	ControlID string             `yaml:"control_id" json:"control_id"`
	Protocol  string             `yaml:"protocol" json:"protocol"`
	Address   uint16             `yaml:"address" json:"address"`

	Length     uint32               `yaml:"length" json:"length"`
	PushPull   bool                 `yaml:"push_pull" json:"push_pull"`
	Propulsion interlock.Propulsion `yaml:"propulsion" json:"propulsion"`
	TrainType  interlock.TrainType  `yaml:"train_type" json:"train_type"`

	MaxSpeed      Speed `yaml:"max_speed" json:"max_speed"`
	TravelSpeed   Speed `yaml:"travel_speed" json:"travel_speed"`
	ReducedSpeed  Speed `yaml:"reduced_speed" json:"reduced_speed"`
	CreepingSpeed Speed `yaml:"creeping_speed" json:"creeping_speed"`

	// Slaves makes this loco a multiple unit: drive commands are repeated
	// to every slave loco.
	Slaves []interlock.ObjectID `yaml:"slaves,omitempty" json:"slaves,omitempty"`

	TrackID     interlock.ObjectID    `yaml:"track_id,omitempty" json:"track_id,omitempty"`
	Orientation interlock.Orientation `yaml:"orientation" json:"orientation"`
}

// withDefaults fills zero speeds with the package defaults.
func (c Config) withDefaults() Config {
	if c.MaxSpeed == 0 {
		c.MaxSpeed = SpeedMax
	}
	if c.TravelSpeed == 0 {
		c.TravelSpeed = SpeedTravel
	}
	if c.ReducedSpeed == 0 {
		c.ReducedSpeed = SpeedReduced
	}
	if c.CreepingSpeed == 0 {
		c.CreepingSpeed = SpeedCreeping
	}
	if c.Propulsion == 0 {
		c.Propulsion = interlock.PropulsionOther
	}
	if c.TrainType == 0 {
		c.TrainType = interlock.TrainTypeAll
	}
	return c
}

// Profile returns what route filters need to know about the train.
func (c Config) Profile() interlock.TrainProfile {
	return interlock.TrainProfile{
		Length:     c.Length,
		PushPull:   c.PushPull,
		Propulsion: c.Propulsion,
		TrainType:  c.TrainType,
	}
}

// TimetableEntry is one queued route. FollowUp overrides the route's
// configured follow-up when non-zero.
type TimetableEntry struct {
	Route    interlock.ObjectID `json:"route"`
	FollowUp interlock.ObjectID `json:"follow_up"`
}

// Snapshot is a point-in-time copy of a loco for publishing.
type Snapshot struct {
	ID          interlock.ObjectID    `json:"id"`
	Name        string                `json:"name"`
	State       State                 `json:"state"`
	Mode        AutoModeType          `json:"mode"`
	Speed       Speed                 `json:"speed"`
	Orientation interlock.Orientation `json:"orientation"`
	Functions   []uint8               `json:"functions"`
	TrackFrom   interlock.ObjectID    `json:"track_from"`
	TrackFirst  interlock.ObjectID    `json:"track_first"`
	TrackSecond interlock.ObjectID    `json:"track_second"`
	RouteFirst  interlock.ObjectID    `json:"route_first"`
	RouteSecond interlock.ObjectID    `json:"route_second"`
	Wait        uint32                `json:"wait"`
	Timetable   []TimetableEntry      `json:"timetable"`
	Slaves      []interlock.ObjectID  `json:"slaves,omitempty"`
}
