package interlock

import (
	"fmt"
	"strings"
)

// ObjectType tags the kind of layout object a Handle refers to.
// The numbering is stable and used in persisted layouts.
type ObjectType uint8

const (
	ObjectTypeNone         ObjectType = 0
	ObjectTypeLoco         ObjectType = 1
	ObjectTypeTrack        ObjectType = 2
	ObjectTypeFeedback     ObjectType = 3
	ObjectTypeAccessory    ObjectType = 4
	ObjectTypeSwitch       ObjectType = 5
	ObjectTypeRoute        ObjectType = 6
	ObjectTypeLayer        ObjectType = 7
	ObjectTypeSignal       ObjectType = 8
	ObjectTypeCluster      ObjectType = 9
	ObjectTypeTimeTable    ObjectType = 10
	ObjectTypeText         ObjectType = 11
	ObjectTypePause        ObjectType = 12
	ObjectTypeMultipleUnit ObjectType = 13
	ObjectTypeBooster      ObjectType = 14
	ObjectTypeCounter      ObjectType = 15
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeNone:         "none",
	ObjectTypeLoco:         "loco",
	ObjectTypeTrack:        "track",
	ObjectTypeFeedback:     "feedback",
	ObjectTypeAccessory:    "accessory",
	ObjectTypeSwitch:       "switch",
	ObjectTypeRoute:        "route",
	ObjectTypeLayer:        "layer",
	ObjectTypeSignal:       "signal",
	ObjectTypeCluster:      "cluster",
	ObjectTypeTimeTable:    "timetable",
	ObjectTypeText:         "text",
	ObjectTypePause:        "pause",
	ObjectTypeMultipleUnit: "multiple_unit",
	ObjectTypeBooster:      "booster",
	ObjectTypeCounter:      "counter",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("object_type(%d)", uint8(t))
}

// ParseObjectType maps a lower-case type name back to its ObjectType.
func ParseObjectType(s string) (ObjectType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return ObjectTypeNone, false
}

// ObjectID is the numeric identifier of a layout object within its type.
// Zero means "none".
type ObjectID uint32

// Handle identifies the entity holding a Reservable. The zero value is the
// valid "unset" handle.
type Handle struct {
	Type ObjectType `json:"type"`
	ID   ObjectID   `json:"id"`
}

// LocoHandle returns the handle of a locomotive.
func LocoHandle(id ObjectID) Handle {
	return Handle{Type: ObjectTypeLoco, ID: id}
}

// IsSet reports whether the handle refers to an entity.
func (h Handle) IsSet() bool {
	return h.Type != ObjectTypeNone || h.ID != 0
}

func (h Handle) String() string {
	if !h.IsSet() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", h.Type, h.ID)
}

// Orientation is the direction a train faces on a track.
type Orientation uint8

const (
	OrientationLeft  Orientation = 0
	OrientationRight Orientation = 1
)

// Flip returns the opposite orientation when turn is true.
func (o Orientation) Flip(turn bool) Orientation {
	if turn {
		return o ^ 1
	}
	return o
}

func (o Orientation) String() string {
	if o == OrientationRight {
		return "right"
	}
	return "left"
}

// BoosterState is the global track power gate.
type BoosterState bool

const (
	BoosterStop BoosterState = false
	BoosterGo   BoosterState = true
)

func (b BoosterState) String() string {
	if b == BoosterGo {
		return "go"
	}
	return "stop"
}

// MarshalText encodes the booster as "go" or "stop".
func (b BoosterState) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts "go" or "stop".
func (b *BoosterState) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "go":
		*b = BoosterGo
	case "stop":
		*b = BoosterStop
	default:
		return fmt.Errorf("unknown booster state %q", text)
	}
	return nil
}

// Occupancy is the debounced occupied/free state of a feedback or track.
type Occupancy bool

const (
	OccupancyFree     Occupancy = false
	OccupancyOccupied Occupancy = true
)

func (o Occupancy) String() string {
	if o == OccupancyOccupied {
		return "occupied"
	}
	return "free"
}

// SelectRouteApproach is the ordering policy for candidate routes leaving
// a track.
type SelectRouteApproach uint8

const (
	SelectRouteSystemDefault  SelectRouteApproach = 0
	SelectRouteDoNotCare      SelectRouteApproach = 1
	SelectRouteRandom         SelectRouteApproach = 2
	SelectRouteMinTrackLength SelectRouteApproach = 3
	SelectRouteLongestUnused  SelectRouteApproach = 4
)

var selectRouteNames = map[SelectRouteApproach]string{
	SelectRouteSystemDefault:  "system_default",
	SelectRouteDoNotCare:      "do_not_care",
	SelectRouteRandom:         "random",
	SelectRouteMinTrackLength: "min_track_length",
	SelectRouteLongestUnused:  "longest_unused",
}

func (s SelectRouteApproach) String() string {
	if name, ok := selectRouteNames[s]; ok {
		return name
	}
	return fmt.Sprintf("select_route(%d)", uint8(s))
}

func (s SelectRouteApproach) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SelectRouteApproach) UnmarshalText(text []byte) error {
	v, err := ParseSelectRouteApproach(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSelectRouteApproach parses a configuration value such as
// "longest_unused".
func ParseSelectRouteApproach(s string) (SelectRouteApproach, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range selectRouteNames {
		if name == s {
			return v, nil
		}
	}
	return SelectRouteSystemDefault, fmt.Errorf("unknown select route approach %q", s)
}

// PushPull describes whether a route accepts push-pull trains.
type PushPull uint8

const (
	PushPullNo   PushPull = 0
	PushPullOnly PushPull = 1
	PushPullBoth PushPull = 2
)

// Propulsion is a bitmask of traction kinds.
type Propulsion uint8

const (
	PropulsionSteam    Propulsion = 0x01
	PropulsionDiesel   Propulsion = 0x02
	PropulsionGas      Propulsion = 0x04
	PropulsionElectric Propulsion = 0x08
	PropulsionHydrogen Propulsion = 0x10
	PropulsionAccu     Propulsion = 0x20
	PropulsionOther    Propulsion = 0x80
	PropulsionAll      Propulsion = 0xFF
)

// TrainType is a bitmask of service categories (freight, regional, ...).
type TrainType uint32

// TrainTypeAll matches every train type.
const TrainTypeAll TrainType = 0xFFFFFFFF

// TrainProfile is what a route needs to know about a train to decide
// whether it may run it.
type TrainProfile struct {
	Length     uint32
	PushPull   bool
	Propulsion Propulsion
	TrainType  TrainType
}

// AccessoryState is the commanded state of an accessory, switch or signal.
type AccessoryState uint8

const (
	AccessoryOff AccessoryState = 0
	AccessoryOn  AccessoryState = 1

	SwitchTurnout  AccessoryState = AccessoryOff
	SwitchStraight AccessoryState = AccessoryOn

	SignalStop  AccessoryState = 0
	SignalClear AccessoryState = 1
)

// CounterDirection selects which way a counter relation counts.
type CounterDirection uint8

const (
	CounterIncrement CounterDirection = 0
	CounterDecrement CounterDirection = 1
)
