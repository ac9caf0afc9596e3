package dispatcher

import (
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// WebSocket channels the dispatcher broadcasts on.
const (
	ChannelLocoState          = "loco.state"
	ChannelLocoSpeed          = "loco.speed"
	ChannelDestinationReached = "loco.destination_reached"
	ChannelTrackState         = "track.state"
	ChannelRouteState         = "route.state"
	ChannelFeedbackState      = "feedback.state"
	ChannelAccessoryState     = "accessory.state"
	ChannelBoosterState       = "booster.state"
)

// LocoSpeedEvent is broadcast on ChannelLocoSpeed for every speed step
// sent to a decoder, slaves of a multiple unit included.
type LocoSpeedEvent struct {
	Loco  interlock.ObjectID `json:"loco"`
	Speed loco.Speed         `json:"speed"`
}

// DestinationReachedEvent is broadcast when a loco stops at the end of a
// route.
type DestinationReachedEvent struct {
	Loco  interlock.ObjectID `json:"loco"`
	Route interlock.ObjectID `json:"route"`
	Track interlock.ObjectID `json:"track"`
}

// BoosterEvent is broadcast on every booster change. Source is "hardware"
// when a command station reported it and "core" otherwise.
type BoosterEvent struct {
	State  interlock.BoosterState `json:"state"`
	Source string                 `json:"source"`
}
