package loco

import "github.com/nerrad567/rail-logic-core/internal/interlock"

// Dispatcher is what a Loco needs from the rest of the system.
//
// Send* methods deliver drive commands to the command station and the UI;
// they are called with the loco's drive mutex held and must not call back
// into the sending loco. LocoDestinationReached is called with the state
// mutex held.
type Dispatcher interface {
	GetTrack(id interlock.ObjectID) *interlock.Track
	GetRoute(id interlock.ObjectID) *interlock.Route

	Booster() interlock.BoosterState
	SetBooster(state interlock.BoosterState)
	NrOfTracksToReserve() int

	SendLocoSpeed(id interlock.ObjectID, speed Speed)
	SendLocoOrientation(id interlock.ObjectID, orientation interlock.Orientation)
	SendLocoFunction(id interlock.ObjectID, nr uint8, on bool)

	// LocoDestinationReached reports that loco stopped at track at the end
	// of route.
	LocoDestinationReached(loco, route, track interlock.ObjectID)
	LocoPublishState(s Snapshot)
}

// Logger defines the logging interface used by the loco package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
