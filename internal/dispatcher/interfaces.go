package dispatcher

import (
	"context"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/layout"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Decoder addresses a loco or accessory decoder behind a command station.
type Decoder struct {
	ControlID string `json:"control_id"`
	Protocol  string `json:"protocol"`
	Address   uint16 `json:"address"`
}

// Control is the hardware side: command stations reached through the
// control bridge. Calls must not block for long; they run on the loco
// workers and inside route execution.
type Control interface {
	// LocoSpeed sends a speed step to a loco decoder.
	LocoSpeed(d Decoder, speed loco.Speed) error

	// LocoOrientation sends the travel direction to a loco decoder.
	LocoOrientation(d Decoder, orientation interlock.Orientation) error

	// LocoFunction switches a decoder function.
	LocoFunction(d Decoder, nr uint8, on bool) error

	// Accessory sets a switch, signal or accessory output. A zero duration
	// leaves the output on.
	Accessory(d Decoder, state interlock.AccessoryState, duration time.Duration) error

	// Booster switches track power on every command station.
	Booster(state interlock.BoosterState) error

	// HealthCheck reports whether the command stations are reachable.
	HealthCheck(ctx context.Context) error
}

// Hub is the interface for broadcasting WebSocket events.
type Hub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Telemetry records time-series points. Implementations batch writes and
// never block.
type Telemetry interface {
	WriteLocoSpeed(locoID uint32, speed int)
	WriteFeedbackState(feedbackID uint32, occupied bool)
	WriteRouteExecution(routeID uint32, holder string)
	WriteBoosterState(on bool)
}

// Store persists the state that survives a restart: route usage and the
// track each loco stands on. layout.SQLiteRepository satisfies it.
type Store interface {
	SaveRouteUsage(ctx context.Context, id interlock.ObjectID, usage layout.RouteUsage) error
	SaveLocoTrack(ctx context.Context, id, track interlock.ObjectID, orientation interlock.Orientation) error
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
