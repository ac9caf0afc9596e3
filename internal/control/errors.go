package control

import "errors"

// Domain errors for the control bridge.
//
// Use errors.Is() to check:
//
//	if errors.Is(err, control.ErrStationSilent) {
//	    // a command station stopped reporting
//	}
var (
	// ErrNotConnected is returned when the MQTT broker is unreachable.
	ErrNotConnected = errors.New("control: not connected to broker")

	// ErrNoStations is returned by Booster when no command station is known.
	ErrNoStations = errors.New("control: no command stations known")

	// ErrMissingStation is returned for a decoder without a command station.
	ErrMissingStation = errors.New("control: decoder has no command station")

	// ErrStationSilent is returned by HealthCheck when a configured command
	// station has not reported within the stale window.
	ErrStationSilent = errors.New("control: command station silent")

	// ErrInvalidPayload is returned by input handlers for malformed JSON.
	ErrInvalidPayload = errors.New("control: invalid payload")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("control: already started")
)
