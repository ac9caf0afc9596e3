package dispatcher

import "errors"

// Domain errors for the dispatcher package.
//
// Use errors.Is() to check for specific errors:
//
//	if errors.Is(err, dispatcher.ErrNotFound) {
//	    // respond 404
//	}
var (
	// ErrNotFound is returned when an operation names an unknown object.
	ErrNotFound = errors.New("dispatcher: object not found")

	// ErrAlreadyBuilt is returned when a layout is built into a manager twice.
	ErrAlreadyBuilt = errors.New("dispatcher: layout already built")

	// ErrAlreadyStarted is returned when Start is called on a running manager.
	ErrAlreadyStarted = errors.New("dispatcher: already started")

	// ErrManualModeTimeout is returned when a loco does not reach manual
	// mode before the deadline. The request stays pending.
	ErrManualModeTimeout = errors.New("dispatcher: manual mode timeout")

	// ErrRouteNotHeld is returned when releasing a route the operator does not hold.
	ErrRouteNotHeld = errors.New("dispatcher: route not held by operator")
)
