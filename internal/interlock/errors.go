package interlock

import "errors"

// Domain errors for the interlock package.
//
// Contention is never exceptional: callers check these with errors.Is and
// retry on their next tick.
//
//	if errors.Is(err, interlock.ErrNotFree) {
//	    // somebody else got there first
//	}
var (
	// ErrNotFree is returned when reserving an object that is already held.
	ErrNotFree = errors.New("interlock: not free")

	// ErrHolderMismatch is returned when a non-holder tries to lock or release.
	ErrHolderMismatch = errors.New("interlock: held by another owner")

	// ErrNotReserved is returned when locking an object that is not reserved.
	ErrNotReserved = errors.New("interlock: not reserved")

	// ErrNotLocked is returned when downgrading an object that is not locked.
	ErrNotLocked = errors.New("interlock: not locked")

	// ErrBoosterStopped is returned by route reservation while track power is off.
	ErrBoosterStopped = errors.New("interlock: booster stopped")

	// ErrNotFound is returned when a referenced object does not exist.
	ErrNotFound = errors.New("interlock: object not found")

	// ErrTrackBlocked is returned when reserving a track an operator has blocked.
	ErrTrackBlocked = errors.New("track: blocked")

	// ErrTrackOccupied is returned when reserving a track that is occupied.
	ErrTrackOccupied = errors.New("track: occupied")

	// ErrTrackInUse is returned when another train still physically occupies the track.
	ErrTrackInUse = errors.New("track: in use by another train")

	// ErrOrientation is returned when a track or cluster cannot take the orientation.
	ErrOrientation = errors.New("track: orientation not settable")

	// ErrConditionFailed is returned when a route condition relation does not hold.
	ErrConditionFailed = errors.New("route: condition not met")

	// ErrRouteInUse is returned when executing a route held by another owner.
	ErrRouteInUse = errors.New("route: in use")

	// ErrRouteNotFree is returned when editing a route that is reserved or locked.
	ErrRouteNotFree = errors.New("route: not free")

	// ErrCounterLimit is returned when a counter has reached its bound.
	ErrCounterLimit = errors.New("counter: limit reached")

	// ErrInvalidRelation is returned for relations with an unusable target.
	ErrInvalidRelation = errors.New("relation: invalid")
)

// IsContention reports whether err is an ordinary reservation conflict that
// the caller should retry later rather than treat as a fault.
func IsContention(err error) bool {
	return errors.Is(err, ErrNotFree) ||
		errors.Is(err, ErrHolderMismatch) ||
		errors.Is(err, ErrTrackOccupied) ||
		errors.Is(err, ErrTrackBlocked) ||
		errors.Is(err, ErrTrackInUse) ||
		errors.Is(err, ErrBoosterStopped) ||
		errors.Is(err, ErrConditionFailed) ||
		errors.Is(err, ErrCounterLimit)
}
