package loco

import "errors"

// Domain errors for the loco package.
var (
	// ErrNotOnTrack is returned when starting automode for a loco without a track.
	ErrNotOnTrack = errors.New("loco: not on a track")

	// ErrErrorState is returned when starting automode while the loco is in error.
	ErrErrorState = errors.New("loco: in error state")

	// ErrAlreadyRunning is returned when automode is already active.
	ErrAlreadyRunning = errors.New("loco: already in automode")

	// ErrNotManual is returned for operations that need a loco in manual mode.
	ErrNotManual = errors.New("loco: not in manual mode")

	// ErrTrackAlreadySet is returned when placing a loco that already stands on a track.
	ErrTrackAlreadySet = errors.New("loco: track already set")

	// ErrInvalidMode is returned for an unknown automode type.
	ErrInvalidMode = errors.New("loco: invalid automode type")

	// ErrInvalidTimetable is returned for a timetable entry without a route.
	ErrInvalidTimetable = errors.New("loco: invalid timetable entry")
)
