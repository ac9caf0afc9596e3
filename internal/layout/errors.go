package layout

import "errors"

// Domain errors for the layout package.
//
// Validate wraps every problem it finds in one of these and joins them, so
// callers can test for a category with errors.Is:
//
//	if errors.Is(err, layout.ErrUnknownReference) {
//	    // the layout points at an object that does not exist
//	}
var (
	// ErrInvalidLayout is returned for structural problems such as zero ids.
	ErrInvalidLayout = errors.New("layout: invalid")

	// ErrDuplicateID is returned when two objects of one kind share an id.
	ErrDuplicateID = errors.New("layout: duplicate id")

	// ErrUnknownReference is returned when an object refers to a missing one.
	ErrUnknownReference = errors.New("layout: unknown reference")

	// ErrMissingStopFeedback is returned for automode routes without a stop feedback.
	ErrMissingStopFeedback = errors.New("layout: automode route without stop feedback")

	// ErrRouteCycle is returned when sub-route relations form a cycle.
	ErrRouteCycle = errors.New("layout: sub-route cycle")

	// ErrNotFound is returned when a stored object does not exist.
	ErrNotFound = errors.New("layout: not found")
)
