// Package layout loads, validates and persists the static description of a
// model railway.
//
// A Layout is the set of configurations the dispatcher turns into live
// interlocking objects at start-up. It comes from one of two places:
//
//	seed.yaml ──LoadSeedFile──▶ Layout ──Import──▶ SQLite
//	                                                  │
//	dispatcher ◀──────────────────Load────────────────┘
//
// The SQLite store also keeps the runtime data that must survive a
// restart: route usage for the longest-unused selection policy and the
// track each loco stands on.
//
// # Validation
//
// Validate reports every problem at once. Each one wraps a sentinel from
// errors.go, so callers can branch with errors.Is.
package layout
