// Package interlock implements the reservation and locking protocol that
// keeps trains on a model railway from claiming the same piece of layout.
//
// Every interlockable object (track, route, relation, accessory) carries a
// Reservable: a three-state ownership cell (Free, Reserved, Locked) with a
// single holder. A route acquires itself, its destination track and every
// lock-time relation in a fixed order and rolls back exactly what the call
// acquired when any step fails, so a failed reservation never leaves a
// partial claim behind.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                     Dispatcher (interface)                  │
//	│  registry lookups · booster gate · hardware/UI fan-out      │
//	└───────────▲──────────────▲───────────────▲─────────────────┘
//	            │              │               │
//	  ┌─────────┴───┐   ┌──────┴──────┐   ┌────┴───────┐
//	  │   Route     │──▶│  Relation   │──▶│ Accessory  │
//	  │ (route.go)  │   │(relation.go)│   │ Counter    │
//	  └─────┬───────┘   └─────────────┘   │ Route (sub)│
//	        │ toTrack                      └────────────┘
//	  ┌─────▼───────┐   ┌─────────────┐   ┌────────────┐
//	  │   Track     │◀──│  Feedback   │   │  Cluster   │
//	  │ (track.go)  │   │(feedback.go)│   │(cluster.go)│
//	  └─────────────┘   └─────────────┘   └────────────┘
//
// # Object References
//
// Objects never hold pointers to each other. Cross-references are ObjectIDs
// resolved through the Dispatcher at the moment of use, and a lookup miss
// is treated as an ordinary reservation failure.
//
// # Thread Safety
//
// Each object owns a mutex guarding its mutable fields; the Reservable has
// its own. No object calls back into a locomotive while holding its mutex.
// Lock order for multi-resource acquisition is route, destination track,
// relations in list order. Rollback runs in reverse.
package interlock
