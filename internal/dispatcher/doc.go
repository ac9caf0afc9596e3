// Package dispatcher owns the objects of a layout and connects them to the
// outside world.
//
// The Manager is the single collaborator of every track, route, feedback
// and loco. Objects look each other up through it and report every state
// change to it; it forwards commands to the command stations and events
// to the UI:
//
//	 control bridge ──FeedbackInput──▶ Feedback ──▶ Track ──LocationReached──▶ Loco
//	       ▲                                                                      │
//	       │ LocoSpeed / Accessory / Booster          Reserve / Lock / Execute    │
//	       └─────────────── Manager ◀──────────────── Route ◀─────────────────────┘
//	                           │
//	                           ├──▶ Hub        (loco.state, track.state, ...)
//	                           ├──▶ Telemetry  (speed, feedback, route, booster)
//	                           └──▶ Store      (route usage, loco position)
//
// # Key Types
//
//   - Manager: registries, interlock.Dispatcher and loco.Dispatcher
//   - Deps: Control, Hub, Telemetry, Store and Logger
//   - Config: tick, debounce and health intervals plus routing settings
//
// # Thread Safety
//
// Each registry has its own RWMutex that guards only the map. The Manager
// never calls into an object while holding a registry lock, and its
// callbacks never call back into the object that invoked them. Store
// writes are queued and run on the persist worker so the loco workers
// never wait on the database.
//
// # Usage
//
//	m := dispatcher.New(cfg, dispatcher.Deps{Control: bridge, Hub: hub, Store: repo, Logger: log})
//	if err := m.Build(layout); err != nil {
//	    return err
//	}
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Stop()
//	m.SetBooster(interlock.BoosterGo)
//	err := m.LocoAutoMode(locoID, loco.AutoModeAutomode)
package dispatcher
