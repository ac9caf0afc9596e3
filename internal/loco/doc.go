// Package loco implements the locomotive automaton of Rail Logic Core.
//
// A Loco in automode runs its own worker goroutine. The worker keeps a
// window of up to two reserved routes ahead of the train and moves it
// forward as feedbacks fire:
//
//	 trackFrom ──routeFirst──▶ trackFirst ──routeSecond──▶ trackSecond
//	     ▲                         ▲                            ▲
//	  departs                "first" marker                "stop" marker
//	                          (old stop)                 reduced/creep before
//
// State machine:
//
//	Manual ──GoToAutoMode──▶ GetFirst ──route found──▶ GetSecond
//	                            ▲                     │        │
//	                            │ stop reached        │ second │
//	                            └─────────────────────┘ found  ▼
//	                                                        Running
//	                                    first reached ◀────────┘
//	Off ──▶ Terminated ──GoToManualMode──▶ Manual
//
// A manual mode request turns GetFirst into Off and GetSecond or Running
// into Stopping; a stopping train terminates at its next destination.
//
// # Key Types
//
//   - Loco: speed, orientation, functions and the automaton
//   - Config: persisted loco settings including its track
//   - Dispatcher: lookups and drive fan-out the loco depends on
//   - Snapshot: published view of a loco
//
// # Thread Safety
//
// All Loco methods are safe for concurrent use. LocationReached is called
// by the track that saw the feedback; it only lowers speed and queues
// markers for the worker, which does all reserving and releasing. It
// takes the feedback mutex, never the state mutex the worker holds while
// a route is set up, so sensor input does not wait for relation delays.
// Releases of legs the train has left run outside the state mutex.
//
// # Usage
//
//	l := loco.New(cfg, manager, time.Second, log)
//	if err := l.SetTrack(trackID); err != nil {
//	    return err
//	}
//	if err := l.GoToAutoMode(loco.AutoModeAutomode); err != nil {
//	    return err
//	}
//	l.RequestManualMode()
//	for !l.GoToManualMode() {
//	    time.Sleep(time.Second)
//	}
package loco
