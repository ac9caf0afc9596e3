// Package control connects Rail Logic Core to the command stations.
//
// Each command station (DCC central, Märklin CS, a LocoNet or s88 gateway)
// runs a small gateway that speaks its hardware protocol and talks to the
// core over MQTT. This package is the core side of that link:
//
//	┌───────────────────┐   Control    ┌──────────┐   MQTT   ┌──────────────┐
//	│ dispatcher.Manager│─────────────►│  Bridge  │─────────►│   gateway    │──► rails
//	│                   │◄─────────────│(this pkg)│◄─────────│ (per station)│◄── sensors
//	└───────────────────┘  Sink input  └──────────┘          └──────────────┘
//
// # Topics
//
//	raillogic/command/{control}/loco        core → station  LocoCommand
//	raillogic/command/{control}/accessory   core → station  AccessoryCommand
//	raillogic/command/{control}/booster     core → station  BoosterCommand
//	raillogic/feedback/{control}/{pin}      station → core  FeedbackMessage
//	raillogic/booster/{control}             station → core  BoosterMessage
//	raillogic/health/{control}              station → core  HealthMessage
//	raillogic/health/core                   core → all      HealthMessage (retained)
//
// Bit-level protocol encoding stays in the gateways.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Input handlers run on
// the MQTT client's goroutines and call the Sink directly.
//
// # Usage
//
//	bridge, err := control.New(control.Options{MQTT: client, Stations: l.Stations(), Logger: log})
//	if err != nil {
//	    return err
//	}
//	m := dispatcher.New(cfg, dispatcher.Deps{Control: bridge})
//	// build m from the layout, then
//	if err := bridge.Start(ctx, m); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package control
