package control

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// MQTT message types exchanged between Rail Logic Core and the command
// station gateways.

// LocoCommand is sent from Core to a command station to drive a loco decoder.
// Topic: raillogic/command/{control}/loco
//
// Exactly one of Speed, Orientation or Function is set.
type LocoCommand struct {
	// ID uniquely identifies this command for tracing on the gateway side.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	Protocol string `json:"protocol"`
	Address  uint16 `json:"address"`

	// Speed is a decoder-independent step in 0..1023.
	Speed *uint16 `json:"speed,omitempty"`

	// Orientation is "left" or "right".
	Orientation string `json:"orientation,omitempty"`

	Function *FunctionCommand `json:"function,omitempty"`
}

// FunctionCommand switches one decoder function.
type FunctionCommand struct {
	Nr uint8 `json:"nr"`
	On bool  `json:"on"`
}

// AccessoryCommand is sent from Core to a command station to set a switch,
// signal or accessory output.
// Topic: raillogic/command/{control}/accessory
type AccessoryCommand struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	Address   uint16    `json:"address"`
	State     uint8     `json:"state"`

	// DurationMS switches the output off again after this many
	// milliseconds. Zero leaves it on.
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// BoosterCommand switches track power on a command station.
// Topic: raillogic/command/{control}/booster
type BoosterCommand struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	State     interlock.BoosterState `json:"state"`
}

// FeedbackMessage is sent from a command station when a sensor pin changes.
// Topic: raillogic/feedback/{control}/{pin}
type FeedbackMessage struct {
	Occupied bool `json:"occupied"`
}

// BoosterMessage is sent from a command station when its track power
// changes, for example after a short circuit or an emergency stop button.
// Topic: raillogic/booster/{control}
type BoosterMessage struct {
	State interlock.BoosterState `json:"state"`
}

// HealthStatus represents the operational status of a command station or
// of the core.
type HealthStatus string

const (
	// HealthHealthy indicates normal operation.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates operation with issues, for example a silent
	// command station.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting is published once while the core starts.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published during graceful shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published by every command station gateway and by the
// core itself.
// Topic: raillogic/health/{id}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	ID            string       `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds,omitempty"`

	// Stations lists command stations the core has heard from and their
	// last-seen time. Core only.
	Stations map[string]time.Time `json:"stations,omitempty"`
}

func newLocoCommand(protocol string, address uint16) LocoCommand {
	return LocoCommand{
		ID:        newCommandID(),
		Timestamp: time.Now().UTC(),
		Protocol:  protocol,
		Address:   address,
	}
}

func newCommandID() string {
	return uuid.NewString()
}
