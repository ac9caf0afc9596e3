package influxdb

import "errors"

// Telemetry errors. Check with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "run without telemetry".
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned by Connect when the first ping fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close or on a zero Client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps batch errors delivered to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
