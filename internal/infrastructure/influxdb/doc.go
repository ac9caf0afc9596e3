// Package influxdb provides InfluxDB connectivity for Rail Logic Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking telemetry writes and health monitoring.
//
// # Purpose
//
// This package records the layout's operating history:
//   - commanded locomotive speeds (loco_speed)
//   - debounced feedback occupancy (feedback_state)
//   - route executions per holder (route_execution)
//   - track power switching (booster_state)
//
// Every point carries a "site" tag with the layout's site id.
// *Client satisfies dispatcher.Telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteLocoSpeed(3, 512)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes on a closed or never connected client are dropped.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
