package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the layout.
const (
	MeasurementLocoSpeed      = "loco_speed"
	MeasurementFeedback       = "feedback_state"
	MeasurementRouteExecution = "route_execution"
	MeasurementBooster        = "booster_state"
)

// WriteLocoSpeed records the speed a locomotive was commanded to.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteLocoSpeed(3, 512)
func (c *Client) WriteLocoSpeed(locoID uint32, speed int) {
	c.writePoint(locoSpeedPoint(locoID, speed, time.Now()))
}

// WriteFeedbackState records a debounced occupancy change.
func (c *Client) WriteFeedbackState(feedbackID uint32, occupied bool) {
	c.writePoint(feedbackPoint(feedbackID, occupied, time.Now()))
}

// WriteRouteExecution records one execution of a route. holder is the
// locomotive or operator the route was set for.
func (c *Client) WriteRouteExecution(routeID uint32, holder string) {
	c.writePoint(routeExecutionPoint(routeID, holder, time.Now()))
}

// WriteBoosterState records the track power being switched.
func (c *Client) WriteBoosterState(on bool) {
	c.writePoint(boosterPoint(on, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.writePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func (c *Client) writePoint(point *write.Point) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(point)
}

func locoSpeedPoint(locoID uint32, speed int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLocoSpeed,
		map[string]string{"loco_id": idTag(locoID)},
		map[string]interface{}{"speed": speed},
		ts,
	)
}

func feedbackPoint(feedbackID uint32, occupied bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementFeedback,
		map[string]string{"feedback_id": idTag(feedbackID)},
		map[string]interface{}{"occupied": occupied},
		ts,
	)
}

func routeExecutionPoint(routeID uint32, holder string, ts time.Time) *write.Point {
	tags := map[string]string{"route_id": idTag(routeID)}
	if holder != "" {
		tags["holder"] = holder
	}
	return write.NewPoint(
		MeasurementRouteExecution,
		tags,
		map[string]interface{}{"count": 1},
		ts,
	)
}

func boosterPoint(on bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBooster,
		nil,
		map[string]interface{}{"on": on},
		ts,
	)
}

func idTag(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
