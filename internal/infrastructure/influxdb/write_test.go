package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func TestTelemetryPoints(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{"loco speed", locoSpeedPoint(3, 512, ts), "loco_speed,loco_id=3 speed=512i"},
		{"feedback", feedbackPoint(7, true, ts), "feedback_state,feedback_id=7 occupied=true"},
		{"route with holder", routeExecutionPoint(12, "loco:3", ts), "route_execution,holder=loco:3,route_id=12 count=1i"},
		{"route without holder", routeExecutionPoint(12, "", ts), "route_execution,route_id=12 count=1i"},
		{"booster", boosterPoint(false, ts), "booster_state on=false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := write.PointToLineProtocol(tt.point, time.Second)
			if !strings.HasPrefix(got, tt.want+" ") {
				t.Errorf("line = %q, want prefix %q", got, tt.want)
			}
			if !strings.Contains(got, "1772366400") {
				t.Errorf("line = %q, want timestamp 1772366400", got)
			}
		})
	}
}

func TestBatchDefaults(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 250, 2, 250, 2000},
		{"zero uses defaults", 0, 0, 100, 10000},
		{"negative uses defaults", -5, -1, 100, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchSize(tt.batch); got != tt.wantBatch {
				t.Errorf("batchSize(%d) = %d, want %d", tt.batch, got, tt.wantBatch)
			}
			if got := flushIntervalMillis(tt.flush); got != tt.wantFlush {
				t.Errorf("flushIntervalMillis(%d) = %d, want %d", tt.flush, got, tt.wantFlush)
			}
		})
	}
}
