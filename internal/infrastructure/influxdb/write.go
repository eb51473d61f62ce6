package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordCommand writes one point per dispatched cell command.
//
// It satisfies the dispatcher's Telemetry interface. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Tags keep cardinality low: locker ID, command type and outcome.
// Latency lands in the duration_ms field.
func (c *Client) RecordCommand(lockerID string, command string, duration time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}

	point := write.NewPoint(
		"command_metrics",
		map[string]string{
			"locker_id": lockerID,
			"command":   command,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordFleet writes the periodic locker fleet gauge: how many lockers
// are known and how many are inside the liveness window.
func (c *Client) RecordFleet(total, online int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet_metrics",
		map[string]string{},
		map[string]interface{}{
			"lockers_total":  total,
			"lockers_online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"goroutines": 42})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
