package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBeamlineReading writes a single beamline hardware reading to InfluxDB.
//
// This is the primary method for recording pre-collection snapshot data
// (undulator gap, slit gaps, transmission, flux). The write is non-blocking;
// data is batched and sent asynchronously.
//
// Parameters:
//   - groupID: Collection group the reading belongs to
//   - signal: The signal name (e.g., "undulator_gap_mm", "flux_photons")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteBeamlineReading("grp-77", "undulator_gap_mm", 6.92)
//	client.WriteBeamlineReading("grp-77", "flux_photons", 8.1e11)
func (c *Client) WriteBeamlineReading(groupID string, signal string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"beamline_readings",
		map[string]string{
			"group_id": groupID,
			"signal":   signal,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteScanEvent writes a scan lifecycle marker.
//
// Used for tracking phase transitions and scan durations over time.
//
// Parameters:
//   - groupID: Collection group identifier
//   - phase: The phase name at the time of the event
//   - durationSeconds: Elapsed time in the phase (0 for entry markers)
func (c *Client) WriteScanEvent(groupID string, phase string, durationSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scan_events",
		map[string]string{
			"group_id": groupID,
			"phase":    phase,
		},
		map[string]interface{}{
			"duration_s": durationSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "beamline-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., event documents carrying
// their own acquisition timestamps).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
