// Package influxdb provides InfluxDB connectivity for Beamline Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Pre-collection hardware snapshots (undulator gap, slit gaps, flux)
//   - Scan lifecycle markers (phase transitions, durations)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "beamline",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBeamlineReading("grp-77", "flux_photons", 8.1e11)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly. Telemetry is
// best-effort: a failed write never interrupts a running scan.
package influxdb
