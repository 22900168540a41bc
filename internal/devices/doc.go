// Package devices adapts the MQTT hardware gateway to the interfaces
// the scan orchestrator drives.
//
// Motion is handled by the beamline package's axis controller; this
// package covers the rest of the endstation: the area detector, the
// trigger box, the raster scan driver, the aperture assembly, the
// sample stages, the cryostream and the synchrotron machine status
// feed. Commands
// follow the gateway's command/ack pattern and reads the
// request/response pattern, both keyed by unique message ids.
package devices
