// Package gridscan orchestrates automated grid scans for crystal
// centring.
//
// A grid scan rasters the sample through the beam on a rectangular
// grid, collects a diffraction image per grid box, and asks the
// analysis service where the crystal is. The Plan walks a fixed phase
// sequence: safety move, arm, top-up gating, acquisition, result
// correlation, aperture adjustment and the final move onto the chosen
// centre. Tidy-up (trigger reset, detector disarm) runs on every exit
// path, successful or not.
//
// The Runner owns plan lifecycle for the REST surface: one plan in
// flight at a time, cancellation, and status reporting.
package gridscan
