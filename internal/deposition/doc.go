// Package deposition books collection groups and records into SQLite.
//
// A collection group is one experiment: a grid scan on one sample
// during one visit. Each group owns one collection record per sweep
// (a 2D scan deposits one record, a 3D scan two), and every record
// moves through pending, running and a terminal succeeded or failed
// status.
//
// The Recorder subscribes to the scan's document stream and drives the
// bookkeeping from it: pre-collection hardware readings are folded
// into the pending records, the records are only marked running once
// both reading streams have arrived, and the stop document closes them
// out. Bookkeeping is subordinate to the experiment: a persistence
// fault is logged and the physical scan continues.
package deposition
