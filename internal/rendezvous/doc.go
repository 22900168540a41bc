// Package rendezvous joins grid scans to their crystal centring results.
//
// Each collection is submitted to the analysis service exactly once,
// identified by its collection id. The service works asynchronously
// and publishes one result per collection; the Coordinator blocks a
// caller until every collection in a group has reported, merges the
// candidate crystals, ranks them, and hands back the centre to move
// to.
//
// The analysis service is advisory. A timeout, a service error or an
// empty candidate list degrades to the caller's fallback position and
// is logged; it never fails the experiment. Every group's outcome is
// cached permanently so late callers get the same answer.
package rendezvous
