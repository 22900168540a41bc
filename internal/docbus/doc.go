// Package docbus carries the ordered document stream a scan emits.
//
// A scan is narrated as four document kinds: a start document opens the
// run, descriptor documents name the data streams that will follow,
// event documents carry readings against a previously seen descriptor,
// and a stop document closes the run with an exit status. Documents are
// dispatched synchronously and in emission order, so every subscriber
// observes the same sequence the scan produced.
//
// Subscribers declare what they care about by interface: a recorder
// implementing only EventRecorder is never bothered with start or stop
// documents. A recorder error is logged and dispatch continues; a
// bookkeeping fault must never abort a physical scan that is already
// exposing a sample.
package docbus
