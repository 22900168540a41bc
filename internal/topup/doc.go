// Package topup gates acquisitions against synchrotron top-up injections.
//
// In top-up operation the storage ring is periodically re-injected, and
// the beam is unusable for the few seconds an injection takes. An
// exposure that straddles an injection produces frames with a stepped
// intensity profile, so before each acquisition the gate compares the
// planned exposure window (plus a fixed operational overhead) against
// the machine's countdown to the next injection:
//
//   - countdown sentinel -1 means the ring is in decay mode with no
//     injections scheduled; acquire immediately.
//   - a machine mode outside the configured set means the countdown
//     signal is not meaningful (shutdown, machine development); the
//     gate fails open and acquires immediately.
//   - if the window fits before the next injection, acquire.
//   - otherwise sleep until the injection is due to finish, then poll
//     at a short fixed interval until the countdown shows the beam is
//     stable again.
//
// The gate delays; it never abandons an acquisition.
package topup
