// Package selectdevice picks exactly one measurement device out of the
// candidates reported by a USB discovery backend.
//
// The package is split by concern:
//
//   - candidate.go: DeviceCandidate and its single-explanation invariant.
//   - classify.go: the pure readiness classification.
//   - registry.go: the ordered candidate view rebuilt from backend snapshots.
//   - machine.go: the selection state machine (OnTick, ConfirmManual).
//   - session.go: the session controller that owns polling and termination.
//   - observer.go: the observer interface presentation layers implement.
//
// A session is driven from a single goroutine, either by Session.Run or by a
// caller that invokes Start, Tick and the event methods itself (for example a
// terminal UI update loop). Other goroutines hand events to the owner through
// Session.Post.
package selectdevice
