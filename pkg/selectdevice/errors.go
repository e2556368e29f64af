package selectdevice

import "errors"

var (
	// ErrNotFound is returned when a device id is not part of the current
	// candidate set, for example because it was unplugged.
	ErrNotFound = errors.New("device not found")

	// ErrUnknownDevice is returned when a device id was never reported by
	// the backend.
	ErrUnknownDevice = errors.New("device was never registered")

	// ErrNotReady is returned when confirming a device that is not ready to
	// connect.
	ErrNotReady = errors.New("device not ready to connect")

	// ErrNoSelection is returned when confirming while no candidate exists.
	ErrNoSelection = errors.New("no device selected")

	// ErrInvalidCandidate is returned for candidates that break the
	// single-explanation invariant or repeat an id.
	ErrInvalidCandidate = errors.New("invalid candidate")

	ErrSessionStarted    = errors.New("session already started")
	ErrSessionNotStarted = errors.New("session not started")
	ErrSessionTerminated = errors.New("session terminated")

	// ErrBackendInit marks a discovery backend that could not be set up at
	// all (for example no USB access). It ends the session before polling.
	ErrBackendInit = errors.New("backend initialization failed")
)

// IsNotFound reports whether err means the device vanished.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRejected reports whether err is a refused user action rather than a
// defect. The session keeps polling after a rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrNoSelection) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionTerminated)
}
