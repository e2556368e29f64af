package selectdevice

import "fmt"

// DeviceID identifies a physical device. It is opaque to this package and
// stable across polls for as long as the device stays attached to the same
// port.
type DeviceID string

// DeviceCandidate is one device the backend currently reports.
//
// At most one of CanConnect, NeedsFirmware and FailureReason is set at any
// time; a candidate moves between them but never holds two at once.
type DeviceCandidate struct {
	ID    DeviceID
	Model string

	// CanConnect is true once the device is enumerated, runs the required
	// firmware and showed no transport errors.
	CanConnect bool
	// NeedsFirmware is true while a firmware upload is required or running.
	NeedsFirmware bool
	// FailureReason is set when the device was seen but entered a failed
	// state.
	FailureReason string
}

// Validate reports whether the candidate respects the single-explanation
// invariant and carries an id.
func (c DeviceCandidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidCandidate)
	}

	var active int
	if c.CanConnect {
		active++
	}
	if c.NeedsFirmware {
		active++
	}
	if c.FailureReason != "" {
		active++
	}
	if active > 1 {
		return fmt.Errorf("%w: %s reports more than one readiness state", ErrInvalidCandidate, c.ID)
	}

	return nil
}
