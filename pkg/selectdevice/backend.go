package selectdevice

// Device is a device resource whose ownership moved from the backend to the
// caller. The caller closes it.
type Device interface {
	ID() DeviceID
	Close() error
}

// Backend discovers candidates and hands over the chosen one.
type Backend interface {
	// Refresh re-scans attached devices and reports whether the candidate
	// set or any candidate's state changed since the previous call. It must
	// return quickly; long work such as firmware upload runs in the
	// background and shows up in later refreshes.
	Refresh() bool

	// Candidates returns the current snapshot, valid until the next Refresh.
	Candidates() []DeviceCandidate

	// TakeDevice transfers ownership of the device with the given id. It
	// fails with ErrNotFound when the device is gone and ErrUnknownDevice
	// when the id was never reported. The backend stops tracking a device
	// once it has been taken.
	TakeDevice(id DeviceID) (Device, error)
}
