// Package hid enumerates and opens USB HID devices, and exposes the
// supported ones to discovery as a bus.
package hid

import "errors"

// ErrGone is returned by Manager.Open when nothing is attached at the path.
var ErrGone = errors.New("hid device not attached")

// Device is an opened HID device. Writes carry the report ID in p[0].
type Device interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// Info describes one HID interface as the OS lists it.
type Info struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Product      string
	Manufacturer string
}

// Filter selects devices by vendor and product id. A nil Filter keeps all.
type Filter func(vid, pid uint16) bool

func (f Filter) keep(vid, pid uint16) bool { return f == nil || f(vid, pid) }

// Manager lists and opens HID devices.
type Manager interface {
	List(f Filter) ([]Info, error)
	Open(path string) (Device, error)
}

// NewManager returns the manager for the running OS.
func NewManager() (Manager, error) {
	return newManager()
}
