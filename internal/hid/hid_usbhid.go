//go:build !windows

package hid

import (
	"fmt"

	usbhid "rafaelmartins.com/p/usbhid"
)

type hidrawManager struct{}

func newManager() (Manager, error) { return hidrawManager{}, nil }

func (hidrawManager) List(f Filter) ([]Info, error) {
	devs, err := usbhid.Enumerate(func(d *usbhid.Device) bool {
		return f.keep(d.VendorId(), d.ProductId())
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}

	infos := make([]Info, len(devs))
	for i, d := range devs {
		infos[i] = Info{
			Path:         d.Path(),
			VendorID:     d.VendorId(),
			ProductID:    d.ProductId(),
			Product:      d.Product(),
			Manufacturer: d.Manufacturer(),
		}
	}
	return infos, nil
}

func (hidrawManager) Open(path string) (Device, error) {
	atPath := func(d *usbhid.Device) bool { return d.Path() == path }

	// Get does not tell a missing device apart from other failures
	devs, err := usbhid.Enumerate(atPath)
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	if len(devs) == 0 {
		return nil, ErrGone
	}

	d, err := usbhid.Get(atPath, true, false)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return reportDevice{d}, nil
}

// reportDevice maps byte-stream I/O onto HID reports.
type reportDevice struct{ d *usbhid.Device }

func (r reportDevice) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.d.SetOutputReport(p[0], p[1:]); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (r reportDevice) Read(p []byte) (int, error) {
	_, buf, err := r.d.GetInputReport()
	if err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

func (r reportDevice) Close() error { return r.d.Close() }
