//go:build windows

package hid

import (
	"errors"
	"fmt"

	"github.com/karalabe/usb"
)

// hidapiManager goes through hidapi, so HID class devices work with the
// stock Windows driver.
type hidapiManager struct{}

func newManager() (Manager, error) {
	if !usb.Supported() {
		return nil, errors.New("hidapi is not available in this build")
	}
	return hidapiManager{}, nil
}

func (hidapiManager) enumerate() ([]usb.DeviceInfo, error) {
	infos, err := usb.EnumerateHid(0, 0)
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	return infos, nil
}

func (m hidapiManager) List(f Filter) ([]Info, error) {
	all, err := m.enumerate()
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, i := range all {
		if !f.keep(i.VendorID, i.ProductID) {
			continue
		}
		infos = append(infos, Info{
			Path:         i.Path,
			VendorID:     i.VendorID,
			ProductID:    i.ProductID,
			Product:      i.Product,
			Manufacturer: i.Manufacturer,
		})
	}
	return infos, nil
}

func (m hidapiManager) Open(path string) (Device, error) {
	all, err := m.enumerate()
	if err != nil {
		return nil, err
	}
	for _, i := range all {
		if i.Path != path {
			continue
		}
		dev, err := i.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return dev, nil
	}
	return nil, ErrGone
}
