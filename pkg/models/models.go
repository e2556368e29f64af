// Package models lists the measurement devices the selector recognises and
// how each one is identified on the bus before and after its firmware is
// loaded.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Transport is the host-side access path for a model.
type Transport string

const (
	// TransportLibUSB devices are driven through libusb bulk and control
	// transfers.
	TransportLibUSB Transport = "libusb"
	// TransportHID devices enumerate as USB HID and never need firmware.
	TransportHID Transport = "hid"
)

// Cypress FX2 parts that come up without firmware use these IDs.
const (
	CypressVID uint16 = 0x04B4
	HantekVID  uint16 = 0x04B5
)

var (
	ErrDuplicateModel = errors.New("duplicate model")
	ErrInvalidModel   = errors.New("invalid model")
)

// Model describes one supported device.
type Model struct {
	Name      string
	Transport Transport

	// VendorID and ProductID identify the device once it runs its firmware.
	VendorID  uint16
	ProductID uint16

	// LoaderVendorID and LoaderProductID identify the bare device that still
	// needs its firmware. Both zero means the model never needs firmware.
	LoaderVendorID  uint16
	LoaderProductID uint16

	// Firmware is the Intel HEX image name, resolved against the firmware
	// directory.
	Firmware string
}

// NeedsFirmware reports whether the model has a firmware-less identity.
func (m Model) NeedsFirmware() bool {
	return m.LoaderVendorID != 0 || m.LoaderProductID != 0
}

func (m Model) validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidModel)
	case m.Transport != TransportLibUSB && m.Transport != TransportHID:
		return fmt.Errorf("%w: %s: unknown transport %q", ErrInvalidModel, m.Name, m.Transport)
	case m.VendorID == 0:
		return fmt.Errorf("%w: %s: missing vendor id", ErrInvalidModel, m.Name)
	case m.NeedsFirmware() && m.Transport == TransportHID:
		return fmt.Errorf("%w: %s: hid devices cannot load firmware", ErrInvalidModel, m.Name)
	case m.NeedsFirmware() && m.Firmware == "":
		return fmt.Errorf("%w: %s: loader ids without a firmware image", ErrInvalidModel, m.Name)
	}
	return nil
}

// Match is the result of looking up a VID/PID pair.
type Match struct {
	Model         *Model
	NeedsFirmware bool
}

type key struct{ vid, pid uint16 }

// Registry is an immutable set of models indexed by USB id.
type Registry struct {
	models []Model
	byID   map[key]Match
}

// NewRegistry builds a registry. Two models may not claim the same USB id.
func NewRegistry(ms ...Model) (*Registry, error) {
	r := &Registry{
		models: make([]Model, len(ms)),
		byID:   make(map[key]Match, 2*len(ms)),
	}
	copy(r.models, ms)

	for i := range r.models {
		m := &r.models[i]
		if err := m.validate(); err != nil {
			return nil, err
		}
		if err := r.index(key{m.VendorID, m.ProductID}, Match{Model: m}); err != nil {
			return nil, err
		}
		if m.NeedsFirmware() {
			if err := r.index(key{m.LoaderVendorID, m.LoaderProductID}, Match{Model: m, NeedsFirmware: true}); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Registry) index(k key, m Match) error {
	if prev, ok := r.byID[k]; ok {
		return fmt.Errorf("%w: %04x:%04x claimed by %s and %s", ErrDuplicateModel, k.vid, k.pid, prev.Model.Name, m.Model.Name)
	}
	r.byID[k] = m
	return nil
}

// With returns a new registry holding r's models followed by extra. An extra
// model with the same name as an existing one replaces it.
func (r *Registry) With(extra ...Model) (*Registry, error) {
	replaced := make(map[string]Model, len(extra))
	for _, m := range extra {
		replaced[m.Name] = m
	}

	var out []Model
	for _, m := range r.models {
		if n, ok := replaced[m.Name]; ok {
			out = append(out, n)
			delete(replaced, m.Name)
			continue
		}
		out = append(out, m)
	}
	for _, m := range extra {
		if _, ok := replaced[m.Name]; ok {
			out = append(out, m)
			delete(replaced, m.Name)
		}
	}

	return NewRegistry(out...)
}

// Lookup finds the model for a USB id.
func (r *Registry) Lookup(vid, pid uint16) (Match, bool) {
	m, ok := r.byID[key{vid, pid}]
	return m, ok
}

// Models returns the models in registration order.
func (r *Registry) Models() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

// ByTransport returns the models using t.
func (r *Registry) ByTransport(t Transport) []Model {
	var out []Model
	for _, m := range r.models {
		if m.Transport == t {
			out = append(out, m)
		}
	}
	return out
}

// Names returns the sorted model names, for the supported devices line.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for _, m := range r.models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
