package hid

import (
	"errors"
	"sync"
)

// MockManager is an in-memory Manager for tests and demos.
type MockManager struct {
	mu      sync.Mutex
	devices []Info
	openErr map[string]error
	opened  []string
}

func NewMockManager(devices ...Info) *MockManager {
	return &MockManager{
		devices: devices,
		openErr: make(map[string]error),
	}
}

// Set replaces the attached devices.
func (m *MockManager) Set(devices ...Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

// FailOpen makes Open of path return err.
func (m *MockManager) FailOpen(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr[path] = err
}

// Opened lists the paths opened so far.
func (m *MockManager) Opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opened...)
}

func (m *MockManager) List(f Filter) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Info
	for _, d := range m.devices {
		if f.keep(d.VendorID, d.ProductID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockManager) Open(path string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.openErr[path]; err != nil {
		return nil, err
	}
	for _, d := range m.devices {
		if d.Path == path {
			m.opened = append(m.opened, path)
			return &MockDevice{}, nil
		}
	}
	return nil, ErrGone
}

// MockDevice records writes and returns nothing on read.
type MockDevice struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (d *MockDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("device closed")
	}
	d.written = append(d.written, append([]byte(nil), p...))
	return len(p), nil
}

func (d *MockDevice) Read(p []byte) (int, error) { return 0, nil }

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
