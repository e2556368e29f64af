package hid

import (
	"errors"
	"testing"

	"github.com/seagrayinc/scopeselect/pkg/models"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

var meter = Info{Path: "/dev/hidraw3", VendorID: 0x10C4, ProductID: 0xEA80, Product: "CP2110 HID USB-to-UART Bridge"}

func TestScanFiltersSupported(t *testing.T) {
	mgr := NewMockManager(
		meter,
		Info{Path: "/dev/hidraw0", VendorID: 0x046D, ProductID: 0xC52B},
		// scopes are libusb devices even if an hid node shows up
		Info{Path: "/dev/hidraw1", VendorID: models.HantekVID, ProductID: 0x6022},
	)
	bus := NewBus(mgr, models.Default(), nil)

	obs, err := bus.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if obs[0].Key != "hid:/dev/hidraw3" || obs[0].Model.Name != "UT61E+" || obs[0].Err != nil {
		t.Fatalf("unexpected observation: %+v", obs[0])
	}
}

func TestScanProbesOnce(t *testing.T) {
	mgr := NewMockManager(meter)
	bus := NewBus(mgr, models.Default(), nil)

	for i := 0; i < 3; i++ {
		if _, err := bus.Scan(); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	if n := len(mgr.Opened()); n != 1 {
		t.Fatalf("device probed %d times, want 1", n)
	}

	// gone and back: probed again
	mgr.Set()
	bus.Scan()
	mgr.Set(meter)
	bus.Scan()
	if n := len(mgr.Opened()); n != 2 {
		t.Fatalf("device probed %d times, want 2", n)
	}
}

func TestScanReportsProbeFailure(t *testing.T) {
	mgr := NewMockManager(meter)
	mgr.FailOpen(meter.Path, errors.New("permission denied"))
	bus := NewBus(mgr, models.Default(), nil)

	obs, _ := bus.Scan()
	if len(obs) != 1 || obs[0].Err == nil {
		t.Fatalf("expected a probe error, got %+v", obs)
	}
}

func TestOpen(t *testing.T) {
	mgr := NewMockManager(meter)
	bus := NewBus(mgr, models.Default(), nil)

	dev, err := bus.Open(Key(meter.Path))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if dev.ID() != "hid:/dev/hidraw3" {
		t.Fatalf("ID() = %s", dev.ID())
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mgr.Set()
	if _, err := bus.Open(Key(meter.Path)); !errors.Is(err, selectdevice.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := bus.Open("usb:1-1"); !errors.Is(err, selectdevice.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}
