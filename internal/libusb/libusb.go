// Package libusb discovers supported devices through libusb and loads their
// firmware.
package libusb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"

	"github.com/seagrayinc/scopeselect/internal/discovery"
	"github.com/seagrayinc/scopeselect/internal/fx2"
	"github.com/seagrayinc/scopeselect/internal/ihex"
	"github.com/seagrayinc/scopeselect/pkg/models"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// ErrAccessDenied is reported for devices the process may not open.
var ErrAccessDenied = errors.New("access denied: install the udev rules for this device or run with sufficient permissions")

type probe struct {
	address int
	err     error
}

// Bus scans libusb for the models in a registry.
type Bus struct {
	ctx         *gousb.Context
	models      *models.Registry
	firmwareDir string
	loader      *fx2.Loader
	logger      *slog.Logger

	mu     sync.Mutex
	probes map[selectdevice.DeviceID]probe
	images map[string]*ihex.Image
}

type Option func(*Bus)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithFirmwareDir sets where relative firmware names are resolved.
func WithFirmwareDir(dir string) Option {
	return func(b *Bus) {
		b.firmwareDir = dir
	}
}

// WithLoader replaces the default FX2 loader.
func WithLoader(l *fx2.Loader) Option {
	return func(b *Bus) {
		if l != nil {
			b.loader = l
		}
	}
}

// Open initialises libusb. A failure is wrapped in
// selectdevice.ErrBackendInit.
func Open(reg *models.Registry, opts ...Option) (b *Bus, err error) {
	defer func() {
		// gousb panics when libusb cannot be initialised
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: %v", selectdevice.ErrBackendInit, r)
		}
	}()

	b = &Bus{
		ctx:    gousb.NewContext(),
		models: reg,
		logger: slog.Default(),
		probes: make(map[selectdevice.DeviceID]probe),
		images: make(map[string]*ihex.Image),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.loader == nil {
		b.loader = fx2.NewLoader(fx2.WithLogger(b.logger))
	}
	return b, nil
}

func (b *Bus) Close() error {
	return b.ctx.Close()
}

func (b *Bus) Name() string { return "libusb" }

// Scan enumerates without opening anything, then opens each ready device
// once to check access. The probe result is kept until the device leaves or
// re-enumerates.
func (b *Bus) Scan() ([]discovery.Observation, error) {
	var descs []*gousb.DeviceDesc
	_, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if _, ok := match(b.models, desc); ok {
			descs = append(descs, desc)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}

	seen := make(map[selectdevice.DeviceID]struct{}, len(descs))
	obs := make([]discovery.Observation, 0, len(descs))
	for _, desc := range descs {
		m, _ := match(b.models, desc)
		o := discovery.Observation{
			Key:           DeviceKey(desc),
			Model:         m.Model,
			NeedsFirmware: m.NeedsFirmware,
		}
		seen[o.Key] = struct{}{}
		if !o.NeedsFirmware {
			o.Err = b.probe(o.Key, desc)
		}
		obs = append(obs, o)
	}

	b.mu.Lock()
	for key := range b.probes {
		if _, ok := seen[key]; !ok {
			delete(b.probes, key)
		}
	}
	b.mu.Unlock()

	return obs, nil
}

func (b *Bus) probe(key selectdevice.DeviceID, desc *gousb.DeviceDesc) error {
	b.mu.Lock()
	p, ok := b.probes[key]
	b.mu.Unlock()
	if ok && p.address == desc.Address {
		return p.err
	}

	dev, err := b.openDesc(key, desc)
	if err == nil {
		_ = dev.Close()
	} else {
		b.logger.Warn("device probe failed", slog.String("device", string(key)), slog.Any("error", err))
	}

	b.mu.Lock()
	b.probes[key] = probe{address: desc.Address, err: err}
	b.mu.Unlock()
	return err
}

// Open hands out the device currently attached at key.
func (b *Bus) Open(key selectdevice.DeviceID) (selectdevice.Device, error) {
	dev, err := b.openKey(key)
	if err != nil {
		return nil, err
	}
	return &Handle{id: key, dev: dev}, nil
}

// UploadFirmware loads m's firmware into the bare device at key.
func (b *Bus) UploadFirmware(ctx context.Context, key selectdevice.DeviceID, m *models.Model) error {
	img, err := b.image(m.Firmware)
	if err != nil {
		return err
	}

	dev, err := b.openKey(key)
	if err != nil {
		return err
	}
	defer dev.Close()

	return b.loader.Load(ctx, dev, img)
}

func (b *Bus) image(name string) (*ihex.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if img, ok := b.images[name]; ok {
		return img, nil
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.firmwareDir, name)
	}
	img, err := ihex.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("load firmware: %w", err)
	}
	b.images[name] = img
	return img, nil
}

func (b *Bus) openKey(key selectdevice.DeviceID) (*gousb.Device, error) {
	var target *gousb.DeviceDesc
	_, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if target == nil && DeviceKey(desc) == key {
			target = desc
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrNotFound, key)
	}
	return b.openDesc(key, target)
}

func (b *Bus) openDesc(key selectdevice.DeviceID, want *gousb.DeviceDesc) (*gousb.Device, error) {
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == want.Bus && desc.Address == want.Address
	})
	for _, d := range devs[min(1, len(devs)):] {
		_ = d.Close()
	}
	if len(devs) > 0 {
		return devs[0], nil
	}

	switch {
	case errors.Is(err, gousb.ErrorAccess):
		return nil, ErrAccessDenied
	case errors.Is(err, gousb.ErrorNoDevice), err == nil:
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrNotFound, key)
	default:
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
}

// DeviceKey names a device by bus and port path, which survives the
// re-enumeration that follows a firmware upload.
func DeviceKey(desc *gousb.DeviceDesc) selectdevice.DeviceID {
	if len(desc.Path) == 0 {
		return selectdevice.DeviceID(fmt.Sprintf("usb:%d-addr%d", desc.Bus, desc.Address))
	}

	ports := make([]string, len(desc.Path))
	for i, p := range desc.Path {
		ports[i] = strconv.Itoa(p)
	}
	return selectdevice.DeviceID(fmt.Sprintf("usb:%d-%s", desc.Bus, strings.Join(ports, ".")))
}

func match(reg *models.Registry, desc *gousb.DeviceDesc) (models.Match, bool) {
	m, ok := reg.Lookup(uint16(desc.Vendor), uint16(desc.Product))
	if !ok || m.Model.Transport != models.TransportLibUSB {
		return models.Match{}, false
	}
	return m, true
}

// Handle is a device handed over to the caller.
type Handle struct {
	id  selectdevice.DeviceID
	dev *gousb.Device
}

func (h *Handle) ID() selectdevice.DeviceID { return h.id }

// USB returns the underlying libusb device.
func (h *Handle) USB() *gousb.Device { return h.dev }

func (h *Handle) Close() error { return h.dev.Close() }

var (
	_ discovery.Bus      = (*Bus)(nil)
	_ discovery.Uploader = (*Bus)(nil)
)
