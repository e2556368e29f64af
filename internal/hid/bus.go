package hid

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seagrayinc/scopeselect/internal/discovery"
	"github.com/seagrayinc/scopeselect/pkg/models"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

const keyPrefix = "hid:"

// Bus exposes the HID models of a registry to discovery.
type Bus struct {
	manager Manager
	models  *models.Registry
	logger  *slog.Logger

	mu     sync.Mutex
	probed map[string]error
}

func NewBus(m Manager, reg *models.Registry, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		manager: m,
		models:  reg,
		logger:  logger,
		probed:  make(map[string]error),
	}
}

func (b *Bus) Name() string { return "hid" }

// Scan lists supported HID devices. Each path is opened once to catch
// permission problems; the result is kept while the path stays attached.
func (b *Bus) Scan() ([]discovery.Observation, error) {
	infos, err := b.manager.List(b.supported)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	var obs []discovery.Observation
	for _, info := range infos {
		m, ok := b.models.Lookup(info.VendorID, info.ProductID)
		if !ok {
			continue
		}
		// hidapi lists one path per interface; the first one wins
		if _, dup := seen[info.Path]; dup {
			continue
		}
		seen[info.Path] = struct{}{}

		probeErr, cached := b.probed[info.Path]
		if !cached {
			probeErr = b.probe(info)
			b.probed[info.Path] = probeErr
		}

		obs = append(obs, discovery.Observation{
			Key:   Key(info.Path),
			Model: m.Model,
			Err:   probeErr,
		})
	}

	for path := range b.probed {
		if _, ok := seen[path]; !ok {
			delete(b.probed, path)
		}
	}
	return obs, nil
}

func (b *Bus) supported(vid, pid uint16) bool {
	m, ok := b.models.Lookup(vid, pid)
	return ok && m.Model.Transport == models.TransportHID
}

func (b *Bus) probe(info Info) error {
	dev, err := b.manager.Open(info.Path)
	if err != nil {
		b.logger.Warn("hid probe failed", slog.String("path", info.Path), slog.Any("error", err))
		return fmt.Errorf("cannot open device: %w", err)
	}
	_ = dev.Close()
	return nil
}

// Open hands out the device at key.
func (b *Bus) Open(key selectdevice.DeviceID) (selectdevice.Device, error) {
	path, ok := pathOf(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrUnknownDevice, key)
	}

	dev, err := b.manager.Open(path)
	if errors.Is(err, ErrGone) {
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &Handle{id: key, Device: dev}, nil
}

// Key is the device id of a HID path.
func Key(path string) selectdevice.DeviceID {
	return selectdevice.DeviceID(keyPrefix + path)
}

func pathOf(key selectdevice.DeviceID) (string, bool) {
	s := string(key)
	if len(s) <= len(keyPrefix) || s[:len(keyPrefix)] != keyPrefix {
		return "", false
	}
	return s[len(keyPrefix):], true
}

// Handle is an opened HID device handed to the caller.
type Handle struct {
	Device
	id selectdevice.DeviceID
}

func (h *Handle) ID() selectdevice.DeviceID { return h.id }

var _ discovery.Bus = (*Bus)(nil)
