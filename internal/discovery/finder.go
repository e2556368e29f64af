// Package discovery turns bus scans into the candidate set a selection
// session polls, and runs firmware uploads in the background.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// UploadHook is told about every finished firmware upload.
type UploadHook func(model string, elapsed time.Duration, err error)

type uploadState struct {
	running bool
	err     error
}

type entry struct {
	bus       Bus
	candidate selectdevice.DeviceCandidate
}

// Finder implements selectdevice.Backend on top of one or more buses.
type Finder struct {
	buses  []Bus
	logger *slog.Logger
	hook   UploadHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	uploads map[selectdevice.DeviceID]*uploadState

	// owned by the polling goroutine
	order   []selectdevice.DeviceID
	current map[selectdevice.DeviceID]entry
	seen    map[selectdevice.DeviceID]struct{}
	taken   map[selectdevice.DeviceID]struct{}
	last    []selectdevice.DeviceCandidate
}

type Option func(*Finder)

func WithLogger(l *slog.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithUploadHook installs a callback run after each firmware upload.
func WithUploadHook(h UploadHook) Option {
	return func(f *Finder) {
		f.hook = h
	}
}

func NewFinder(buses []Bus, opts ...Option) *Finder {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Finder{
		buses:   buses,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		uploads: make(map[selectdevice.DeviceID]*uploadState),
		current: make(map[selectdevice.DeviceID]entry),
		seen:    make(map[selectdevice.DeviceID]struct{}),
		taken:   make(map[selectdevice.DeviceID]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close aborts running uploads and waits for them.
func (f *Finder) Close() error {
	f.cancel()
	f.wg.Wait()
	return nil
}

// Refresh scans every bus. Devices keep the position they were first seen
// at; a device that disappears and comes back goes to the end.
func (f *Finder) Refresh() bool {
	present := make(map[selectdevice.DeviceID]entry)
	var arrived []selectdevice.DeviceID

	for _, bus := range f.buses {
		obs, err := bus.Scan()
		if err != nil {
			f.logger.Warn("bus scan failed", slog.String("bus", bus.Name()), slog.Any("error", err))
			continue
		}

		for _, o := range obs {
			if _, ok := f.taken[o.Key]; ok {
				continue
			}
			if _, dup := present[o.Key]; dup {
				f.logger.Warn("duplicate device key", slog.String("bus", bus.Name()), slog.String("device", string(o.Key)))
				continue
			}

			present[o.Key] = entry{bus: bus, candidate: f.candidate(bus, o)}
			if _, ok := f.current[o.Key]; !ok {
				arrived = append(arrived, o.Key)
			}
		}
	}

	order := f.order[:0:0]
	for _, id := range f.order {
		if _, ok := present[id]; ok {
			order = append(order, id)
			continue
		}
		f.logger.Info("device removed", slog.String("device", string(id)))
		f.forgetUpload(id)
	}
	for _, id := range arrived {
		f.logger.Info("device attached", slog.String("device", string(id)), slog.String("model", present[id].candidate.Model))
		f.seen[id] = struct{}{}
		order = append(order, id)
	}

	f.order = order
	f.current = present

	next := make([]selectdevice.DeviceCandidate, 0, len(order))
	for _, id := range order {
		next = append(next, present[id].candidate)
	}

	changed := !slices.Equal(next, f.last)
	f.last = next
	return changed
}

// Candidates returns the snapshot built by the last Refresh.
func (f *Finder) Candidates() []selectdevice.DeviceCandidate {
	out := make([]selectdevice.DeviceCandidate, len(f.last))
	copy(out, f.last)
	return out
}

// TakeDevice opens the device through its bus and stops tracking it.
func (f *Finder) TakeDevice(id selectdevice.DeviceID) (selectdevice.Device, error) {
	if _, ok := f.seen[id]; !ok {
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrUnknownDevice, id)
	}
	e, ok := f.current[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", selectdevice.ErrNotFound, id)
	}

	dev, err := e.bus.Open(id)
	if err != nil {
		if errors.Is(err, selectdevice.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	f.taken[id] = struct{}{}
	delete(f.current, id)
	f.order = slices.DeleteFunc(f.order, func(v selectdevice.DeviceID) bool { return v == id })
	f.forgetUpload(id)
	return dev, nil
}

func (f *Finder) candidate(bus Bus, o Observation) selectdevice.DeviceCandidate {
	c := selectdevice.DeviceCandidate{ID: o.Key}
	if o.Model != nil {
		c.Model = o.Model.Name
	}

	switch {
	case o.Err != nil:
		c.FailureReason = o.Err.Error()

	case o.NeedsFirmware:
		up, ok := bus.(Uploader)
		if !ok || o.Model == nil {
			c.FailureReason = "firmware required but the bus cannot upload it"
			break
		}
		if err := f.ensureUpload(up, o); err != nil {
			c.FailureReason = fmt.Sprintf("firmware upload failed: %v", err)
			break
		}
		c.NeedsFirmware = true

	default:
		c.CanConnect = true
	}

	return c
}

// ensureUpload starts an upload for o unless one ran already. It returns the
// error of a finished failed upload.
func (f *Finder) ensureUpload(up Uploader, o Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.uploads[o.Key]; ok {
		if st.running {
			return nil
		}
		return st.err
	}

	st := &uploadState{running: true}
	f.uploads[o.Key] = st
	model := *o.Model

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		f.logger.Info("uploading firmware", slog.String("device", string(o.Key)), slog.String("model", model.Name), slog.String("firmware", model.Firmware))
		start := time.Now()
		err := up.UploadFirmware(f.ctx, o.Key, &model)
		elapsed := time.Since(start)

		if err != nil {
			f.logger.Warn("firmware upload failed", slog.String("device", string(o.Key)), slog.Any("error", err))
		} else {
			f.logger.Info("firmware uploaded", slog.String("device", string(o.Key)), slog.Duration("elapsed", elapsed))
		}
		f.mu.Lock()
		st.running = false
		st.err = err
		f.mu.Unlock()

		if f.hook != nil {
			f.hook(model.Name, elapsed, err)
		}
	}()

	return nil
}

// forgetUpload drops the upload record of a device that left. An upload still
// running finishes into its own detached record, so the next attach starts
// a fresh one.
func (f *Finder) forgetUpload(id selectdevice.DeviceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, id)
}

var _ selectdevice.Backend = (*Finder)(nil)
