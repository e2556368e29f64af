// Package fx2 loads firmware into the RAM of a Cypress EZ-USB FX2 that has
// enumerated without it.
package fx2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seagrayinc/scopeselect/internal/ihex"
)

const (
	// bmRequestType for a host-to-device vendor request
	RequestTypeVendorOut = 0x40

	// Anchor firmware load request, handled by the FX2 boot ROM
	RequestFirmwareLoad = 0xA0

	// CPU control and status register; bit 0 holds the 8051 in reset
	CPUCSAddress = 0xE600

	// MaxChunk is the largest payload written per control transfer.
	MaxChunk = 4096
)

var ErrShortWrite = errors.New("short control write")

// ControlDevice issues control transfers. *gousb.Device satisfies it.
type ControlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Loader writes an image into FX2 RAM.
type Loader struct {
	chunk    int
	progress func(written, total int)
	logger   *slog.Logger
}

type Option func(*Loader)

// WithChunkSize caps the bytes per control transfer. Values outside
// (0, MaxChunk] are ignored.
func WithChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 && n <= MaxChunk {
			l.chunk = n
		}
	}
}

// WithProgress reports the bytes written after every chunk.
func WithProgress(fn func(written, total int)) Option {
	return func(l *Loader) {
		l.progress = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		chunk:  MaxChunk,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load holds the CPU in reset, writes every segment of img and releases the
// CPU so the firmware starts. The device usually re-enumerates afterwards
// with its post-firmware IDs.
func (l *Loader) Load(ctx context.Context, dev ControlDevice, img *ihex.Image) error {
	if err := l.setReset(dev, true); err != nil {
		return fmt.Errorf("hold cpu in reset: %w", err)
	}

	total := img.Size()
	written := 0
	for _, c := range img.Chunks(l.chunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.End() > 0x10000 {
			return fmt.Errorf("segment at 0x%X exceeds the 16-bit address space", c.Address)
		}

		if err := l.write(dev, uint16(c.Address), c.Data); err != nil {
			return fmt.Errorf("write 0x%04X: %w", c.Address, err)
		}
		written += len(c.Data)
		if l.progress != nil {
			l.progress(written, total)
		}
	}

	if err := l.setReset(dev, false); err != nil {
		return fmt.Errorf("release cpu reset: %w", err)
	}

	l.logger.Debug("firmware loaded", slog.Int("bytes", written))
	return nil
}

func (l *Loader) setReset(dev ControlDevice, hold bool) error {
	v := byte(0)
	if hold {
		v = 1
	}
	return l.write(dev, CPUCSAddress, []byte{v})
}

func (l *Loader) write(dev ControlDevice, addr uint16, data []byte) error {
	n, err := dev.Control(RequestTypeVendorOut, RequestFirmwareLoad, addr, 0, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(data))
	}
	return nil
}
