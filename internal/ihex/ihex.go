// Package ihex reads Intel HEX firmware images into load-ready segments.
package ihex

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

// ErrInvalid wraps every parse failure. The message carries the line.
var ErrInvalid = errors.New("invalid intel hex image")

// Segment is a contiguous block of image bytes.
type Segment struct {
	Address uint32
	Data    []byte
}

// End is the address just past the segment.
func (s Segment) End() uint32 { return s.Address + uint32(len(s.Data)) }

// Image is a parsed firmware image. Segments are sorted by address and
// never adjacent.
type Image struct {
	Segments []Segment
}

// Size is the number of data bytes in the image.
func (img *Image) Size() int {
	var n int
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Chunks splits every segment into pieces of at most size bytes, keeping
// their load addresses.
func (img *Image) Chunks(size int) []Segment {
	if size <= 0 {
		size = 1
	}

	var out []Segment
	for _, s := range img.Segments {
		for off := 0; off < len(s.Data); off += size {
			end := min(off+size, len(s.Data))
			out = append(out, Segment{Address: s.Address + uint32(off), Data: s.Data[off:end]})
		}
	}
	return out
}

// Parse reads an image from r. Checksums, record lengths and the end of
// file record are verified; start address records are ignored.
func Parse(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	segs := mem.GetDataSegments()
	img := &Image{Segments: make([]Segment, len(segs))}
	for i, s := range segs {
		img.Segments[i] = Segment{Address: s.Address, Data: s.Data}
	}
	return img, nil
}

// ParseFile reads an image from disk.
func ParseFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
