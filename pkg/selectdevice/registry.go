package selectdevice

import "fmt"

// Registry is the ordered view over the backend's current candidates. It is
// replaced wholesale by Rebuild and never patched in place, so readers always
// see one consistent snapshot. Index 0 is the auto-select target.
type Registry struct {
	candidates []DeviceCandidate
}

// Rebuild replaces the registry contents with a copy of cs, keeping the
// backend's order. The registry is left untouched when any candidate is
// invalid or an id repeats.
func (r *Registry) Rebuild(cs []DeviceCandidate) error {
	next := make([]DeviceCandidate, 0, len(cs))
	seen := make(map[DeviceID]struct{}, len(cs))
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidCandidate, c.ID)
		}
		seen[c.ID] = struct{}{}
		next = append(next, c)
	}

	r.candidates = next
	return nil
}

func (r *Registry) Len() int {
	return len(r.candidates)
}

// At returns the candidate at index i.
func (r *Registry) At(i int) (DeviceCandidate, bool) {
	if i < 0 || i >= len(r.candidates) {
		return DeviceCandidate{}, false
	}
	return r.candidates[i], true
}

// Index returns the position of id, or -1.
func (r *Registry) Index(id DeviceID) int {
	for i, c := range r.candidates {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the candidates.
func (r *Registry) Snapshot() []DeviceCandidate {
	out := make([]DeviceCandidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}
