package selectdevice

import "fmt"

// TickKind is the decision OnTick took.
type TickKind int

const (
	// TickContinue keeps polling.
	TickContinue TickKind = iota
	// TickNoDevicesFound means the registry was empty.
	TickNoDevicesFound
	// TickAutoConfirm means the first candidate became ready and is selected
	// without user action.
	TickAutoConfirm
)

func (k TickKind) String() string {
	switch k {
	case TickContinue:
		return "continue"
	case TickNoDevicesFound:
		return "no-devices"
	case TickAutoConfirm:
		return "auto-confirm"
	default:
		return "unknown"
	}
}

// TickResult is the outcome of one OnTick evaluation.
type TickResult struct {
	Kind           TickKind
	ID             DeviceID
	Classification Classification
}

// Machine tracks the active candidate and decides when a selection can be
// confirmed. It holds no candidates itself; every call takes the current
// registry.
type Machine struct {
	active      int
	autoConfirm bool
}

// NewMachine returns a machine with nothing selected. With autoConfirm
// disabled OnTick never emits TickAutoConfirm.
func NewMachine(autoConfirm bool) *Machine {
	return &Machine{active: -1, autoConfirm: autoConfirm}
}

// OnTick evaluates a freshly rebuilt registry. A non-empty registry always
// moves the selection to index 0: selection only matters once confirmed, and
// the first available device is the preferred default.
func (m *Machine) OnTick(reg *Registry) TickResult {
	first, ok := reg.At(0)
	if !ok {
		return TickResult{Kind: TickNoDevicesFound}
	}

	m.active = 0
	c := Classify(&first)
	if c.Readiness == ReadyToConnect && m.autoConfirm {
		return TickResult{Kind: TickAutoConfirm, ID: first.ID, Classification: c}
	}
	return TickResult{Kind: TickContinue, ID: first.ID, Classification: c}
}

// Active returns the index and classification of the active candidate. The
// index is -1 and the classification NoSelection when the registry is empty
// or the stored index no longer points into it.
func (m *Machine) Active(reg *Registry) (int, Classification) {
	c, ok := reg.At(m.active)
	if !ok {
		return -1, Classify(nil)
	}
	return m.active, Classify(&c)
}

// Select makes id the active candidate.
func (m *Machine) Select(reg *Registry, id DeviceID) error {
	i := reg.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.active = i
	return nil
}

// ConfirmManual turns an explicit user choice into a Selected outcome. The
// candidate must currently be ReadyToConnect.
func (m *Machine) ConfirmManual(reg *Registry, id DeviceID) (Outcome, error) {
	if reg.Len() == 0 {
		return Outcome{}, ErrNoSelection
	}

	i := reg.Index(id)
	c, ok := reg.At(i)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if cl := Classify(&c); cl.Readiness != ReadyToConnect {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, cl)
	}

	m.active = i
	return Selected(id), nil
}
