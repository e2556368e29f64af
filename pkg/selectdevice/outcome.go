package selectdevice

import "time"

// OutcomeKind is how a session ended.
type OutcomeKind int

const (
	OutcomeCancelled OutcomeKind = iota
	OutcomeSelected
	OutcomeDemo
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSelected:
		return "selected"
	case OutcomeDemo:
		return "demo"
	default:
		return "unknown"
	}
}

// Outcome is the single, immutable result of a session. ID is only set for
// OutcomeSelected.
type Outcome struct {
	Kind OutcomeKind
	ID   DeviceID
}

func Selected(id DeviceID) Outcome { return Outcome{Kind: OutcomeSelected, ID: id} }
func Demo() Outcome                { return Outcome{Kind: OutcomeDemo} }
func Cancelled() Outcome           { return Outcome{Kind: OutcomeCancelled} }

func (o Outcome) String() string {
	if o.Kind == OutcomeSelected {
		return o.Kind.String() + "(" + string(o.ID) + ")"
	}
	return o.Kind.String()
}

// Result is what a terminated session hands to its caller. Device is non-nil
// only for OutcomeSelected and is owned by the caller from then on.
type Result struct {
	SessionID string
	Outcome   Outcome
	Model     string
	Device    Device
	StartedAt time.Time
	EndedAt   time.Time
}

// DemoMode reports whether the user chose to continue without a device.
func (r Result) DemoMode() bool {
	return r.Outcome.Kind == OutcomeDemo
}
