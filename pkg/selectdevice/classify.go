package selectdevice

// Readiness is the UI-facing readiness of the active candidate.
type Readiness int

const (
	NoSelection Readiness = iota
	ReadyToConnect
	UploadingFirmware
	ConnectionFailed
)

func (r Readiness) String() string {
	switch r {
	case NoSelection:
		return "no-selection"
	case ReadyToConnect:
		return "ready"
	case UploadingFirmware:
		return "uploading-firmware"
	case ConnectionFailed:
		return "connection-failed"
	default:
		return "unknown"
	}
}

// Classification is the result of Classify. Reason is only set for
// ConnectionFailed.
type Classification struct {
	Readiness Readiness
	Reason    string
}

func (c Classification) String() string {
	if c.Readiness == ConnectionFailed && c.Reason != "" {
		return c.Readiness.String() + ": " + c.Reason
	}
	return c.Readiness.String()
}

// Classify maps a candidate to exactly one readiness. A nil candidate means
// nothing is selected.
func Classify(c *DeviceCandidate) Classification {
	switch {
	case c == nil:
		return Classification{Readiness: NoSelection}
	case c.CanConnect:
		return Classification{Readiness: ReadyToConnect}
	case c.NeedsFirmware:
		return Classification{Readiness: UploadingFirmware}
	default:
		return Classification{Readiness: ConnectionFailed, Reason: c.FailureReason}
	}
}
