package selectdevice

import (
	"sync"
	"time"
)

// Snapshot is what observers see after every state change of a session.
type Snapshot struct {
	SessionID  string
	State      State
	Candidates []DeviceCandidate
	// Active is the index of the active candidate, or -1.
	Active         int
	Classification Classification
	Tick           TickKind
	At             time.Time
}

// ActiveCandidate returns the active candidate, if any.
func (s Snapshot) ActiveCandidate() (DeviceCandidate, bool) {
	if s.Active < 0 || s.Active >= len(s.Candidates) {
		return DeviceCandidate{}, false
	}
	return s.Candidates[s.Active], true
}

// CanConfirm reports whether a manual confirmation would be accepted.
func (s Snapshot) CanConfirm() bool {
	return s.State == StatePolling && s.Classification.Readiness == ReadyToConnect
}

// Observer receives session updates. Calls happen on the goroutine that
// drives the session; implementations must not block and must not call
// back into the session.
type Observer interface {
	SessionUpdated(Snapshot)
	SessionTerminated(Result)
}

type noopObserver struct{}

func (noopObserver) SessionUpdated(Snapshot)  {}
func (noopObserver) SessionTerminated(Result) {}

// MultiObserver fans updates out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) SessionUpdated(s Snapshot) {
	for _, o := range m {
		o.SessionUpdated(s)
	}
}

func (m MultiObserver) SessionTerminated(r Result) {
	for _, o := range m {
		o.SessionTerminated(r)
	}
}

// MemoryObserver records updates in memory for tests.
type MemoryObserver struct {
	mu        sync.Mutex
	snapshots []Snapshot
	results   []Result
}

func NewMemoryObserver() *MemoryObserver { return &MemoryObserver{} }

func (o *MemoryObserver) SessionUpdated(s Snapshot) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, s)
	o.mu.Unlock()
}

func (o *MemoryObserver) SessionTerminated(r Result) {
	o.mu.Lock()
	o.results = append(o.results, r)
	o.mu.Unlock()
}

func (o *MemoryObserver) Snapshots() []Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Snapshot, len(o.snapshots))
	copy(out, o.snapshots)
	return out
}

func (o *MemoryObserver) Results() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Result, len(o.results))
	copy(out, o.results)
	return out
}
