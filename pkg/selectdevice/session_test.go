package selectdevice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend replays candidate sets. set marks the backend dirty so the
// next Refresh reports a change.
type fakeBackend struct {
	mu        sync.Mutex
	current   []DeviceCandidate
	dirty     bool
	seen      map[DeviceID]bool
	refreshes int
	taken     []DeviceID
	takeErr   error

	// onRefresh, when set, runs before each refresh with the refresh count.
	onRefresh func(n int, b *fakeBackend)
}

func newFakeBackend(cs ...DeviceCandidate) *fakeBackend {
	b := &fakeBackend{seen: map[DeviceID]bool{}}
	b.setLocked(cs)
	return b
}

func (b *fakeBackend) set(cs ...DeviceCandidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(cs)
}

func (b *fakeBackend) setLocked(cs []DeviceCandidate) {
	b.current = cs
	b.dirty = true
	for _, c := range cs {
		b.seen[c.ID] = true
	}
}

func (b *fakeBackend) Refresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if b.onRefresh != nil {
		b.onRefresh(b.refreshes, b)
	}
	changed := b.dirty
	b.dirty = false
	return changed
}

func (b *fakeBackend) Candidates() []DeviceCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeviceCandidate, len(b.current))
	copy(out, b.current)
	return out
}

func (b *fakeBackend) TakeDevice(id DeviceID) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.takeErr != nil {
		return nil, b.takeErr
	}
	for _, c := range b.current {
		if c.ID == id {
			b.taken = append(b.taken, id)
			return fakeDevice{id: id}, nil
		}
	}
	if b.seen[id] {
		return nil, ErrNotFound
	}
	return nil, ErrUnknownDevice
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

type fakeDevice struct{ id DeviceID }

func (d fakeDevice) ID() DeviceID { return d.id }
func (d fakeDevice) Close() error { return nil }

func newTestSession(t *testing.T, b Backend, opts ...Option) (*Session, *MemoryObserver) {
	t.Helper()
	obs := NewMemoryObserver()
	opts = append([]Option{WithObserver(obs)}, opts...)
	return New(b, opts...), obs
}

func mustNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionStartTicksImmediately(t *testing.T) {
	b := newFakeBackend()
	s, obs := newTestSession(t, b)

	if s.State() != StateIdle {
		t.Fatalf("new session state = %v", s.State())
	}
	mustNoError(t, s.Start())

	if b.refreshCount() != 1 {
		t.Fatalf("Start refreshed %d times, want 1", b.refreshCount())
	}
	if len(obs.Snapshots()) != 1 {
		t.Fatalf("Start produced %d snapshots, want 1", len(obs.Snapshots()))
	}
	if err := s.Start(); !errors.Is(err, ErrSessionStarted) {
		t.Fatalf("second Start() error = %v", err)
	}
}

func TestSessionTickBeforeStart(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend())
	if err := s.Tick(); !errors.Is(err, ErrSessionNotStarted) {
		t.Fatalf("Tick() error = %v", err)
	}
	if err := s.Confirm("a"); !errors.Is(err, ErrSessionNotStarted) {
		t.Fatalf("Confirm() error = %v", err)
	}
}

func TestSessionDevicePresentAtStartAutoConfirms(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "usb:1-2", Model: "DSO-6022BE", CanConnect: true})
	s, _ := newTestSession(t, b)

	mustNoError(t, s.Start())

	res, done := s.Result()
	if !done || res.Outcome != Selected("usb:1-2") {
		t.Fatalf("Result() = %+v, %v", res, done)
	}
	if res.Model != "DSO-6022BE" || res.Device == nil || res.Device.ID() != "usb:1-2" {
		t.Fatalf("unexpected hand-off: %+v", res)
	}
}

// Scenario A: registry empty for three ticks.
func TestSessionNoDevicesKeepsPolling(t *testing.T) {
	b := newFakeBackend()
	s, obs := newTestSession(t, b)

	mustNoError(t, s.Start())
	mustNoError(t, s.Tick())
	mustNoError(t, s.Tick())

	snaps := obs.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Tick != TickNoDevicesFound {
			t.Fatalf("tick %d: got %v", i, snap.Tick)
		}
		if snap.Classification.Readiness != NoSelection || snap.Active != -1 {
			t.Fatalf("tick %d: unexpected selection %+v", i, snap)
		}
	}
	if s.State() != StatePolling {
		t.Fatalf("state = %v, want polling", s.State())
	}
}

// Scenario B: firmware upload completes and the device is auto-confirmed.
func TestSessionFirmwareUploadThenAutoConfirm(t *testing.T) {
	b := newFakeBackend()
	s, obs := newTestSession(t, b)
	mustNoError(t, s.Start())

	b.set(DeviceCandidate{ID: "usb:1-4", NeedsFirmware: true})
	mustNoError(t, s.Tick())

	last := obs.Snapshots()[len(obs.Snapshots())-1]
	if last.Classification.Readiness != UploadingFirmware {
		t.Fatalf("classification = %v, want uploading", last.Classification)
	}
	if last.CanConfirm() {
		t.Fatalf("confirmation enabled while uploading")
	}

	b.set(DeviceCandidate{ID: "usb:1-4", CanConnect: true})
	mustNoError(t, s.Tick())

	res, done := s.Result()
	if !done || res.Outcome != Selected("usb:1-4") {
		t.Fatalf("Result() = %+v, %v", res, done)
	}
	if got := obs.Results(); len(got) != 1 {
		t.Fatalf("observer saw %d results, want 1", len(got))
	}
}

func TestSessionTerminatedIsAbsorbing(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", CanConnect: true})
	s, obs := newTestSession(t, b)
	mustNoError(t, s.Start())

	refreshes := b.refreshCount()
	snaps := len(obs.Snapshots())

	b.set(DeviceCandidate{ID: "a", CanConnect: true})
	mustNoError(t, s.Tick())
	mustNoError(t, s.Tick())

	if b.refreshCount() != refreshes {
		t.Fatalf("terminated session kept refreshing")
	}
	if len(obs.Snapshots()) != snaps || len(obs.Results()) != 1 {
		t.Fatalf("terminated session emitted more events")
	}
	if len(b.taken) != 1 {
		t.Fatalf("device taken %d times", len(b.taken))
	}
	for _, err := range []error{s.Confirm("a"), s.Demo(), s.Cancel(), s.Select("a")} {
		if !errors.Is(err, ErrSessionTerminated) {
			t.Fatalf("expected ErrSessionTerminated, got %v", err)
		}
	}
}

// Scenario C: a failed candidate cannot be confirmed.
func TestSessionConfirmFailedCandidateRejected(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", FailureReason: "timeout"})
	s, obs := newTestSession(t, b)
	mustNoError(t, s.Start())

	snap := obs.Snapshots()[0]
	want := Classification{Readiness: ConnectionFailed, Reason: "timeout"}
	if snap.Classification != want {
		t.Fatalf("classification = %v, want %v", snap.Classification, want)
	}

	if err := s.Confirm("a"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Confirm() error = %v, want ErrNotReady", err)
	}
	if s.State() != StatePolling {
		t.Fatalf("state = %v after rejected confirm", s.State())
	}
}

// Scenario D: demo mode with no devices.
func TestSessionDemoWithEmptyRegistry(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend())
	mustNoError(t, s.Start())
	mustNoError(t, s.Demo())

	res, done := s.Result()
	if !done || res.Outcome != Demo() || !res.DemoMode() || res.Device != nil {
		t.Fatalf("Result() = %+v, %v", res, done)
	}
}

func TestSessionDoneClosedOnTermination(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend())
	mustNoError(t, s.Start())

	select {
	case <-s.Done():
		t.Fatalf("Done closed while polling")
	default:
	}

	mustNoError(t, s.Cancel())
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done not closed after Cancel")
	}
}

func TestSessionManualConfirmWithoutAutoConfirm(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", NeedsFirmware: true}, DeviceCandidate{ID: "b", CanConnect: true})
	s, obs := newTestSession(t, b, WithAutoConfirm(false))
	mustNoError(t, s.Start())

	if s.State() != StatePolling {
		t.Fatalf("state = %v", s.State())
	}
	mustNoError(t, s.Select("b"))
	if last := obs.Snapshots()[len(obs.Snapshots())-1]; !last.CanConfirm() {
		t.Fatalf("selecting a ready candidate did not enable confirmation: %+v", last)
	}
	mustNoError(t, s.Confirm("b"))

	res, _ := s.Result()
	if res.Outcome != Selected("b") {
		t.Fatalf("outcome = %v", res.Outcome)
	}
}

func TestSessionStaleHandoffIsCancelled(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", CanConnect: true})
	b.takeErr = ErrNotFound
	s, _ := newTestSession(t, b)

	mustNoError(t, s.Start())

	res, done := s.Result()
	if !done || res.Outcome != Cancelled() || res.Device != nil {
		t.Fatalf("Result() = %+v, %v", res, done)
	}
}

func TestSessionUnknownDeviceIsHardError(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", CanConnect: true})
	b.takeErr = ErrUnknownDevice
	s, _ := newTestSession(t, b)

	err := s.Start()
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("Start() error = %v, want ErrUnknownDevice", err)
	}
	if res, done := s.Result(); !done || res.Outcome != Cancelled() {
		t.Fatalf("Result() = %+v, %v", res, done)
	}
}

func TestSessionRebuildsOnlyOnChange(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", NeedsFirmware: true})
	s, _ := newTestSession(t, b)
	mustNoError(t, s.Start())

	// Candidates change without the backend reporting it.
	b.mu.Lock()
	b.current = []DeviceCandidate{{ID: "a", CanConnect: true}}
	b.mu.Unlock()
	mustNoError(t, s.Tick())

	if s.State() != StatePolling {
		t.Fatalf("registry rebuilt without a reported change")
	}
	if got := s.Snapshot().Candidates; len(got) != 1 || !got[0].NeedsFirmware {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestSessionRejectsInvalidCandidates(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", CanConnect: true, NeedsFirmware: true})
	s, _ := newTestSession(t, b)

	if err := s.Start(); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("Start() error = %v, want ErrInvalidCandidate", err)
	}
}

func TestSessionApplyEvents(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend())
	mustNoError(t, s.Start())

	if err := s.Apply(ManualConfirm("nope")); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Apply(ManualConfirm) error = %v", err)
	}
	if err := s.Apply(Event{Kind: 99}); err == nil {
		t.Fatalf("expected error for unknown event")
	}
	mustNoError(t, s.Apply(SessionCancelled()))

	if res, _ := s.Result(); res.Outcome != Cancelled() {
		t.Fatalf("outcome = %v", res.Outcome)
	}
}

func TestSessionRunAutoConfirm(t *testing.T) {
	b := newFakeBackend()
	b.onRefresh = func(n int, b *fakeBackend) {
		switch n {
		case 2:
			b.setLocked([]DeviceCandidate{{ID: "a", NeedsFirmware: true}})
		case 4:
			b.setLocked([]DeviceCandidate{{ID: "a", CanConnect: true}})
		}
	}
	s, _ := newTestSession(t, b, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.Run(ctx)
	mustNoError(t, err)
	if res.Outcome != Selected("a") {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if b.refreshCount() != 4 {
		t.Fatalf("refreshed %d times, want 4", b.refreshCount())
	}
}

func TestSessionRunContextCancel(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := s.Run(ctx)
	mustNoError(t, err)
	if res.Outcome != Cancelled() {
		t.Fatalf("outcome = %v", res.Outcome)
	}
}

func TestSessionRunPostedEvents(t *testing.T) {
	b := newFakeBackend(DeviceCandidate{ID: "a", FailureReason: "access denied"}, DeviceCandidate{ID: "b", CanConnect: true})
	s, _ := newTestSession(t, b, WithInterval(time.Hour), WithAutoConfirm(false))

	// A rejected confirmation must not end the session.
	if !s.Post(ManualConfirm("a")) || !s.Post(ManualConfirm("b")) {
		t.Fatalf("Post() dropped an event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.Run(ctx)
	mustNoError(t, err)
	if res.Outcome != Selected("b") {
		t.Fatalf("outcome = %v", res.Outcome)
	}
}

func TestSessionPostFullQueue(t *testing.T) {
	s, _ := newTestSession(t, newFakeBackend())
	for i := 0; i < eventBuffer; i++ {
		if !s.Post(DemoRequested()) {
			t.Fatalf("Post() %d dropped", i)
		}
	}
	if s.Post(DemoRequested()) {
		t.Fatalf("Post() accepted an event on a full queue")
	}
}
