package selectdevice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultInterval is the poll cadence of a session.
const DefaultInterval = 1000 * time.Millisecond

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EventKind identifies an event raised by a presentation layer.
type EventKind int

const (
	EventManualConfirm EventKind = iota + 1
	EventDemoRequested
	EventSessionCancelled
	EventSelectCandidate
)

func (k EventKind) String() string {
	switch k {
	case EventManualConfirm:
		return "manual-confirm"
	case EventDemoRequested:
		return "demo-requested"
	case EventSessionCancelled:
		return "session-cancelled"
	case EventSelectCandidate:
		return "select-candidate"
	default:
		return "unknown"
	}
}

// Event is a user action addressed to a session. ID is used by
// EventManualConfirm and EventSelectCandidate.
type Event struct {
	Kind EventKind
	ID   DeviceID
}

func ManualConfirm(id DeviceID) Event   { return Event{Kind: EventManualConfirm, ID: id} }
func DemoRequested() Event              { return Event{Kind: EventDemoRequested} }
func SessionCancelled() Event           { return Event{Kind: EventSessionCancelled} }
func SelectCandidate(id DeviceID) Event { return Event{Kind: EventSelectCandidate, ID: id} }

const eventBuffer = 16

// Option configures a Session.
type Option func(*Session)

// WithInterval sets the poll cadence. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithObserver installs the observer that receives snapshots and the result.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAutoConfirm controls whether a ready first candidate is selected
// without user action. It is enabled by default.
func WithAutoConfirm(enabled bool) Option {
	return func(s *Session) {
		s.autoConfirm = enabled
	}
}

// Session owns one run of the discovery and selection workflow, from Start
// to a single terminal Outcome.
//
// A Session is not safe for concurrent use. All methods except Post, Events,
// Done and ID must be called from the goroutine that drives it.
type Session struct {
	id          string
	backend     Backend
	registry    Registry
	machine     *Machine
	interval    time.Duration
	autoConfirm bool
	observer    Observer
	logger      *slog.Logger
	events      chan Event
	done        chan struct{}

	state     State
	last      TickResult
	result    Result
	startedAt time.Time
	stopTimer func()
}

// New returns an idle session polling backend.
func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		backend:     backend,
		interval:    DefaultInterval,
		autoConfirm: true,
		observer:    noopObserver{},
		logger:      slog.Default(),
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.machine = NewMachine(s.autoConfirm)
	s.logger = s.logger.With(slog.String("session", s.id))
	return s
}

func (s *Session) ID() string              { return s.id }
func (s *Session) State() State            { return s.state }
func (s *Session) Interval() time.Duration { return s.interval }

// Result returns the final result once the session has terminated.
func (s *Session) Result() (Result, bool) {
	return s.result, s.state == StateTerminated
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	active, c := s.machine.Active(&s.registry)
	return Snapshot{
		SessionID:      s.id,
		State:          s.state,
		Candidates:     s.registry.Snapshot(),
		Active:         active,
		Classification: c,
		Tick:           s.last.Kind,
		At:             time.Now(),
	}
}

// Start moves an idle session to polling and runs the first tick right away,
// so a device attached before the session started is seen without waiting a
// full interval.
func (s *Session) Start() error {
	switch s.state {
	case StatePolling:
		return ErrSessionStarted
	case StateTerminated:
		return ErrSessionTerminated
	}

	s.state = StatePolling
	s.startedAt = time.Now()
	s.logger.Info("session started", slog.Duration("interval", s.interval), slog.Bool("auto_confirm", s.autoConfirm))
	return s.Tick()
}

// Tick runs one poll cycle. The registry is only rebuilt when the backend
// reports a change; the selection rules run on every tick. Ticks on a
// terminated session do nothing.
func (s *Session) Tick() error {
	switch s.state {
	case StateIdle:
		return ErrSessionNotStarted
	case StateTerminated:
		return nil
	}

	if s.backend.Refresh() {
		if err := s.registry.Rebuild(s.backend.Candidates()); err != nil {
			return fmt.Errorf("rebuild candidates: %w", err)
		}
		s.logger.Debug("candidates changed", slog.Int("count", s.registry.Len()))
	}

	s.last = s.machine.OnTick(&s.registry)
	s.observer.SessionUpdated(s.Snapshot())

	if s.last.Kind == TickAutoConfirm {
		s.logger.Info("device ready, confirming automatically", slog.String("device", string(s.last.ID)))
		return s.terminate(Selected(s.last.ID))
	}
	return nil
}

// Confirm selects id on behalf of the user. It is rejected unless id is
// currently ready to connect.
func (s *Session) Confirm(id DeviceID) error {
	if err := s.requirePolling(); err != nil {
		return err
	}

	o, err := s.machine.ConfirmManual(&s.registry, id)
	if err != nil {
		s.logger.Warn("manual confirmation rejected", slog.String("device", string(id)), slog.Any("error", err))
		return err
	}
	return s.terminate(o)
}

// Select moves the active candidate to id without confirming it. The next
// tick moves it back to the first candidate.
func (s *Session) Select(id DeviceID) error {
	if err := s.requirePolling(); err != nil {
		return err
	}
	if err := s.machine.Select(&s.registry, id); err != nil {
		return err
	}

	s.observer.SessionUpdated(s.Snapshot())
	return nil
}

// Demo ends the session in device-less mode regardless of candidate state.
func (s *Session) Demo() error {
	if s.state == StateTerminated {
		return ErrSessionTerminated
	}
	return s.terminate(Demo())
}

// Cancel ends the session with nothing chosen.
func (s *Session) Cancel() error {
	if s.state == StateTerminated {
		return ErrSessionTerminated
	}
	return s.terminate(Cancelled())
}

// Post queues an event for the goroutine driving the session. It never
// blocks and reports false when the queue is full.
func (s *Session) Post(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Events returns the queue Post writes to. Callers that drive the session
// themselves read from it and pass each event to Apply.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Apply dispatches an event to the matching session method.
func (s *Session) Apply(ev Event) error {
	s.logger.Debug("event", slog.String("kind", ev.Kind.String()), slog.String("device", string(ev.ID)))
	switch ev.Kind {
	case EventManualConfirm:
		return s.Confirm(ev.ID)
	case EventDemoRequested:
		return s.Demo()
	case EventSessionCancelled:
		return s.Cancel()
	case EventSelectCandidate:
		return s.Select(ev.ID)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Run drives the session until it terminates: it starts an idle session,
// ticks on every interval and applies posted events. Cancelling ctx ends the
// session as Cancelled. Rejected user actions are logged and polling goes on;
// any other error ends the session and is returned with the result.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if s.state == StateIdle {
		if err := s.Start(); err != nil {
			return s.fail(err)
		}
	}
	if s.state == StateTerminated {
		return s.result, nil
	}

	ticker := time.NewTicker(s.interval)
	s.stopTimer = ticker.Stop
	defer ticker.Stop()

	for s.state != StateTerminated {
		select {
		case <-ctx.Done():
			s.logger.Info("session interrupted", slog.Any("reason", context.Cause(ctx)))
			if err := s.Cancel(); err != nil {
				return s.fail(err)
			}

		case <-ticker.C:
			if err := s.Tick(); err != nil {
				return s.fail(err)
			}

		case ev := <-s.events:
			if err := s.Apply(ev); err != nil {
				if IsRejected(err) {
					continue
				}
				return s.fail(err)
			}
		}
	}

	return s.result, nil
}

func (s *Session) requirePolling() error {
	switch s.state {
	case StateIdle:
		return ErrSessionNotStarted
	case StateTerminated:
		return ErrSessionTerminated
	}
	return nil
}

// fail terminates the session as Cancelled, if it is not already over, and
// returns err alongside the result.
func (s *Session) fail(err error) (Result, error) {
	s.logger.Error("session failed", slog.Any("error", err))
	if s.state != StateTerminated {
		_ = s.terminate(Cancelled())
	}
	return s.result, err
}

// terminate is the only way into StateTerminated. The poll timer stops
// first. A Selected outcome takes the device from the backend; a device that
// vanished in the meantime turns the outcome into Cancelled.
func (s *Session) terminate(o Outcome) error {
	s.state = StateTerminated
	close(s.done)
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}

	var (
		dev   Device
		model string
		err   error
	)
	if o.Kind == OutcomeSelected {
		if i := s.registry.Index(o.ID); i >= 0 {
			c, _ := s.registry.At(i)
			model = c.Model
		}

		dev, err = s.backend.TakeDevice(o.ID)
		switch {
		case err == nil:
		case IsNotFound(err):
			s.logger.Warn("selected device vanished before hand-off", slog.String("device", string(o.ID)))
			o, model, err = Cancelled(), "", nil
		default:
			o, model, err = Cancelled(), "", fmt.Errorf("take device %s: %w", o.ID, err)
		}
	}

	s.result = Result{
		SessionID: s.id,
		Outcome:   o,
		Model:     model,
		Device:    dev,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	s.logger.Info("session terminated", slog.String("outcome", o.String()))
	s.observer.SessionTerminated(s.result)
	return err
}
