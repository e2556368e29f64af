package httpapi

import (
	"sync"
	"time"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// StatusObserver keeps the latest snapshot and result for the API.
type StatusObserver struct {
	mu       sync.RWMutex
	snapshot selectdevice.Snapshot
	result   *selectdevice.Result
	seen     bool
}

func NewStatusObserver() *StatusObserver {
	return &StatusObserver{snapshot: selectdevice.Snapshot{Active: -1}}
}

func (o *StatusObserver) SessionUpdated(s selectdevice.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshot = s
	o.seen = true
}

func (o *StatusObserver) SessionTerminated(r selectdevice.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = &r
	o.snapshot.State = selectdevice.StateTerminated
}

// Latest returns the last snapshot, the result once there is one, and
// whether any snapshot was received.
func (o *StatusObserver) Latest() (selectdevice.Snapshot, *selectdevice.Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot, o.result, o.seen
}

type candidateView struct {
	ID            string `json:"id"`
	Model         string `json:"model,omitempty"`
	CanConnect    bool   `json:"can_connect"`
	NeedsFirmware bool   `json:"needs_firmware"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type statusView struct {
	SessionID  string          `json:"session_id,omitempty"`
	State      string          `json:"state"`
	Candidates []candidateView `json:"candidates"`
	Active     int             `json:"active"`
	Readiness  string          `json:"readiness"`
	Reason     string          `json:"reason,omitempty"`
	CanConfirm bool            `json:"can_confirm"`
	Outcome    string          `json:"outcome,omitempty"`
	Updated    *time.Time      `json:"updated,omitempty"`
}

func newStatusView(s selectdevice.Snapshot, r *selectdevice.Result, seen bool) statusView {
	v := statusView{
		SessionID:  s.SessionID,
		State:      s.State.String(),
		Candidates: make([]candidateView, 0, len(s.Candidates)),
		Active:     s.Active,
		Readiness:  s.Classification.Readiness.String(),
		Reason:     s.Classification.Reason,
		CanConfirm: s.CanConfirm(),
	}
	for _, c := range s.Candidates {
		v.Candidates = append(v.Candidates, candidateView{
			ID:            string(c.ID),
			Model:         c.Model,
			CanConnect:    c.CanConnect,
			NeedsFirmware: c.NeedsFirmware,
			FailureReason: c.FailureReason,
		})
	}
	if seen {
		at := s.At
		v.Updated = &at
	}
	if r != nil {
		v.SessionID = r.SessionID
		v.Outcome = r.Outcome.String()
	}
	return v
}
