package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

type fakePoster struct {
	mu     sync.Mutex
	events []selectdevice.Event
	full   bool
}

func (p *fakePoster) Post(ev selectdevice.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.events = append(p.events, ev)
	return true
}

func pollingSnapshot() selectdevice.Snapshot {
	return selectdevice.Snapshot{
		SessionID: "sess-1",
		State:     selectdevice.StatePolling,
		Candidates: []selectdevice.DeviceCandidate{
			{ID: "usb:1-1", Model: "DSO-6022BE", NeedsFirmware: true},
			{ID: "usb:1-2", Model: "DSO-6022BE", CanConnect: true},
			{ID: "hid:/dev/hidraw0", Model: "UT61E+", CanConnect: true},
		},
		Active:         0,
		Classification: selectdevice.Classification{Readiness: selectdevice.UploadingFirmware},
	}
}

func setup(t *testing.T, opts Options) (*StatusObserver, *fakePoster, http.Handler) {
	t.Helper()
	status := NewStatusObserver()
	poster := &fakePoster{}
	return status, poster, NewMux(status, poster, opts)
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	_, _, h := setup(t, Options{})
	rr := do(h, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestStatus(t *testing.T) {
	status, _, h := setup(t, Options{})
	status.SessionUpdated(pollingSnapshot())

	rr := do(h, http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}

	var v statusView
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.State != "polling" || v.Readiness != "uploading-firmware" || len(v.Candidates) != 3 || v.CanConfirm {
		t.Fatalf("unexpected status: %+v", v)
	}

	status.SessionTerminated(selectdevice.Result{SessionID: "sess-1", Outcome: selectdevice.Demo()})
	rr = do(h, http.MethodGet, "/status")
	if !strings.Contains(rr.Body.String(), `"outcome":"demo"`) || !strings.Contains(rr.Body.String(), `"state":"terminated"`) {
		t.Fatalf("terminated status missing outcome: %s", rr.Body.String())
	}
}

func TestConfirm(t *testing.T) {
	status, poster, h := setup(t, Options{})
	status.SessionUpdated(pollingSnapshot())

	tests := []struct {
		name string
		path string
		want int
	}{
		{"ready device", "/confirm/usb:1-2", http.StatusAccepted},
		{"uploading device", "/confirm/usb:1-1", http.StatusConflict},
		{"unknown device", "/confirm/usb:9-9", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(h, http.MethodPost, tt.path); rr.Code != tt.want {
				t.Fatalf("POST %s = %d, want %d: %s", tt.path, rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if len(poster.events) != 1 || poster.events[0] != selectdevice.ManualConfirm("usb:1-2") {
		t.Fatalf("posted events = %+v", poster.events)
	}
}

func TestDeviceIDsWithSlashes(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
		ev   selectdevice.Event
	}{
		{"confirm raw", "/confirm/hid:/dev/hidraw0", http.StatusAccepted, selectdevice.ManualConfirm("hid:/dev/hidraw0")},
		{"confirm escaped", "/confirm/hid:%2Fdev%2Fhidraw0", http.StatusAccepted, selectdevice.ManualConfirm("hid:/dev/hidraw0")},
		{"select escaped", "/select/hid:%2Fdev%2Fhidraw0", http.StatusAccepted, selectdevice.SelectCandidate("hid:/dev/hidraw0")},
		{"confirm other path", "/confirm/hid:/dev/hidraw1", http.StatusNotFound, selectdevice.Event{}},
		{"confirm empty", "/confirm/", http.StatusNotFound, selectdevice.Event{}},
		{"select empty", "/select/", http.StatusNotFound, selectdevice.Event{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, poster, h := setup(t, Options{})
			status.SessionUpdated(pollingSnapshot())

			if rr := do(h, http.MethodPost, tt.path); rr.Code != tt.want {
				t.Fatalf("POST %s = %d, want %d: %s", tt.path, rr.Code, tt.want, rr.Body.String())
			}
			if tt.want != http.StatusAccepted {
				if len(poster.events) != 0 {
					t.Fatalf("unexpected events %+v", poster.events)
				}
				return
			}
			if len(poster.events) != 1 || poster.events[0] != tt.ev {
				t.Fatalf("posted events = %+v, want %+v", poster.events, tt.ev)
			}
		})
	}
}

func TestDemoCancelSelect(t *testing.T) {
	status, poster, h := setup(t, Options{})
	status.SessionUpdated(pollingSnapshot())

	for _, path := range []string{"/select/usb:1-2", "/demo", "/cancel"} {
		if rr := do(h, http.MethodPost, path); rr.Code != http.StatusAccepted {
			t.Fatalf("POST %s = %d", path, rr.Code)
		}
	}

	want := []selectdevice.Event{
		selectdevice.SelectCandidate("usb:1-2"),
		selectdevice.DemoRequested(),
		selectdevice.SessionCancelled(),
	}
	if len(poster.events) != len(want) {
		t.Fatalf("posted %d events, want %d", len(poster.events), len(want))
	}
	for i := range want {
		if poster.events[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, poster.events[i], want[i])
		}
	}
}

func TestRejectedAfterTermination(t *testing.T) {
	status, poster, h := setup(t, Options{})
	status.SessionUpdated(pollingSnapshot())
	status.SessionTerminated(selectdevice.Result{Outcome: selectdevice.Cancelled()})

	for _, path := range []string{"/confirm/usb:1-2", "/demo", "/cancel"} {
		if rr := do(h, http.MethodPost, path); rr.Code != http.StatusConflict {
			t.Fatalf("POST %s after termination = %d, want 409", path, rr.Code)
		}
	}
	if len(poster.events) != 0 {
		t.Fatalf("events posted to a terminated session: %+v", poster.events)
	}
}

func TestQueueFull(t *testing.T) {
	status, poster, h := setup(t, Options{})
	status.SessionUpdated(pollingSnapshot())
	poster.full = true

	if rr := do(h, http.MethodPost, "/demo"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("POST /demo with full queue = %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	_, _, h := setup(t, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, h := setup(t, Options{})
	do(h, http.MethodGet, "/healthz")

	rr := do(h, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `scopeselect_http_requests_total{method="GET",path="/healthz",status="200"}`) {
		t.Fatalf("request counter missing from /metrics")
	}
}
