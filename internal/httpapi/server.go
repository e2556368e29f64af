// Package httpapi exposes a running selection session over HTTP so scripts
// and other tools can watch it and confirm a device.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// Poster queues events for the goroutine driving the session.
// *selectdevice.Session satisfies it.
type Poster interface {
	Post(selectdevice.Event) bool
}

// Options configures NewMux.
type Options struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

type api struct {
	status *StatusObserver
	poster Poster
	logger *slog.Logger
}

func NewMux(status *StatusObserver, poster Poster, opts Options) http.Handler {
	a := &api{status: status, poster: poster, logger: opts.Logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", a.getStatus)
	// ids may contain slashes (hid:/dev/hidraw0), so they take the rest of the path
	r.Post("/confirm/*", a.postConfirm)
	r.Post("/select/*", a.postSelect)
	r.Post("/demo", a.postEvent(selectdevice.DemoRequested()))
	r.Post("/cancel", a.postEvent(selectdevice.SessionCancelled()))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func (a *api) getStatus(w http.ResponseWriter, r *http.Request) {
	snap, res, seen := a.status.Latest()
	writeJSON(w, http.StatusOK, newStatusView(snap, res, seen))
}

// postConfirm checks the request against the latest snapshot so the caller
// learns about obvious rejections right away. The session repeats the
// check when the event arrives.
func (a *api) postConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceParam(r)
	if !ok {
		writeJSONError(w, http.StatusNotFound, selectdevice.ErrNotFound.Error())
		return
	}
	snap, _, _ := a.status.Latest()

	if snap.State == selectdevice.StateTerminated {
		writeJSONError(w, http.StatusConflict, selectdevice.ErrSessionTerminated.Error())
		return
	}
	c, ok := findCandidate(snap, id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, selectdevice.ErrNotFound.Error())
		return
	}
	if cl := selectdevice.Classify(&c); cl.Readiness != selectdevice.ReadyToConnect {
		writeJSONError(w, http.StatusConflict, selectdevice.ErrNotReady.Error()+": "+cl.String())
		return
	}

	a.post(w, selectdevice.ManualConfirm(id))
}

func (a *api) postSelect(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceParam(r)
	snap, _, _ := a.status.Latest()
	if _, found := findCandidate(snap, id); !ok || !found {
		writeJSONError(w, http.StatusNotFound, selectdevice.ErrNotFound.Error())
		return
	}
	a.post(w, selectdevice.SelectCandidate(id))
}

func (a *api) postEvent(ev selectdevice.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if snap, _, _ := a.status.Latest(); snap.State == selectdevice.StateTerminated {
			writeJSONError(w, http.StatusConflict, selectdevice.ErrSessionTerminated.Error())
			return
		}
		a.post(w, ev)
	}
}

func (a *api) post(w http.ResponseWriter, ev selectdevice.Event) {
	if !a.poster.Post(ev) {
		writeJSONError(w, http.StatusServiceUnavailable, "event queue full")
		return
	}
	a.logger.Info("event queued", slog.String("kind", ev.Kind.String()), slog.String("device", string(ev.ID)))
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": ev.Kind.String()})
}

// deviceParam returns the device id from the wildcard part of the path. The
// id may arrive raw or with its slashes escaped as %2F.
func deviceParam(r *http.Request) (selectdevice.DeviceID, bool) {
	raw := chi.URLParam(r, "*")
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		return "", false
	}
	return selectdevice.DeviceID(id), true
}

func findCandidate(s selectdevice.Snapshot, id selectdevice.DeviceID) (selectdevice.DeviceCandidate, bool) {
	for _, c := range s.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return selectdevice.DeviceCandidate{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}

// Serve runs the API on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
