// Package metrics exposes session and firmware upload counters to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

const namespace = "scopeselect"

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ticks_total",
			Help:      "Poll ticks by result",
		},
		[]string{"result"},
	)

	candidates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "candidates",
			Help:      "Devices currently reported by discovery",
		},
	)

	activeReadiness = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active_readiness",
			Help:      "1 for the readiness of the active candidate, 0 otherwise",
		},
		[]string{"readiness"},
	)

	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Finished sessions by outcome",
		},
		[]string{"outcome"},
	)

	firmwareUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "firmware",
			Name:      "uploads_total",
			Help:      "Firmware uploads by model and result",
		},
		[]string{"model", "result"},
	)

	firmwareUploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "firmware",
			Name:      "upload_duration_seconds",
			Help:      "Duration of firmware uploads in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)
)

var readinessLabels = []selectdevice.Readiness{
	selectdevice.NoSelection,
	selectdevice.ReadyToConnect,
	selectdevice.UploadingFirmware,
	selectdevice.ConnectionFailed,
}

func init() {
	prometheus.MustRegister(ticksTotal, candidates, activeReadiness, outcomesTotal, firmwareUploadsTotal, firmwareUploadDuration)
}

// Observer records session activity.
type Observer struct{}

func (Observer) SessionUpdated(s selectdevice.Snapshot) {
	ticksTotal.WithLabelValues(tickLabel(s.Tick)).Inc()
	candidates.Set(float64(len(s.Candidates)))
	for _, r := range readinessLabels {
		v := 0.0
		if r == s.Classification.Readiness {
			v = 1
		}
		activeReadiness.WithLabelValues(r.String()).Set(v)
	}
}

func (Observer) SessionTerminated(r selectdevice.Result) {
	outcomesTotal.WithLabelValues(r.Outcome.Kind.String()).Inc()
}

// FirmwareUpload records a finished upload. Its signature matches
// discovery.UploadHook.
func FirmwareUpload(model string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	firmwareUploadsTotal.WithLabelValues(model, result).Inc()
	firmwareUploadDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

func tickLabel(k selectdevice.TickKind) string {
	switch k {
	case selectdevice.TickNoDevicesFound:
		return "no_devices"
	case selectdevice.TickAutoConfirm:
		return "auto_confirm"
	default:
		return "continue"
	}
}

var _ selectdevice.Observer = Observer{}
