package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/seagrayinc/scopeselect/internal/discovery"
	"github.com/seagrayinc/scopeselect/internal/fx2"
	"github.com/seagrayinc/scopeselect/internal/guidance"
	"github.com/seagrayinc/scopeselect/internal/hid"
	"github.com/seagrayinc/scopeselect/internal/history"
	"github.com/seagrayinc/scopeselect/internal/httpapi"
	"github.com/seagrayinc/scopeselect/internal/libusb"
	"github.com/seagrayinc/scopeselect/internal/logging"
	"github.com/seagrayinc/scopeselect/internal/metrics"
	"github.com/seagrayinc/scopeselect/internal/tui"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

type selectOptions struct {
	headless      bool
	httpAddr      string
	noAutoConfirm bool
	interval      time.Duration
	noHID         bool
	firmwareDir   string
	jsonOut       bool
	noHistory     bool
}

func newSelectCmd(a *app) *cobra.Command {
	var o selectOptions

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show the device selection dialog (default)",
		Example: "  scopeselect\n" +
			"  scopeselect select --headless --http 127.0.0.1:8089\n" +
			"  scopeselect select --no-auto-confirm --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&o.headless, "headless", false, "Run without the dialog; logs only")
	f.StringVar(&o.httpAddr, "http", "", "Serve the control API on this address (overrides config)")
	f.BoolVar(&o.noAutoConfirm, "no-auto-confirm", false, "Wait for an explicit confirmation even when a device is ready")
	f.DurationVar(&o.interval, "interval", 0, "Poll interval (overrides config)")
	f.BoolVar(&o.noHID, "no-hid", false, "Do not look for HID devices")
	f.StringVar(&o.firmwareDir, "firmware-dir", "", "Directory holding firmware images (overrides config)")
	f.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON")
	f.BoolVar(&o.noHistory, "no-history", false, "Do not record the session")
	return cmd
}

// buses opens the discovery buses. A libusb failure is returned as is so
// the caller can show it; a HID failure only disables HID.
func (a *app) buses(firmwareDir string, withHID bool) ([]discovery.Bus, error) {
	fwLogger := logging.For(a.logger, logging.ComponentFirmware)
	loader := fx2.NewLoader(
		fx2.WithLogger(fwLogger),
		fx2.WithProgress(func(written, total int) {
			fwLogger.Debug("upload progress", slog.Int("written", written), slog.Int("total", total))
		}),
	)

	usb, err := libusb.Open(a.registry,
		libusb.WithLogger(logging.For(a.logger, logging.ComponentLibUSB)),
		libusb.WithFirmwareDir(firmwareDir),
		libusb.WithLoader(loader),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, usb)
	buses := []discovery.Bus{usb}

	if withHID {
		mgr, err := hid.NewManager()
		if err != nil {
			a.logger.Warn("hid disabled", slog.Any("error", err))
		} else {
			buses = append(buses, hid.NewBus(mgr, a.registry, logging.For(a.logger, logging.ComponentHID)))
		}
	}
	return buses, nil
}

func runSelect(cmd *cobra.Command, a *app, o selectOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	firmwareDir := a.cfg.FirmwareDir
	if o.firmwareDir != "" {
		firmwareDir = o.firmwareDir
	}
	buses, err := a.buses(firmwareDir, a.cfg.HIDEnabled() && !o.noHID)
	if err != nil {
		if errors.Is(err, selectdevice.ErrBackendInit) {
			fmt.Fprintln(cmd.ErrOrStderr(), guidance.BackendInit(err))
		}
		return err
	}

	finder := discovery.NewFinder(buses,
		discovery.WithLogger(logging.For(a.logger, logging.ComponentDiscovery)),
		discovery.WithUploadHook(metrics.FirmwareUpload),
	)
	defer finder.Close()

	observers := selectdevice.MultiObserver{metrics.Observer{}}
	if !o.noHistory {
		store, err := history.Open(a.cfg.HistoryPath)
		if err != nil {
			a.logger.Warn("session history disabled", slog.Any("error", err))
		} else {
			a.closers = append(a.closers, store)
			observers = append(observers, &history.Recorder{Store: store, Logger: logging.For(a.logger, logging.ComponentHistory)})
		}
	}

	httpAddr := a.cfg.HTTPAddr
	if o.httpAddr != "" {
		httpAddr = o.httpAddr
	}
	var status *httpapi.StatusObserver
	if httpAddr != "" {
		status = httpapi.NewStatusObserver()
		observers = append(observers, status)
	}

	interval := a.cfg.PollInterval()
	if o.interval > 0 {
		interval = o.interval
	}
	session := selectdevice.New(finder,
		selectdevice.WithInterval(interval),
		selectdevice.WithAutoConfirm(a.cfg.AutoConfirmEnabled() && !o.noAutoConfirm),
		selectdevice.WithObserver(observers),
		selectdevice.WithLogger(logging.For(a.logger, logging.ComponentSession)),
	)

	if status != nil {
		httpLogger := logging.For(a.logger, logging.ComponentHTTP)
		mux := httpapi.NewMux(status, session, httpapi.Options{CORSOrigins: a.cfg.CORSOrigins, Logger: httpLogger})
		go func() {
			if err := httpapi.Serve(ctx, httpAddr, mux, httpLogger); err != nil {
				httpLogger.Error("http api stopped", slog.Any("error", err))
			}
		}()
	}

	var res selectdevice.Result
	if o.headless {
		res, err = session.Run(ctx)
	} else {
		guide := guidance.New(a.cfg.UdevRulesPaths)
		res, err = tui.Run(ctx, session, guide, a.registry.Names())
	}
	if res.Device != nil {
		defer res.Device.Close()
	}
	if err != nil {
		return err
	}

	return printResult(out, res, o.jsonOut)
}

type resultView struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	DeviceID  string `json:"device_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Duration  string `json:"duration"`
}

func printResult(w io.Writer, res selectdevice.Result, asJSON bool) error {
	v := resultView{
		SessionID: res.SessionID,
		Outcome:   res.Outcome.Kind.String(),
		DeviceID:  string(res.Outcome.ID),
		Model:     res.Model,
		Duration:  res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	switch res.Outcome.Kind {
	case selectdevice.OutcomeSelected:
		_, err := fmt.Fprintf(w, "selected %s (%s)\n", v.DeviceID, v.Model)
		return err
	case selectdevice.OutcomeDemo:
		_, err := fmt.Fprintln(w, "demo mode")
		return err
	default:
		_, err := fmt.Fprintln(w, "cancelled")
		return err
	}
}
