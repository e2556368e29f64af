// Package guidance produces the text shown next to the device list.
package guidance

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

const (
	ManualURL = "https://github.com/OpenHantek/OpenHantek6022/blob/master/docs/OpenHantek6022_User_Manual.pdf"
	HelpURL   = "https://github.com/OpenHantek/OpenHantek6022/blob/master/docs/build.md"

	// UploadAdvisory is how long an upload may take before the user should
	// restart.
	UploadAdvisory = "30 s"
)

// Guide renders readiness text for one platform.
type Guide struct {
	GOOS string
	// RulesPaths are the udev rule files checked on linux; the first one is
	// the suggested install location.
	RulesPaths []string

	exists func(string) bool
}

// New returns a guide for the running platform.
func New(rulesPaths []string) *Guide {
	return &Guide{
		GOOS:       runtime.GOOS,
		RulesPaths: rulesPaths,
		exists:     fileExists,
	}
}

// Ready is shown while the active candidate can be confirmed.
func (g *Guide) Ready() string {
	return "The device is ready for use.\nPlease observe the user manual for safe operation: " + ManualURL
}

// Uploading is shown while firmware is being loaded.
func (g *Guide) Uploading() string {
	return "Upload in progress ...\nIf the upload takes more than " + UploadAdvisory + ", please close this window and restart the program!"
}

// Failed is shown for a candidate in the failed state.
func (g *Guide) Failed(reason string) string {
	if reason == "" {
		return "Connection failed!"
	}
	return "Connection failed!\n" + reason
}

// NoDevices is shown while nothing supported is attached.
func (g *Guide) NoDevices() string {
	var b strings.Builder
	b.WriteString("Searching for compatible devices ...\n")
	b.WriteString("Don't forget to switch your device into oscilloscope mode if it has multiple modes.\n")

	switch g.GOOS {
	case "windows":
		b.WriteString("Please make sure you have installed the windows usb driver correctly.\n")
	case "linux":
		if len(g.RulesPaths) > 0 && !g.RulesInstalled() {
			fmt.Fprintf(&b, "Please make sure you have copied the udev rules file to %s for correct USB access permissions.\n", g.RulesPaths[0])
		}
	}

	b.WriteString("Visit the build and run instructions for help: " + HelpURL + "\n")
	b.WriteString("Even without a device you can explore the program's function. Just choose Demo Mode.")
	return b.String()
}

// RulesInstalled reports whether any of the udev rule files exists.
func (g *Guide) RulesInstalled() bool {
	exists := g.exists
	if exists == nil {
		exists = fileExists
	}
	for _, p := range g.RulesPaths {
		if exists(p) {
			return true
		}
	}
	return false
}

// For returns the text matching a session snapshot.
func (g *Guide) For(s selectdevice.Snapshot) string {
	if len(s.Candidates) == 0 {
		return g.NoDevices()
	}

	switch s.Classification.Readiness {
	case selectdevice.ReadyToConnect:
		return g.Ready()
	case selectdevice.UploadingFirmware:
		return g.Uploading()
	case selectdevice.ConnectionFailed:
		return g.Failed(s.Classification.Reason)
	default:
		return g.NoDevices()
	}
}

// BackendInit is shown instead of the device list when USB could not be
// initialised.
func BackendInit(err error) string {
	msg := err.Error()
	if errors.Is(err, selectdevice.ErrBackendInit) {
		msg = strings.TrimPrefix(msg, selectdevice.ErrBackendInit.Error()+": ")
	}
	return "Can't initialize USB: " + msg
}

// SupportedDevices is the line listing the supported models.
func SupportedDevices(names []string) string {
	return "Supported devices: " + strings.Join(names, ", ")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
