package discovery

import (
	"context"

	"github.com/seagrayinc/scopeselect/pkg/models"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// Observation is one supported device seen during a bus scan.
type Observation struct {
	// Key is the physical id, stable while the device stays on its port and
	// unique across buses.
	Key selectdevice.DeviceID
	// Model the device was matched to.
	Model *models.Model
	// NeedsFirmware is set when the device enumerated with its loader ids.
	NeedsFirmware bool
	// Err is a problem found while probing the device, such as missing
	// permissions.
	Err error
}

// Bus enumerates one kind of transport.
type Bus interface {
	Name() string
	// Scan lists supported devices currently attached.
	Scan() ([]Observation, error)
	// Open hands out the device with the given key. It returns
	// selectdevice.ErrNotFound when the device is gone.
	Open(key selectdevice.DeviceID) (selectdevice.Device, error)
}

// Uploader is implemented by buses that can load firmware.
type Uploader interface {
	UploadFirmware(ctx context.Context, key selectdevice.DeviceID, m *models.Model) error
}
