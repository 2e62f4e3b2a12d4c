package commands

import (
	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/input"
)

// DevicesResponse lists the input devices visible to the touchscreen scan
// and which one the daemon would pick.
type DevicesResponse struct {
	Devices  []input.DeviceInfo `json:"devices"`
	Selected string             `json:"selected,omitempty"`
}

// DevicesCommand exposes the device scan heuristics for troubleshooting.
func DevicesCommand(cfg *config.Config) *CommandResponse {
	opts := cfg.ScanOptions()

	devices, err := input.ListCandidates(opts)
	if err != nil {
		return NewErrorResponse(err)
	}

	resp := DevicesResponse{Devices: devices}
	if path, err := input.FindDevice(opts); err == nil {
		resp.Selected = path
	}
	return NewSuccessResponse(resp)
}
