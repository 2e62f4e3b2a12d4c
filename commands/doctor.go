package commands

import (
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/input"
)

const probeTimeout = 5 * time.Second

// DoctorInfo is the diagnostic report for a kiosk terminal: session
// environment, X server reachability, resolvable target binaries, and the
// input devices visible to the scan.
type DoctorInfo struct {
	KioskdVersion string `json:"kioskd_version"`
	OS            string `json:"os"`
	UID           int    `json:"uid"`
	GID           int    `json:"gid"`

	Display        string `json:"display"`
	XAuthority     string `json:"xauthority"`
	XDGRuntimeDir  string `json:"xdg_runtime_dir"`
	XDGSessionType string `json:"xdg_session_type"`

	XServerOK       bool `json:"x_server_ok"`
	WindowManagerOK bool `json:"window_manager_ok"`

	PrimaryBinary  string `json:"primary_binary,omitempty"`
	FallbackBinary string `json:"fallback_binary,omitempty"`

	ConfigFile   string             `json:"config_file,omitempty"`
	TouchDevices []input.DeviceInfo `json:"touch_devices,omitempty"`
}

// DoctorCommand collects diagnostics for troubleshooting a kiosk that does
// not bring up its foreground application.
func DoctorCommand(version string, cfg *config.Config) *CommandResponse {
	info := DoctorInfo{
		KioskdVersion: version,
		OS:            runtime.GOOS,
		UID:           os.Getuid(),
		GID:           os.Getgid(),

		Display:        os.Getenv("DISPLAY"),
		XAuthority:     os.Getenv("XAUTHORITY"),
		XDGRuntimeDir:  os.Getenv("XDG_RUNTIME_DIR"),
		XDGSessionType: os.Getenv("XDG_SESSION_TYPE"),

		XServerOK:       probeCommand("xdpyinfo"),
		WindowManagerOK: probeCommand("wmctrl", "-l"),
	}

	if cfg == nil {
		cfg = config.Default()
	}

	if len(cfg.Primary.Command) > 0 {
		if path, err := exec.LookPath(cfg.Primary.Command[0]); err == nil {
			info.PrimaryBinary = path
		}
	}
	if len(cfg.Fallback.Command) > 0 {
		if path, err := exec.LookPath(cfg.Fallback.Command[0]); err == nil {
			info.FallbackBinary = path
		}
	}

	if _, err := os.Stat(config.DefaultPath); err == nil {
		info.ConfigFile = config.DefaultPath
	}

	if devices, err := input.ListCandidates(cfg.ScanOptions()); err == nil {
		info.TouchDevices = devices
	}

	return NewSuccessResponse(info)
}

// probeCommand runs a short-lived diagnostic tool and reports whether it
// succeeded. A missing tool counts as a failed probe.
func probeCommand(name string, args ...string) bool {
	if _, err := exec.LookPath(name); err != nil {
		return false
	}

	cmd := exec.Command(name, args...)

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return false
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err == nil
	case <-time.After(probeTimeout):
		_ = cmd.Process.Kill()
		<-done
		return false
	}
}
