package input

import (
	"errors"
	"fmt"
	"strings"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/kiosk-next/kioskd/utils"
)

// ErrNoDevice is returned when no touchscreen can be found and no fallback
// path is configured.
var ErrNoDevice = errors.New("no touchscreen device found")

// ScanOptions controls how the touchscreen device is located.
type ScanOptions struct {
	// DevicePath, when set, is used directly and no scan is performed.
	DevicePath string
	// Keywords are lowercase substrings that qualify a device by name.
	Keywords []string
	// Exclude are lowercase substrings that disqualify a device by name.
	Exclude []string
	// FallbackPath is used when the scan finds nothing. Optional.
	FallbackPath string
}

// DeviceInfo describes one input device seen during a scan.
type DeviceInfo struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Match bool   `json:"match"`
}

// ListCandidates enumerates input devices and reports which ones match the
// scan options. Used by the devices command and doctor diagnostics.
func ListCandidates(opts ScanOptions) ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("listing input devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		infos = append(infos, DeviceInfo{
			Path:  p.Path,
			Name:  p.Name,
			Match: matchesName(p.Name, opts),
		})
	}
	return infos, nil
}

// FindDevice returns the path of the touchscreen device to use.
func FindDevice(opts ScanOptions) (string, error) {
	if opts.DevicePath != "" {
		return opts.DevicePath, nil
	}

	utils.Verbose("scanning for touchscreen devices (keywords: %v)", opts.Keywords)
	candidates, err := ListCandidates(opts)
	if err != nil {
		utils.Warn("input device scan failed: %v", err)
	} else {
		for _, c := range candidates {
			if c.Match {
				utils.Info("found touchscreen: %s at %s", c.Name, c.Path)
				return c.Path, nil
			}
		}
	}

	if opts.FallbackPath != "" {
		utils.Warn("no touchscreen found, using fallback: %s", opts.FallbackPath)
		return opts.FallbackPath, nil
	}
	return "", ErrNoDevice
}

func matchesName(name string, opts ScanOptions) bool {
	lower := strings.ToLower(name)
	for _, ex := range opts.Exclude {
		if ex != "" && strings.Contains(lower, ex) {
			return false
		}
	}
	for _, kw := range opts.Keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Open locates the touchscreen and returns an EventSource reading from it.
func Open(opts ScanOptions) (EventSource, error) {
	path, err := FindDevice(opts)
	if err != nil {
		return nil, err
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening touch device %s: %w", path, err)
	}

	if name, err := dev.Name(); err == nil {
		utils.Info("opened touchscreen device: %s", name)
	}
	return &evdevSource{dev: dev}, nil
}

type evdevSource struct {
	dev *evdev.InputDevice
}

// NextEvent reads raw evdev events until it sees a BTN_TOUCH key event and
// returns it as a TouchEvent stamped with the read time. All other event
// types (coordinates, sync frames) are filtered here.
func (s *evdevSource) NextEvent() (TouchEvent, error) {
	for {
		ev, err := s.dev.ReadOne()
		if err != nil {
			return TouchEvent{}, fmt.Errorf("reading touch device: %w", err)
		}
		if ev.Type == evdev.EV_KEY && ev.Code == evdev.BTN_TOUCH {
			return TouchEvent{
				Timestamp: time.Now(),
				TouchDown: ev.Value == 1,
			}, nil
		}
	}
}

func (s *evdevSource) Close() error {
	return s.dev.Close()
}
