package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/kiosk-next/kioskd/input"
	"github.com/kiosk-next/kioskd/launcher"
	"github.com/kiosk-next/kioskd/utils"
)

// DefaultPath is where the daemon looks for its configuration when no
// --config flag is given.
const DefaultPath = "/etc/kioskd/kioskd.ini"

const (
	DefaultTargetTaps    = 10
	DefaultWindow        = 10 * time.Second
	DefaultListenAddr    = "localhost:7600"
	DefaultRestartDelay  = 2 * time.Second
	DefaultRetryInitial  = 10 * time.Second
	DefaultRetryMax      = 60 * time.Second
	DefaultFallbackEvent = "/dev/input/event8"
)

// Config is the full daemon configuration: gesture parameters, device scan
// heuristics, control server address, and the two launch specs.
type Config struct {
	TargetTaps int
	Window     time.Duration

	DevicePath         string
	DeviceKeywords     []string
	DeviceExclude      []string
	DeviceFallbackPath string

	ListenAddr        string
	StartupGrace      time.Duration
	RestartDelay      time.Duration
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	Primary  launcher.Spec
	Fallback launcher.Spec
}

// Default returns the compiled-in configuration for a stock kiosk terminal.
func Default() *Config {
	return &Config{
		TargetTaps: DefaultTargetTaps,
		Window:     DefaultWindow,

		DeviceKeywords:     []string{"ilitek", "touchscreen"},
		DeviceExclude:      []string{"mouse"},
		DeviceFallbackPath: DefaultFallbackEvent,

		ListenAddr:        DefaultListenAddr,
		StartupGrace:      launcher.DefaultStartupGrace,
		RestartDelay:      DefaultRestartDelay,
		RetryInitialDelay: DefaultRetryInitial,
		RetryMaxDelay:     DefaultRetryMax,

		Primary: launcher.Spec{
			AppName: "network-settings",
			Command: []string{"nm-connection-editor"},
			User:    "root",
		},
		Fallback: launcher.Spec{
			AppName: "kiosk-browser",
			Command: []string{"chromium", "--kiosk", "--hide-crash-restore-bubble"},
			User:    "kiosk",
		},
	}
}

// Load reads the INI file at path on top of the defaults. An empty path
// falls back to DefaultPath when that file exists, otherwise the defaults
// are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return cfg, nil
		}
		path = DefaultPath
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	utils.Verbose("loaded configuration from %s", path)

	g := f.Section("gesture")
	cfg.TargetTaps = g.Key("target_taps").MustInt(cfg.TargetTaps)
	cfg.Window = g.Key("window").MustDuration(cfg.Window)

	d := f.Section("device")
	if d.HasKey("path") {
		cfg.DevicePath = d.Key("path").String()
	}
	if d.HasKey("keywords") {
		cfg.DeviceKeywords = splitList(d.Key("keywords").String())
	}
	if d.HasKey("exclude") {
		cfg.DeviceExclude = splitList(d.Key("exclude").String())
	}
	if d.HasKey("fallback_path") {
		cfg.DeviceFallbackPath = d.Key("fallback_path").String()
	}

	s := f.Section("service")
	if s.HasKey("listen") {
		cfg.ListenAddr = s.Key("listen").String()
	}
	cfg.StartupGrace = s.Key("startup_grace").MustDuration(cfg.StartupGrace)
	cfg.RestartDelay = s.Key("restart_delay").MustDuration(cfg.RestartDelay)
	cfg.RetryInitialDelay = s.Key("retry_initial_delay").MustDuration(cfg.RetryInitialDelay)
	cfg.RetryMaxDelay = s.Key("retry_max_delay").MustDuration(cfg.RetryMaxDelay)

	loadSpec(f, "primary", &cfg.Primary)
	loadSpec(f, "fallback", &cfg.Fallback)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func loadSpec(f *ini.File, section string, spec *launcher.Spec) {
	sec := f.Section(section)
	if v := sec.Key("name").String(); v != "" {
		spec.AppName = v
	}
	if v := sec.Key("command").String(); v != "" {
		spec.Command = strings.Fields(v)
	}
	if sec.HasKey("user") {
		spec.User = sec.Key("user").String()
	}
	if env := f.Section(section + ".env").KeysHash(); len(env) > 0 {
		spec.Env = env
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.TargetTaps <= 0 {
		return fmt.Errorf("target_taps must be positive, got %d", c.TargetTaps)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.RestartDelay < 0 || c.RetryInitialDelay < 0 || c.RetryMaxDelay < 0 || c.StartupGrace < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if err := c.Primary.Validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	return nil
}

// ScanOptions builds the device scan options for the input package.
func (c *Config) ScanOptions() input.ScanOptions {
	return input.ScanOptions{
		DevicePath:   c.DevicePath,
		Keywords:     c.DeviceKeywords,
		Exclude:      c.DeviceExclude,
		FallbackPath: c.DeviceFallbackPath,
	}
}
