package cli

var (
	verbose    bool
	configPath string

	// for run command
	runListenAddr string
	runDevicePath string

	// for stop/status commands
	remoteAddr string
)
