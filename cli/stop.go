package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kioskd daemon",
	Long:  `Connects to the control server and sends a shutdown command via JSON-RPC. The foreground application keeps running.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := remoteAddrOrDefault()

		if err := daemon.StopService(addr); err != nil {
			return err
		}

		fmt.Println("shutdown command sent successfully")
		return nil
	},
}

// remoteAddrOrDefault resolves the control server address for client
// commands: explicit flag first, then the config file, then the default.
func remoteAddrOrDefault() string {
	if remoteAddr != "" {
		return remoteAddr
	}
	if cfg, err := config.Load(configPath); err == nil {
		return cfg.ListenAddr
	}
	return config.DefaultListenAddr
}

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().StringVar(&remoteAddr, "listen", "", fmt.Sprintf("Address of the daemon to stop (default: %s)", config.DefaultListenAddr))
}
