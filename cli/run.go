package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosk-next/kioskd/commands"
	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk display arbiter",
	Long:  `Starts gesture detection and application supervision, in the foreground or as a daemon.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if runListenAddr != "" {
			cfg.ListenAddr = runListenAddr
		}
		if runDevicePath != "" {
			cfg.DevicePath = runDevicePath
		}

		// GetBool cannot fail for defined flags
		isDaemon, _ := cmd.Flags().GetBool("daemon")
		if isDaemon && !daemon.IsChild() {
			if _, err := daemon.Daemonize(); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			fmt.Printf("kioskd daemon spawned, control server on %s\n", cfg.ListenAddr)
			return nil
		}

		return commands.RunService(cfg, GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("daemon", "d", false, "Run in daemon mode (background)")
	runCmd.Flags().StringVar(&runListenAddr, "listen", "", "Control server address (e.g., 'localhost:7600')")
	runCmd.Flags().StringVar(&runDevicePath, "device", "", "Touchscreen device path (skips device scan)")
}
