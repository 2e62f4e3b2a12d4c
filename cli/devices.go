package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosk-next/kioskd/commands"
	"github.com/kiosk-next/kioskd/config"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices and touchscreen match results",
	Long:  `Lists all input devices visible to the scan and which one would be used as the touchscreen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		response := commands.DevicesCommand(cfg)
		printJson(response)
		if response.Status == "error" {
			return fmt.Errorf("%s", response.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
