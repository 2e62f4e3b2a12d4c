package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosk-next/kioskd/commands"
	"github.com/kiosk-next/kioskd/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run system diagnostics",
	Long:  `Performs kiosk terminal diagnostics for better troubleshooting`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			cfg = config.Default()
		}

		response := commands.DoctorCommand(GetVersion(), cfg)
		printJson(response)
		if response.Status == "error" {
			return fmt.Errorf("%s", response.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
