package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosk-next/kioskd/config"
	"github.com/kiosk-next/kioskd/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's status",
	Long:  `Queries the control server for the current supervision state.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := daemon.QueryStatus(remoteAddrOrDefault())
		if err != nil {
			return err
		}

		var status interface{}
		if err := json.Unmarshal(result, &status); err != nil {
			return fmt.Errorf("unexpected status payload: %w", err)
		}
		printJson(status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&remoteAddr, "listen", "", fmt.Sprintf("Address of the daemon to query (default: %s)", config.DefaultListenAddr))
}
