package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/ipc"
	"github.com/tiroq/voxbox/internal/output"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)
			status, err := ipc.ReadStatus(deps.Config.CacheDir)
			if errors.Is(err, os.ErrNotExist) {
				f.Info(daemonName + " is not running (no status file)")
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading status: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(deps.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			f.Status(status, deps.Now())
			if _, running := daemonRunning(deps); !running {
				f.Warning("status file is stale: " + daemonName + " is not running")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status snapshot")
	return cmd
}
