package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/output"
	"github.com/tiroq/voxbox/internal/version"
)

func NewExportDiagCmd(deps *Dependencies) *cobra.Command {
	var dest string
	var logPath string

	cmd := &cobra.Command{
		Use:   "export-diag",
		Short: "Bundle the diagnostic log for a bug report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)
			if logPath == "" {
				logPath = diaglog.DefaultPath()
			}
			diaglog.Version = version.Version
			path, n, err := diaglog.Export(logPath, dest)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no diagnostic log at %s; run %s with %s=true to enable it", logPath, daemonName, diaglog.DebugEnv)
			}
			if err != nil {
				return err
			}
			f.Success(fmt.Sprintf("Wrote: %s (%d lines)", path, n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "Directory to write the bundle into")
	cmd.Flags().StringVar(&logPath, "log", "", "Diagnostic log to export (default $VOXBOX_LOG_PATH or /tmp/voxbox-debug.log)")
	return cmd
}
