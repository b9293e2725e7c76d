package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/output"
	"github.com/tiroq/voxbox/internal/statusws"
)

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes from the daemon (Ctrl+C to stop)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Config.StatusAddr == "" {
				return fmt.Errorf("status server is disabled (status_addr is empty)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, deps, statusws.URL(deps.Config.StatusAddr))
		},
	}
}

func watch(ctx context.Context, deps *Dependencies, wsURL string) error {
	f := output.NewFormatter(deps.Out)
	f.Info("Watching " + wsURL)
	return statusws.Watch(ctx, wsURL, func(ev statusws.StateEvent) {
		f.StateLine(ev.Timestamp.Local(), ev.State, ev.Error)
	})
}
