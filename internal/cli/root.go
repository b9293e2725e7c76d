package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/config"
	"github.com/tiroq/voxbox/internal/version"
)

const binaryName = "voxbox-ctl"

type Dependencies struct {
	Config *config.Config
	Out    io.Writer
	Now    func() time.Time
}

// NewRootCmd builds the command tree. When deps.Config is nil the config is
// loaded from --config (or the default location) before any subcommand runs.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	var configPath string
	rootCmd := &cobra.Command{
		Use:           binaryName,
		Short:         "Control the voxbox recorder daemon",
		Long:          "Press the voxbox button, reset the recording, and inspect the voxbox-core daemon.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if deps.Config != nil {
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			deps.Config = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.toml")
	rootCmd.SetOut(deps.Out)

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full(binaryName) + "\n")

	rootCmd.AddCommand(NewPressCmd(deps))
	rootCmd.AddCommand(NewResetCmd(deps))
	rootCmd.AddCommand(NewQuitCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewExportDiagCmd(deps))
	rootCmd.AddCommand(NewVersionCmd(deps))

	return rootCmd
}

func NewVersionCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Full(binaryName))
		},
	}
}
