package main

import (
	"os"

	"github.com/tiroq/voxbox/internal/cli"
	"github.com/tiroq/voxbox/internal/output"
)

func main() {
	if err := cli.NewRootCmd(&cli.Dependencies{}).Execute(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
