// computectl — operate one project's compute nodes directly against the
// backend adapters (spec §4.H), without a running controller.
//
// Usage:
//
//	computectl project create --name lab1
//	computectl project status --project <id>
//	computectl node create --project <id> --name r1 --kind userpc --executable /usr/bin/qemu-system-x86_64
//	computectl node start --project <id> r1
//	computectl link add --project <id> r1 --adapter 0 --nio nio_udp --lport 10001 --rhost 127.0.0.1 --rport 10002
//	computectl console --project <id> r1
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vnetlab/compute/pkg/config"
	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/version"
)

var (
	configPath string
	projectArg string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "computectl",
	Short:             "Operate compute nodes directly against the backend adapters",
	Version:           version.Info(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return corelog.SetLevel("debug")
		}
		return corelog.SetLevel("info")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to compute.yaml (defaults baked in if unset)")
	rootCmd.PersistentFlags().StringVarP(&projectArg, "project", "p", "", "project id (uuid)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newProjectCmd(),
		newNodeCmd(),
		newLinkCmd(),
		newCaptureCmd(),
		newConsoleCmd(),
	)
}

// loadConfig reads configPath, or returns config.Default() if unset.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// requireProject parses --project, required by every subcommand except
// "project create".
func requireProject() (uuid.UUID, error) {
	if projectArg == "" {
		return uuid.UUID{}, fmt.Errorf("computectl: --project is required")
	}
	return uuid.Parse(projectArg)
}
