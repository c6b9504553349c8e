package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createRunCommand(flags),
		createCheckCommand(flags),
		createNotifyTestCommand(flags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "minermon",
		Short: "Watchdog that keeps a crypto miner running and productive",
		Long: `MinerMon supervises a single miner executable. It restarts the miner when it
stops unexpectedly or when the pool stops receiving shares, and emails the operator
whenever it acts.

Examples:
  minermon run --config minermon.toml
  minermon check --config minermon.toml
  minermon notify-test --config minermon.toml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "minermon.toml", "path to config file (TOML, YAML or JSON)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "MinerMon %s\n", version)
		},
	}
}
