package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/py2cppai/py2cpp/cmd"
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "py2cpp [subcommand]",
	Short:        "py2cpp translates a statically typeable subset of Python into C++17",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(cmd.BuildCmd)
	rootCmd.AddCommand(cmd.IRCmd)
	rootCmd.AddCommand(cmd.RunCmd)
}
