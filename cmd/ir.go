package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
)

var IRCmd = &cobra.Command{
	Use:          "ir ast.json",
	Short:        "Print the optimized SSA of a module",
	RunE:         runIR,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
}

var irFlags *compileFlags

func init() {
	irFlags = addCompileFlags(IRCmd)
}

func runIR(cmd *cobra.Command, args []string) error {
	log.SetLevel(slog.Level(*irFlags.logLevel))
	cfg, err := irFlags.config(cmd)
	if err != nil {
		return err
	}
	m, err := loadModule(args[0])
	if err != nil {
		return err
	}
	c, cleanup, err := newCompiler(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	mod, diags, err := c.Lower(cmd.Context(), m)
	printDiagnostics(cmd, diags)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), ir.FormatModule(mod))
	return err
}
