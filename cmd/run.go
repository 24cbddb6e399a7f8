package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var RunCmd = &cobra.Command{
	Use:          "run ast.json",
	Short:        "Translate a module, build it with the system C++ compiler and run it",
	Long:         "The C++ compiler is taken from $CXX, or c++ when unset. The module must define the entry point function.",
	RunE:         runRun,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
}

var runFlags *compileFlags

func init() {
	runFlags = addCompileFlags(RunCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	tmpFolder, err := os.MkdirTemp("", "py2cpp-run-*")
	if err != nil {
		return err
	}
	defer func(path string) {
		_ = os.RemoveAll(path)
	}(tmpFolder)

	res, err := compileFile(cmd, runFlags, args[0])
	if err != nil {
		return err
	}
	src := filepath.Join(tmpFolder, "main.cpp")
	if err := os.WriteFile(src, []byte(res.Source), 0o644); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}

	cxx := os.Getenv("CXX")
	if cxx == "" {
		cxx = "c++"
	}
	bin := filepath.Join(tmpFolder, "main")
	command := exec.CommandContext(cmd.Context(), cxx, "-std=c++17", "-O2", "-o", bin, src)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("could not run %s: %w", cxx, err)
	}

	command = exec.CommandContext(cmd.Context(), bin)
	command.Stdin = os.Stdin
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	return command.Run()
}
