package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/backend"
	"github.com/py2cppai/py2cpp/cache"
	"github.com/py2cppai/py2cpp/compiler"
	"github.com/py2cppai/py2cpp/config"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/internal/log"
)

var BuildCmd = &cobra.Command{
	Use:          "build ast.json",
	Short:        "Translate a module's AST dump into one C++17 file",
	RunE:         runBuild,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
}

// compileFlags are shared by every command that runs the compiler.
type compileFlags struct {
	configPath *string
	ai         *bool
	optLevel   *int
	strict     *bool
	cachePath  *string
	logLevel   *int
}

func addCompileFlags(cmd *cobra.Command) *compileFlags {
	return &compileFlags{
		configPath: cmd.Flags().String("config", "", "YAML config file"),
		ai:         cmd.Flags().Bool("ai", false, "consult the type advisor configured under advisor.endpoint"),
		optLevel:   cmd.Flags().IntP("opt", "O", -1, "optimization level 0, 1 or 2 (default from config)"),
		strict:     cmd.Flags().Bool("strict", false, "fail the whole module when any function fails"),
		cachePath:  cmd.Flags().String("cache", "", "SQLite emission cache, overrides cache_path"),
		logLevel:   cmd.Flags().IntP("log-level", "l", int(slog.LevelError), "log level"),
	}
}

var (
	buildOutPath *string
	buildFlags   *compileFlags
)

func init() {
	buildOutPath = BuildCmd.Flags().StringP("out", "o", "", "output path, defaults to the input with a .cpp extension")
	buildFlags = addCompileFlags(BuildCmd)
}

// config loads the config file, if any, and applies the flags the user set on top of it.
func (f *compileFlags) config(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if *f.configPath != "" {
		loaded, err := config.Load(*f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("ai") {
		cfg.AIEnabled = *f.ai
	}
	if cmd.Flags().Changed("opt") {
		cfg.OptLevel = *f.optLevel
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict = *f.strict
	}
	if *f.cachePath != "" {
		cfg.CachePath = *f.cachePath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newCompiler builds a Compiler for cfg. The returned cleanup closes the cache, if one was opened.
func newCompiler(cfg config.Config) (*compiler.Compiler, func(), error) {
	var opts []compiler.Option
	cleanup := func() {}
	if cfg.AIEnabled {
		if cfg.Advisor.Endpoint == "" {
			return nil, nil, errors.New("the type advisor is enabled but advisor.endpoint is not set")
		}
		opts = append(opts, compiler.WithAdvisor(&advisor.HTTPClient{
			Endpoint: cfg.Advisor.Endpoint,
			Model:    cfg.Advisor.Model,
			Client:   &http.Client{},
		}))
	}
	if cfg.CachePath != "" {
		cc, err := cache.Open(cfg.CachePath, backend.Version)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open cache: %w", err)
		}
		cleanup = func() { _ = cc.Close() }
		opts = append(opts, compiler.WithCache(cc))
	}
	c, err := compiler.New(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func loadModule(path string) (*ast.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open AST dump: %w", err)
	}
	defer f.Close()
	m, err := ast.Decode(f, path)
	if err != nil {
		return nil, fmt.Errorf("could not decode AST dump: %w", err)
	}
	return m, nil
}

// compileFile runs the whole compiler over the AST dump at path and prints the diagnostics.
func compileFile(cmd *cobra.Command, flags *compileFlags, path string) (*compiler.Result, error) {
	log.SetLevel(slog.Level(*flags.logLevel))
	cfg, err := flags.config(cmd)
	if err != nil {
		return nil, err
	}
	m, err := loadModule(path)
	if err != nil {
		return nil, err
	}
	c, cleanup, err := newCompiler(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	res, err := c.Compile(cmd.Context(), m)
	if res != nil {
		printDiagnostics(cmd, res.Diagnostics)
	}
	if err != nil {
		return nil, fmt.Errorf("compilation failed: %w", err)
	}
	return res, nil
}

func printDiagnostics(cmd *cobra.Command, ds []diag.Diagnostic) {
	for _, d := range ds {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), d.String())
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	res, err := compileFile(cmd, buildFlags, args[0])
	if err != nil {
		return err
	}

	out := *buildOutPath
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".cpp"
	}
	if err := os.WriteFile(filepath.Clean(out), []byte(res.Source), 0o644); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d function(s) compiled, %d failed\n", out, len(res.Compiled), len(res.Failed))
	return nil
}
