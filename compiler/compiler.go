// Package compiler drives a whole module through resolution, SSA construction,
// optimization and emission.
//
// The signature table of the module is built first and is read-only while the
// functions are compiled in parallel, each on its own. A function that fails is
// reported and left out; so is every function that calls one, so the emitted
// translation unit always links.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/backend"
	"github.com/py2cppai/py2cpp/cache"
	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/config"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/resolve"
	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
	"github.com/py2cppai/py2cpp/ir/irgen"
	"github.com/py2cppai/py2cpp/opt"
)

var logger = log.Section("compiler")

// ErrStrict is returned, wrapped, when strict mode turns function failures into a module failure.
var ErrStrict = errors.New("strict mode")

type Result struct {
	// Source is the emitted C++ translation unit, empty when the module failed as a whole
	Source      string
	Diagnostics []diag.Diagnostic
	// Compiled and Failed list function names in declaration order
	Compiled []string
	Failed   []string
	RunID    string
	// IR holds the optimized functions that were compiled
	IR *ir.Module
}

type Compiler struct {
	cfg     config.Config
	advisor advisor.Advisor
	unroll  advisor.UnrollAdvisor
	cache   *cache.Cache
	emitter *backend.Emitter
}

type Option func(*Compiler)

// WithAdvisor consults a for types. When a is also an UnrollAdvisor it is asked about loops too.
// The advisor is only used when the configuration enables it.
func WithAdvisor(a advisor.Advisor) Option {
	return func(c *Compiler) {
		c.advisor = a
		if u, ok := a.(advisor.UnrollAdvisor); ok {
			c.unroll = u
		}
	}
}

// WithCache reuses emitted units across runs.
func WithCache(cc *cache.Cache) Option {
	return func(c *Compiler) { c.cache = cc }
}

func New(cfg config.Config, opts ...Option) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Compiler{cfg: cfg, emitter: backend.NewEmitter()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// outcome is what compiling one function produced. The function failed when errs is set.
type outcome struct {
	f    *ir.Function
	unit *backend.Unit
	errs error
}

// Compile translates m. Function-scoped errors become diagnostics and leave the
// function out of Source, unless strict mode is on, in which case Compile
// returns the diagnostics together with an error wrapping ErrStrict. An
// optimization invariant violation aborts the run with no Result.
func (c *Compiler) Compile(ctx context.Context, m *ast.Module) (*Result, error) {
	return c.run(ctx, m, true)
}

func (c *Compiler) run(ctx context.Context, m *ast.Module, emit bool) (*Result, error) {
	runID := uuid.Must(uuid.NewV7()).String()
	log := logger.With("run", runID, "module", m.Name)
	fallback, err := c.cfg.Fallback()
	if err != nil {
		return nil, err
	}

	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
	}
	sink := diag.NewSink(m.File, names)
	for _, s := range m.Unsupported {
		sink.AddError("", &cerr.UnsupportedConstructError{Range: s.Range, Construct: s.Kind})
	}

	sigs, badSigs := resolve.BuildSignatures(m, fallback)
	resolver := resolve.New(sigs, c.advisor, resolve.Options{
		AIEnabled:     c.cfg.AIEnabled,
		Threshold:     c.cfg.AcceptanceThreshold,
		Timeout:       c.cfg.AdvisorTimeout,
		ContextWindow: c.cfg.ContextWindow,
		Fallback:      fallback,
		RunID:         runID,
	}, sink)
	pipeline := opt.Default(c.cfg, c.unroll, sink, runID)

	workers := c.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]outcome, len(m.Functions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fn := range m.Functions {
		if errs, ok := badSigs[fn.Name]; ok {
			outcomes[i].errs = errs
			continue
		}
		g.Go(func() error {
			f, unit, err := c.function(gctx, fn, resolver, sigs, pipeline, sink, emit)
			if err != nil && (cerr.Fatal(err) || gctx.Err() != nil) {
				return err
			}
			outcomes[i] = outcome{f: f, unit: unit, errs: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("compilation aborted", "error", err)
		return nil, err
	}

	for i, o := range outcomes {
		if o.errs != nil {
			reportErrors(sink, m.Functions[i].Name, o.errs)
		}
	}
	propagateFailures(m, outcomes, sink)

	res := &Result{RunID: runID, IR: &ir.Module{Name: m.Name}}
	var units []*backend.Unit
	for i, o := range outcomes {
		name := m.Functions[i].Name
		if o.errs != nil {
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Compiled = append(res.Compiled, name)
		res.IR.Functions = append(res.IR.Functions, o.f)
		if o.unit != nil {
			units = append(units, o.unit)
		}
	}
	res.Diagnostics = sink.Diagnostics()
	log.Info("module compiled", "compiled", len(res.Compiled), "failed", len(res.Failed), "diagnostics", len(res.Diagnostics))

	if c.cfg.Strict && (len(res.Failed) > 0 || len(m.Unsupported) > 0) {
		return res, fmt.Errorf("%w: %d of %d functions failed to compile", ErrStrict, len(res.Failed), len(m.Functions))
	}
	if emit {
		res.Source = c.emitter.Assemble(moduleLabel(m), units, c.cfg.EntryPoint)
	}
	return res, nil
}

// function compiles one function from its AST down to a C++ unit.
func (c *Compiler) function(
	ctx context.Context,
	fn *ast.FunctionDef,
	resolver *resolve.Resolver,
	sigs *resolve.Signatures,
	pipeline *opt.Pipeline,
	sink *diag.Sink,
	emit bool,
) (*ir.Function, *backend.Unit, error) {
	res, err := resolver.Resolve(ctx, fn)
	if err != nil {
		return nil, nil, err
	}
	f, err := irgen.Build(res, sigs, sink)
	if err != nil {
		return nil, nil, err
	}
	if err := pipeline.Run(ctx, f); err != nil {
		return nil, nil, err
	}
	if !emit {
		return f, nil, nil
	}

	var key string
	if c.cache != nil {
		key = cache.Key(f)
		unit, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("cache read failed", "function", fn.Name, "error", err)
		} else if ok {
			logger.Debug("unit reused", "function", fn.Name)
			return f, unit, nil
		}
	}
	unit, err := c.emitter.EmitFunction(f)
	if err != nil {
		return nil, nil, err
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, unit); err != nil {
			logger.Warn("cache write failed", "function", fn.Name, "error", err)
		}
	}
	return f, unit, nil
}

// Lower stops after optimization and returns the IR of every function that got
// that far, with the diagnostics of the run.
func (c *Compiler) Lower(ctx context.Context, m *ast.Module) (*ir.Module, []diag.Diagnostic, error) {
	res, err := c.run(ctx, m, false)
	if res == nil {
		return nil, nil, err
	}
	return res.IR, res.Diagnostics, err
}

func reportErrors(sink *diag.Sink, function string, err error) {
	var errs *cerr.Errors
	if errors.As(err, &errs) {
		for _, e := range errs.Errors() {
			sink.AddError(function, e)
		}
		return
	}
	sink.AddError(function, err)
}

// propagateFailures fails every compiled function that calls a failed one,
// until no more change. Calls are read from the optimized IR, so a call that
// was optimized away does not count.
func propagateFailures(m *ast.Module, outcomes []outcome, sink *diag.Sink) {
	index := make(map[string]int, len(m.Functions))
	for i, fn := range m.Functions {
		if _, dup := index[fn.Name]; !dup {
			index[fn.Name] = i
		}
	}
	failed := func(name string) bool {
		i, ok := index[name]
		return ok && outcomes[i].errs != nil
	}

	for changed := true; changed; {
		changed = false
		for i, o := range outcomes {
			if o.errs != nil {
				continue
			}
			callee, ok := firstCall(o.f, failed)
			if !ok {
				continue
			}
			fn := m.Functions[i]
			sink.AddError(fn.Name, &cerr.DependencyFailedError{Range: fn.Range, Callee: callee})
			outcomes[i] = outcome{errs: errors.New("dependency failed")}
			changed = true
		}
	}
}

// firstCall returns the first module function called by f, in block order, that matches.
func firstCall(f *ir.Function, match func(string) bool) (string, bool) {
	for _, b := range f.Blocks {
		idx := slices.IndexFunc(b.Instrs, func(i ir.Instr) bool {
			call, ok := i.(*ir.Call)
			return ok && !call.Builtin && match(call.Callee)
		})
		if idx >= 0 {
			return b.Instrs[idx].(*ir.Call).Callee, true
		}
	}
	return "", false
}

func moduleLabel(m *ast.Module) string {
	if m.File != "" {
		return m.File
	}
	return m.Name
}

// LogValue lets a Result be logged as a summary.
func (r *Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run", r.RunID),
		slog.Int("compiled", len(r.Compiled)),
		slog.Int("failed", len(r.Failed)),
		slog.Int("diagnostics", len(r.Diagnostics)),
	)
}
