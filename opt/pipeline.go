// Package opt runs the optimization passes over SSA functions.
//
// Passes run in a fixed order: constant folding, dead code elimination, then
// loop-unroll annotation. The function is verified on entry to every pass; a
// malformed function is a compiler defect and stops the whole run.
package opt

import (
	"context"
	"fmt"
	"time"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/config"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
)

var logger = log.Section("opt")

type Level int

const (
	// LevelNone runs no pass at all
	LevelNone Level = iota
	// LevelBasic folds constants and removes dead code
	LevelBasic
	// LevelFull adds loop-unroll annotation
	LevelFull
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "O0"
	case LevelBasic:
		return "O1"
	case LevelFull:
		return "O2"
	}
	return fmt.Sprintf("O%d", int(l))
}

// Pass is one function-level transformation.
type Pass interface {
	Name() string
	// MinLevel is the lowest level the pass runs at
	MinLevel() Level
	// Run rewrites f in place and returns how many rewrites it made
	Run(ctx context.Context, f *ir.Function) (int, error)
}

// Pipeline is safe for concurrent use on distinct functions.
type Pipeline struct {
	passes []Pass
	level  Level
}

func NewPipeline(level Level, passes ...Pass) *Pipeline {
	return &Pipeline{passes: passes, level: level}
}

// Default builds the standard pass list from cfg. unroll may be nil, in which
// case loops without a statically derived factor are left alone.
func Default(cfg config.Config, unroll advisor.UnrollAdvisor, sink *diag.Sink, runID string) *Pipeline {
	u := &Unroll{
		Config:  cfg.Unroll,
		Timeout: cfg.AdvisorTimeout,
		Sink:    sink,
		RunID:   runID,
	}
	if cfg.AIEnabled {
		u.Advisor = unroll
	}
	return NewPipeline(Level(cfg.OptLevel), ConstFold{}, DCE{}, u)
}

// Run applies every pass enabled at the pipeline's level to f.
// Errors other than invariant violations come from the passes themselves.
func (p *Pipeline) Run(ctx context.Context, f *ir.Function) error {
	log := logger.With("function", f.Name, "level", p.level)
	for _, pass := range p.passes {
		if p.level < pass.MinLevel() {
			continue
		}
		if err := ir.Verify(f); err != nil {
			return cerr.NewInvariantViolation(pass.Name(), f.Name, "%v", err)
		}
		start := time.Now()
		n, err := pass.Run(ctx, f)
		if err != nil {
			return fmt.Errorf("pass %s on %s: %w", pass.Name(), f.Name, err)
		}
		log.Debug("pass done", "pass", pass.Name(), "rewrites", n, "took", time.Since(start))
	}
	return nil
}
