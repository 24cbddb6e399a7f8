package resolve

import (
	"context"
	"strings"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

// contextWindow renders the statements around every use of name, at most window
// statements either side. Compound statements contribute their header line only.
func contextWindow(fn *ast.FunctionDef, name string, window int) string {
	flat := ast.Flatten(fn.Body)
	keep := make([]bool, len(flat))
	for i, s := range flat {
		if !ast.Mentions(s, name) {
			continue
		}
		for j := max(0, i-window); j <= min(len(flat)-1, i+window); j++ {
			keep[j] = true
		}
	}

	lines := []string{ast.FormatFunction(&ast.FunctionDef{Name: fn.Name, Params: fn.Params, Returns: fn.Returns})}
	gap := false
	for i, s := range flat {
		if !keep[i] {
			gap = true
			continue
		}
		if gap && len(lines) > 1 {
			lines = append(lines, "    ...")
		}
		gap = false
		lines = append(lines, "    "+strings.TrimSpace(ast.FormatStmt(s, 0)[0]))
	}
	return strings.Join(lines, "\n")
}

// pending is one binding the advisor is asked about.
type pending struct {
	name   string
	shapes []Shape
}

func (r *Resolver) request(fn *ast.FunctionDef, targets []pending) advisor.Request {
	req := advisor.Request{RequestID: r.opts.RunID, Function: fn.Name}
	for _, p := range targets {
		usage := make([]string, len(p.shapes))
		for i, s := range p.shapes {
			usage[i] = string(s)
		}
		req.Items = append(req.Items, advisor.Item{
			Context: contextWindow(fn, p.name, r.opts.ContextWindow),
			Target:  p.name,
			Usage:   usage,
		})
	}
	return req
}

// verdict is the scored outcome of one suggestion.
type verdict struct {
	suggested types.Type
	merged    types.Type
	score     float64
	accepted  bool
}

// judge scores a suggestion against the statically known partial type of the binding.
func (r *Resolver) judge(s advisor.Suggestion, partial types.Type, shapes []Shape) verdict {
	if s.Error != "" {
		return verdict{}
	}
	suggested, err := types.Parse(s.SuggestedType)
	if err != nil {
		return verdict{score: advisor.ConfidenceScore(advisor.Signals{Context: s.Confidence})}
	}
	merged := types.Merge(partial, suggested)
	consistency := 0.0
	switch {
	case types.IsPrim(suggested, types.None):
	case types.IsResolved(merged):
		consistency = 1
	case !types.IsConflict(merged):
		consistency = 0.5
	}
	score := advisor.ConfidenceScore(advisor.Signals{
		Context:     s.Confidence,
		Usage:       UsageFit(suggested, shapes),
		Consistency: consistency,
	})
	return verdict{
		suggested: suggested,
		merged:    merged,
		score:     score,
		accepted:  consistency > 0 && advisor.Accept(score, r.opts.Threshold),
	}
}

// consult runs the single advisor round for fn and seeds every accepted suggestion.
func (r *Resolver) consult(ctx context.Context, in *inference, targets []pending) {
	fn := in.fn
	req := r.request(fn, targets)
	log := r.log.With("function", fn.Name, "items", len(req.Items))
	log.Debug("consulting type advisor")

	suggestions, err := advisor.Consult(ctx, r.advisor, req, r.opts.Timeout)
	if err != nil {
		log.Warn("type advisor failed", "err", err)
		r.sink.Report(diag.Warning, fn.Name, fn.Pos(), "type advisor failed for %d binding(s), using fallback: %v", len(targets), err)
		return
	}

	answers := advisor.ByIdentifier(suggestions)
	for _, p := range targets {
		s, ok := answers[p.name]
		if !ok {
			r.sink.Report(diag.Info, fn.Name, fn.Pos(), "type advisor gave no answer for '%s'", p.name)
			continue
		}
		if s.Error != "" {
			r.sink.Report(diag.Info, fn.Name, fn.Pos(), "type advisor could not type '%s': %s", p.name, s.Error)
			continue
		}
		v := r.judge(s, in.bindings[p.name], p.shapes)
		if !v.accepted {
			log.Debug("suggestion rejected", "binding", p.name, "type", s.SuggestedType, "score", v.score)
			r.sink.Report(diag.Info, fn.Name, fn.Pos(), "rejected suggestion '%s' for '%s' (score %.2f, threshold %.2f)",
				s.SuggestedType, p.name, v.score, r.opts.Threshold)
			continue
		}
		log.Debug("suggestion accepted", "binding", p.name, "type", v.merged, "score", v.score)
		in.seed(p.name, v.merged, types.FromAdvisor)
	}
}
