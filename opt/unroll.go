package opt

import (
	"context"
	"errors"
	"time"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/config"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/ir"
)

// Unroll annotates loop headers with an unroll factor for the emitter. It never
// duplicates instructions itself.
//
// A range loop with literal bounds and a small body is unrolled by its trip count,
// or by the largest divisor of it that fits MaxFactor. Any other loop is put to
// Advisor, whose answer is only taken above ConfidenceThreshold. Every factor,
// derived or advised, must lie in [2, MaxFactor] and keep factor times body size
// within SizeBudget.
type Unroll struct {
	Config config.UnrollConfig
	// Advisor is consulted for loops without a derived factor, nil disables it
	Advisor advisor.UnrollAdvisor
	Timeout time.Duration

	Sink  *diag.Sink
	RunID string
}

func (*Unroll) Name() string    { return "unroll" }
func (*Unroll) MinLevel() Level { return LevelFull }

func (u *Unroll) Run(ctx context.Context, f *ir.Function) (int, error) {
	dom := ir.Dominators(f)
	n := 0
	for _, b := range f.Blocks {
		l := b.Loop
		if l == nil || l.Unroll > 0 {
			continue
		}
		if trip, known := l.TripCount(); known && trip < 2 {
			continue
		}
		blocks := dom.LoopBlocks(b.ID)
		size := f.InstrCount(blocks...)
		factor, ok := u.derive(l, size)
		if !ok {
			factor, ok = u.advise(ctx, f, l, blocks, size)
		}
		if ok && u.valid(factor, size) {
			l.Unroll = factor
			n++
			logger.Debug("loop annotated", "function", f.Name, "header", b.ID, "factor", factor, "body", size)
		}
	}
	return n, nil
}

func (u *Unroll) derive(l *ir.LoopInfo, size int) (int, bool) {
	trip, known := l.TripCount()
	if !known || size > u.Config.BodyCeiling {
		return 0, false
	}
	if trip <= int64(u.Config.MaxFactor) {
		return int(trip), true
	}
	for d := u.Config.MaxFactor; d >= 2; d-- {
		if trip%int64(d) == 0 {
			return d, true
		}
	}
	return 0, false
}

func (u *Unroll) advise(ctx context.Context, f *ir.Function, l *ir.LoopInfo, blocks []ir.BlockID, size int) (int, bool) {
	if u.Advisor == nil {
		return 0, false
	}
	trip, known := l.TripCount()
	q := advisor.UnrollQuery{
		RequestID: u.RunID,
		Function:  f.Name,
		Loop:      ir.FormatBlocks(f, blocks),
		BodySize:  size,
		TripCount: trip,
		TripKnown: known,
	}
	advice, err := advisor.ConsultUnroll(ctx, u.Advisor, q, u.Timeout)
	if err != nil {
		what := "failed"
		if errors.Is(err, advisor.ErrTimeout) {
			what = "timed out"
		}
		u.report(diag.Warning, f, "unroll advisor %s for the loop at b%d: %v", what, l.Header, err)
		return 0, false
	}
	if advice.Factor < 2 {
		return 0, false
	}
	if !advisor.Accept(advice.Confidence, u.Config.ConfidenceThreshold) {
		u.report(diag.Info, f, "unroll factor %d for the loop at b%d rejected, confidence %.2f is below %.2f",
			advice.Factor, l.Header, advice.Confidence, u.Config.ConfidenceThreshold)
		return 0, false
	}
	if !u.valid(advice.Factor, size) {
		u.report(diag.Info, f, "unroll factor %d for the loop at b%d rejected, it exceeds the size limits", advice.Factor, l.Header)
		return 0, false
	}
	return advice.Factor, true
}

func (u *Unroll) valid(factor, size int) bool {
	return factor >= 2 && factor <= u.Config.MaxFactor && factor*size <= u.Config.SizeBudget
}

func (u *Unroll) report(sev diag.Severity, f *ir.Function, format string, args ...any) {
	if u.Sink == nil {
		return
	}
	u.Sink.Report(sev, f.Name, f.Range.Pos(), format, args...)
}
