package cerr

import (
	"fmt"
	"log/slog"
	"strings"
)

// Errors collects every error found while processing one function,
// so that all of them can be reported together.
type Errors struct {
	errs []CompileError
}

func (r *Errors) With(err ...CompileError) *Errors {
	if r == nil {
		return &Errors{errs: err}
	}
	r.errs = append(r.errs, err...)
	return r
}

func (r *Errors) Merge(err *Errors) *Errors {
	if r == nil {
		return err
	}
	if err == nil || len(err.errs) == 0 {
		return r
	}
	return r.With(err.errs...)
}

func (r *Errors) Errors() []CompileError {
	if r == nil {
		return nil
	}
	return r.errs
}

func (r *Errors) HasError() bool {
	if r == nil {
		return false
	}
	return len(r.errs) > 0
}

// First returns the earliest recorded error, or nil.
func (r *Errors) First() CompileError {
	if !r.HasError() {
		return nil
	}
	return r.errs[0]
}

func (r *Errors) LogValue() slog.Value {
	var vals []slog.Attr
	for i, v := range r.Errors() {
		vals = append(vals, slog.Attr{
			Key: fmt.Sprint("e", i),
			Value: slog.GroupValue(
				slog.String("msg", FormatWithCode(v)),
				slog.String("at", v.Pos().String()),
			),
		})
	}
	return slog.GroupValue(vals...)
}

// Error joins every recorded error, one per line, so an *Errors can be returned as an error.
func (r *Errors) Error() string {
	msgs := make([]string, len(r.Errors()))
	for i, e := range r.Errors() {
		msgs[i] = FormatWithCode(e)
	}
	return strings.Join(msgs, "\n")
}

// Err returns r as an error, or nil when nothing was recorded.
func (r *Errors) Err() error {
	if !r.HasError() {
		return nil
	}
	return r
}

// Unwrap exposes the recorded errors to errors.Is and errors.As.
func (r *Errors) Unwrap() []error {
	out := make([]error, len(r.Errors()))
	for i, e := range r.Errors() {
		out[i] = e
	}
	return out
}
