package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilteringHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(&filteringHandler{underlying: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})})

	logger.With("section", "opt.dce").Debug("kept")
	logger.With("section", "frontend").Debug("dropped")
	logger.Debug("dropped without section")
	logger.With("section", "frontend").Warn("warnings always pass")
	logger.Info("inline section", "section", "irgen")

	out := buf.String()
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "warnings always pass")
	assert.Contains(t, out, "inline section")
	assert.NotContains(t, out, "dropped")
}

func TestSection(t *testing.T) {
	h, ok := Section("opt").Handler().(*filteringHandler)
	require.True(t, ok)
	assert.Equal(t, []string{"opt"}, h.sections)
	assert.True(t, wantedSection(h.sections[0]))

	other, ok := Section("frontend").Handler().(*filteringHandler)
	require.True(t, ok)
	assert.False(t, wantedSection(other.sections[0]))
}
