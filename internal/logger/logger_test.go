package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"", "dev", "debug", "prod", "production"} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestNew_DebugLevel(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))

	l, err = New("prod")
	require.NoError(t, err)
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestWith_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("grouping_id", int64(7))

	l.Info("maintained", "deleted", int64(1), "inserted", int64(2))
	l.Warn("skipped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "maintained", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(7), fields["grouping_id"])
	assert.Equal(t, int64(2), fields["inserted"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNop_Discards(t *testing.T) {
	l := Nop()
	l.Error("ignored", "k", "v")
	l.Sync()
}
