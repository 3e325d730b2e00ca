package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsoleLoggerWritesModuleAndFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewConsoleLoggerTo(&buf, "UTC", out.LogLevelDebug)
	require.NoError(t, err)

	log := base.WithModule("RuleStoreService").WithFields(out.LogFields{"requestId": "r-1"})
	log.Info("rules.save.applied", out.LogFields{"serial": 2})

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "[RuleStoreService]")
	assert.Contains(t, output, `"event": "rules.save.applied"`)
	assert.Contains(t, output, `"requestId": "r-1"`)
	assert.Contains(t, output, `"serial": 2`)
}

func TestConsoleLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewConsoleLoggerTo(&buf, "UTC", out.LogLevelWarn)
	require.NoError(t, err)

	log.Debug("sync.update.queued", nil)
	log.Info("sync.state.changed", nil)
	assert.Empty(t, buf.String())

	log.Error("sync.command.failed", nil)
	assert.Equal(t, 1, strings.Count(buf.String(), "sync.command.failed"))
}

func TestConsoleLoggerFieldsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewConsoleLoggerTo(&buf, "Invalid/Zone", out.LogLevelDebug)
	require.NoError(t, err, "unknown timezone falls back to UTC")

	_ = base.WithFields(out.LogFields{"child": true})
	base.Info("parent.event", nil)
	assert.NotContains(t, buf.String(), "child")
}

func TestZapLoggerWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core)).
		WithModule("SyncBridgeService").
		WithFields(out.LogFields{"session": "s-1"})

	log.Warn("sync.command.retry", out.LogFields{"attempt": 2})

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "sync.command.retry", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "SyncBridgeService", ctx["module"])
	assert.Equal(t, "s-1", ctx["session"])
	assert.EqualValues(t, 2, ctx["attempt"])
}

func TestZapLoggerRespectsCoreLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLoggerFrom(zap.New(core))

	log.Debug("eventbus.handler.failed", nil)
	log.Info("rules.snapshot.loaded", nil)

	assert.Equal(t, 1, logs.Len())
}

func TestZapLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, zapLevel(out.LogLevelDebug))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(out.LogLevelInfo))
	assert.Equal(t, zapcore.WarnLevel, zapLevel(out.LogLevelWarn))
	assert.Equal(t, zapcore.ErrorLevel, zapLevel(out.LogLevelError))
	assert.Equal(t, zapcore.InfoLevel, zapLevel("verbose"))
}
