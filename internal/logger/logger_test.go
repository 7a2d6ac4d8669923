package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(zap.NewNop()) })
	return logs
}

func TestLoggerTagsComponentAndOperation(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	New("driver").Info("ab12cd34", "fetched page %d of %s", 3, "acme")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "fetched page 3 of acme", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "driver", entry.ContextMap()["component"])
	assert.Equal(t, "ab12cd34", entry.ContextMap()["op"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)
	l := New("pool")

	l.DebugBg("hidden")
	l.InfoBg("hidden too")
	l.WarnBg("evicted %s", "10.0.0.1:8080")
	l.ErrorBg("no identities")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "xxxxxxxx", logs.All()[0].ContextMap()["op"])
}

func TestLoggerReportsCallingSite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core, zap.AddCaller()))
	t.Cleanup(func() { SetBase(zap.NewNop()) })

	l := New("caller")
	l.Info("ab12cd34", "with id")
	l.InfoBg("background")
	l.LogWithoutID(zapcore.WarnLevel, "background warn")
	l.Log("ab12cd34", zapcore.ErrorLevel, "explicit level")

	require.Equal(t, 4, logs.Len())
	for _, entry := range logs.All() {
		require.True(t, entry.Caller.Defined, entry.Message)
		assert.Equal(t, "logger_test.go", filepath.Base(entry.Caller.File), entry.Message)
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, GenerateID())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestInit(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug", Format: "console"}))
	t.Cleanup(func() { SetBase(zap.NewNop()) })
	New("test").InfoBg("hello")
}
