package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

func TestRollbarLogger_Fields(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := NewRollbarLogger(zap.New(obsCore), core.NewTestConfig())

	usr := user.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	logger.Error("enrolling", errors.New("boom"), map[string]interface{}{"cohort_id": "c1"}, usr)

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "enrolling", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "c1", ctx["cohort_id"])
	assert.Equal(t, "u1", ctx["user_id"])
}

func TestNewZap(t *testing.T) {
	conf := core.NewTestConfig()

	conf.Log.Level = "verbose"
	_, err := NewZap(conf)
	assert.Error(t, err)

	conf.Log.Level = "warn"
	conf.Log.Format = "json"
	zl, err := NewZap(conf)
	require.NoError(t, err)
	assert.False(t, zl.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, zl.Core().Enabled(zapcore.WarnLevel))
}
