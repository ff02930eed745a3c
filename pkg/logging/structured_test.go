package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDomainHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).WithRunID("run-1")
	ctx := context.Background()

	l.LogTestResult(ctx, "m", "e", "suppress", true, false, 10*time.Millisecond)
	l.LogResidency(ctx, "load", "m", 4096, errors.New("boom"))
	l.LogExclusion(ctx, "m", "timeout")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Test completed", entries[0].Message)
	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "Main model excluded", entries[2].Message)
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	l.Info("discarded", "k", 1)
	assert.NoError(t, l.Sync())
}
