package utilities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewIDUniqueWithinBurst(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CIVIC_TEST_INT", "42")
	t.Setenv("CIVIC_TEST_BAD_INT", "x")
	t.Setenv("CIVIC_TEST_DUR", "3s")
	t.Setenv("CIVIC_TEST_FLOAT", "1.5")

	assert.Equal(t, 42, GetEnvInt("CIVIC_TEST_INT", 1))
	assert.Equal(t, 7, GetEnvInt("CIVIC_TEST_BAD_INT", 7))
	assert.Equal(t, 3*time.Second, GetEnvDuration("CIVIC_TEST_DUR", time.Second))
	assert.Equal(t, 1.5, GetEnvFloat("CIVIC_TEST_FLOAT", 0))
	assert.Equal(t, "fallback", GetEnv("CIVIC_TEST_UNSET", "fallback"))
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("bogus"))
}

func TestInitWithRotatingFile(t *testing.T) {
	path := t.TempDir() + "/logs/civic.log"
	lg, err := Init(Config{Level: "info", File: path, MaxAgeDays: 1})
	require.NoError(t, err)
	lg.Info("hello")
	_ = lg.Sync()
}
