package logging

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesFileAndHistory(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{LogDir: dir, Level: LevelDebug, MaxHistory: 3})
	require.NoError(t, err)
	defer l.Close()

	l.Info("avatar", "model loaded", map[string]interface{}{"bones": 42, "path": "x.glb"})
	l.Error("avatar", "load failed", errors.New("boom"), nil)

	hist := l.GetHistory(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "bones=42, path=x.glb", hist[1].Data)
	assert.Equal(t, "error", hist[2].Level)
	assert.Equal(t, "error=boom", hist[2].Data)

	data, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "model loaded")
	assert.Contains(t, string(data), `"component":"avatar"`)
}

func TestLogger_LevelFiltersHistory(t *testing.T) {
	l, err := New(&Config{Level: LevelWarn, MaxHistory: 10})
	require.NoError(t, err)

	l.Debug("x", "hidden", nil)
	l.Info("x", "hidden", nil)
	l.Warn("x", "shown", nil)

	hist := l.GetHistory(10)
	require.Len(t, hist, 1)
	assert.Equal(t, "shown", hist[0].Message)
	assert.Empty(t, l.GetLogPath())
}

func TestLogger_HistoryBounded(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 2})
	require.NoError(t, err)

	for _, msg := range []string{"a", "b", "c"} {
		l.Info("x", msg, nil)
	}
	hist := l.GetHistory(5)
	require.Len(t, hist, 2)
	assert.Equal(t, "b", hist[0].Message)
	assert.Equal(t, "c", hist[1].Message)
}

func TestLogger_ErrorJoinsData(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 5})
	require.NoError(t, err)

	l.Error("avatar", "load failed", errors.New("boom"), map[string]interface{}{"a": 1})
	hist := l.GetHistory(1)
	require.Len(t, hist, 1)
	assert.Equal(t, "a=1, error=boom", hist[0].Data)
}

func TestComponent_RecordsHistory(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 5})
	require.NoError(t, err)

	zl := l.Component("avatar")
	zl.Debug().Msg("filtered")
	zl.Warn().Str("bone", "Head").Msg("rig is missing bones")

	hist := l.GetHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, "avatar", hist[0].Component)
	assert.Equal(t, "warn", hist[0].Level)
	assert.Equal(t, "rig is missing bones", hist[0].Message)
}
