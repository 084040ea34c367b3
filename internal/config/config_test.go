package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Bip001_Head_087", cfg.Rig.Head)
	assert.Equal(t, 0.2, cfg.Smoothing.RetargetAlpha)
	assert.Equal(t, 0.1, cfg.Smoothing.EmotionAlpha)
	assert.Equal(t, "ws://localhost:8765/ws/landmarks", cfg.Landmarks.URL)
	assert.Equal(t, 640, cfg.Landmarks.Detector.Width)
	assert.Equal(t, float32(50), cfg.Camera.FOV)
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeFile(t, `
model:
  path: assets/other.glb
smoothing:
  retarget_alpha: 0.5
rig:
  head: Head
camera:
  position: [0, 1, 3]
loop:
  max_delta: 50ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "assets/other.glb", cfg.Model.Path)
	assert.Equal(t, 0.5, cfg.Smoothing.RetargetAlpha)
	assert.Equal(t, 0.1, cfg.Smoothing.EmotionAlpha)
	assert.Equal(t, "Head", cfg.Rig.Head)
	assert.Equal(t, "Bip001_Neck_086", cfg.Rig.Neck)
	assert.Equal(t, [3]float32{0, 1, 3}, cfg.Camera.Position)
	assert.Equal(t, 50*time.Millisecond, cfg.Loop.MaxDelta)
	assert.Equal(t, time.Second, cfg.Landmarks.ReconnectDelay)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSEDRIVER_SMOOTHING_EMOTION_ALPHA", "0.3")
	t.Setenv("POSEDRIVER_RETARGET_APPLY_ARM_SIDE", "true")
	t.Setenv("POSEDRIVER_CONTROL_ADDR", ":9999")

	cfg, err := Load(writeFile(t, "model:\n  path: a.glb\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Smoothing.EmotionAlpha)
	assert.True(t, cfg.Retarget.ApplyArmSide)
	assert.Equal(t, ":9999", cfg.Control.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "smoothing:\n  retarget_alpha: 1.5\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "loop:\n  fps: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Path = "x.glb"
	cfg.Smoothing.EmotionAlpha = 0.05
	cfg.Offsets.RotationDeg = 45
	cfg.Loop.MaxDelta = 250 * time.Millisecond

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCompositorFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing.RetargetAlpha = 0.4
	cfg.Retarget.ArmGain = 1.5

	c := cfg.Compositor()
	assert.Equal(t, 0.4, c.RetargetAlpha)
	assert.Equal(t, 1.5, c.Retarget.ArmGain)
}

func TestMarshal_NestedKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loop.FPS = 30

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fps: 30")
	assert.Contains(t, string(data), "max_delta: 100ms")
}

func TestKeysAndEnvNames(t *testing.T) {
	assert.Contains(t, Keys(), "smoothing.retarget_alpha")
	assert.Equal(t, "POSEDRIVER_LANDMARKS_DETECTOR_WIDTH", EnvName("landmarks.detector.width"))
}
