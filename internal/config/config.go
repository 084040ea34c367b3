// Package config provides configuration management for posedriver
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Surajvthakur/Character-Model/internal/logging"
	"github.com/Surajvthakur/Character-Model/internal/pose"
	"github.com/Surajvthakur/Character-Model/internal/renderer"
	"github.com/Surajvthakur/Character-Model/internal/vision"
)

const envPrefix = "POSEDRIVER"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Model     ModelConfig           `mapstructure:"model"`
	Rig       pose.Rig              `mapstructure:"rig"`
	Smoothing SmoothingConfig       `mapstructure:"smoothing"`
	Retarget  pose.RetargetConfig   `mapstructure:"retarget"`
	Offsets   pose.OffsetLimits     `mapstructure:"offsets"`
	Landmarks vision.Config         `mapstructure:"landmarks"`
	Control   ControlConfig         `mapstructure:"control"`
	Camera    renderer.CameraConfig `mapstructure:"camera"`
	Loop      LoopConfig            `mapstructure:"loop"`
	Logging   logging.Config        `mapstructure:"logging"`
}

// ModelConfig locates the character asset
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// SmoothingConfig holds the per-source blend factors
type SmoothingConfig struct {
	RetargetAlpha float64 `mapstructure:"retarget_alpha"`
	EmotionAlpha  float64 `mapstructure:"emotion_alpha"`
}

// ControlConfig configures the control-surface server
type ControlConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoopConfig configures the frame loop
type LoopConfig struct {
	FPS      int           `mapstructure:"fps"`
	MaxDelta time.Duration `mapstructure:"max_delta"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Model: ModelConfig{
			Path: "models/columbina_rigged_free.glb",
		},
		Rig: pose.DefaultRig(),
		Smoothing: SmoothingConfig{
			RetargetAlpha: 0.2,
			EmotionAlpha:  0.1,
		},
		Retarget:  pose.DefaultRetargetConfig(),
		Offsets:   pose.DefaultOffsetLimits(),
		Landmarks: vision.DefaultConfig(),
		Control: ControlConfig{
			Addr:    ":8090",
			Enabled: true,
		},
		Camera: renderer.DefaultCameraConfig(),
		Loop: LoopConfig{
			FPS:      60,
			MaxDelta: 100 * time.Millisecond,
		},
		Logging: *logging.DefaultConfig(),
	}
	return cfg
}

// Compositor returns the pose compositor tuning described by c.
func (c *Config) Compositor() pose.CompositorConfig {
	return pose.CompositorConfig{
		RetargetAlpha: c.Smoothing.RetargetAlpha,
		EmotionAlpha:  c.Smoothing.EmotionAlpha,
		Retarget:      c.Retarget,
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	alpha := func(name string, v float64) {
		if !(v > 0 && v <= 1) {
			problems = append(problems, fmt.Sprintf("%s must be in (0,1], got %v", name, v))
		}
	}
	alpha("smoothing.retarget_alpha", c.Smoothing.RetargetAlpha)
	alpha("smoothing.emotion_alpha", c.Smoothing.EmotionAlpha)

	if c.Model.Path == "" {
		problems = append(problems, "model.path is empty")
	}
	for key, name := range map[string]string{
		"rig.head": c.Rig.Head, "rig.neck": c.Rig.Neck, "rig.spine": c.Rig.Spine,
		"rig.left_upper_arm": c.Rig.LeftUpperArm, "rig.right_upper_arm": c.Rig.RightUpperArm,
		"rig.left_forearm": c.Rig.LeftForearm, "rig.right_forearm": c.Rig.RightForearm,
	} {
		if name == "" {
			problems = append(problems, key+" is empty")
		}
	}
	if c.Offsets.RotationDeg <= 0 || c.Offsets.Position <= 0 {
		problems = append(problems, "offsets limits must be positive")
	}
	if c.Retarget.MinVisibility < 0 || c.Retarget.MinVisibility > 1 {
		problems = append(problems, "retarget.min_visibility must be in [0,1]")
	}
	if c.Loop.FPS <= 0 {
		problems = append(problems, "loop.fps must be positive")
	}
	if c.Loop.MaxDelta <= 0 {
		problems = append(problems, "loop.max_delta must be positive")
	}
	if c.Camera.FOV <= 0 || c.Camera.FOV >= 180 {
		problems = append(problems, "camera.fov must be in (0,180)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// settings flattens cfg into dotted viper keys. It is used both to
// register defaults, which makes every key visible to AutomaticEnv, and
// to write a config file.
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"model.path": cfg.Model.Path,

		"rig.head":            cfg.Rig.Head,
		"rig.neck":            cfg.Rig.Neck,
		"rig.spine":           cfg.Rig.Spine,
		"rig.left_upper_arm":  cfg.Rig.LeftUpperArm,
		"rig.right_upper_arm": cfg.Rig.RightUpperArm,
		"rig.left_forearm":    cfg.Rig.LeftForearm,
		"rig.right_forearm":   cfg.Rig.RightForearm,

		"smoothing.retarget_alpha": cfg.Smoothing.RetargetAlpha,
		"smoothing.emotion_alpha":  cfg.Smoothing.EmotionAlpha,

		"retarget.arm_gain":       cfg.Retarget.ArmGain,
		"retarget.head_yaw_gain":  cfg.Retarget.HeadYawGain,
		"retarget.head_gain":      cfg.Retarget.HeadGain,
		"retarget.apply_arm_side": cfg.Retarget.ApplyArmSide,
		"retarget.min_visibility": cfg.Retarget.MinVisibility,

		"offsets.rotation_limit_deg": cfg.Offsets.RotationDeg,
		"offsets.position_limit":     cfg.Offsets.Position,

		"landmarks.url":                               cfg.Landmarks.URL,
		"landmarks.reconnect_delay":                   cfg.Landmarks.ReconnectDelay.String(),
		"landmarks.max_reconnect_delay":               cfg.Landmarks.MaxReconnectDelay.String(),
		"landmarks.detector.model_complexity":         cfg.Landmarks.Detector.ModelComplexity,
		"landmarks.detector.smooth_landmarks":         cfg.Landmarks.Detector.SmoothLandmarks,
		"landmarks.detector.min_detection_confidence": cfg.Landmarks.Detector.MinDetectionConfidence,
		"landmarks.detector.min_tracking_confidence":  cfg.Landmarks.Detector.MinTrackingConfidence,
		"landmarks.detector.width":                    cfg.Landmarks.Detector.Width,
		"landmarks.detector.height":                   cfg.Landmarks.Detector.Height,

		"control.addr":    cfg.Control.Addr,
		"control.enabled": cfg.Control.Enabled,

		"camera.fov":      cfg.Camera.FOV,
		"camera.position": cfg.Camera.Position[:],
		"camera.margin":   cfg.Camera.Margin,
		"camera.aspect":   cfg.Camera.Aspect,

		"loop.fps":       cfg.Loop.FPS,
		"loop.max_delta": cfg.Loop.MaxDelta.String(),

		"logging.dir":     cfg.Logging.LogDir,
		"logging.level":   string(cfg.Logging.Level),
		"logging.history": cfg.Logging.MaxHistory,
		"logging.console": cfg.Logging.Console,
	}
}

// Manager owns a viper instance and the last good configuration.
type Manager struct {
	v *viper.Viper

	mu  sync.RWMutex
	cfg *Config
}

func NewManager() *Manager {
	v := viper.New()
	for key, value := range settings(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Manager{v: v, cfg: DefaultConfig()}
}

// Load reads configuration from path, or searches the working directory
// and ~/.posedriver for config.yaml when path is empty. A missing file
// is not an error; defaults and environment apply.
func (m *Manager) Load(path string) (*Config, error) {
	if path != "" {
		m.v.SetConfigFile(path)
	} else {
		m.v.SetConfigName("config")
		m.v.SetConfigType("yaml")
		m.v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			m.v.AddConfigPath(dir)
		}
	}

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// ConfigFile returns the file viper read, empty if none.
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// Watch re-reads the file on change. onChange receives the new config
// when it decodes and validates; onError receives anything else and the
// previous config stays current.
func (m *Manager) Watch(onChange func(*Config), onError func(error)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := m.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()
		if onChange != nil {
			onChange(cfg)
		}
	})
	m.v.WatchConfig()
}

// Save writes cfg as YAML to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// Marshal renders cfg as nested YAML using the same keys as the file format.
func Marshal(cfg *Config) ([]byte, error) {
	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}
	return yaml.Marshal(v.AllSettings())
}

// Keys lists every dotted configuration key.
func Keys() []string {
	s := settings(DefaultConfig())
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load is a convenience wrapper around a fresh Manager.
func Load(path string) (*Config, error) {
	return NewManager().Load(path)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".posedriver"), nil
}
