// Package vision receives body landmarks from an external pose estimator
// over WebSocket and keeps only the most recent frame.
package vision

import (
	"errors"
	"time"

	"github.com/Surajvthakur/Character-Model/internal/pose"
)

var (
	ErrNotConnected = errors.New("landmark stream not connected")
	ErrEmptyURL     = errors.New("landmark stream url is empty")
)

// DetectorOptions are forwarded to the estimator when a stream opens.
type DetectorOptions struct {
	ModelComplexity        int     `mapstructure:"model_complexity" json:"model_complexity"`
	SmoothLandmarks        bool    `mapstructure:"smooth_landmarks" json:"smooth_landmarks"`
	MinDetectionConfidence float64 `mapstructure:"min_detection_confidence" json:"min_detection_confidence"`
	MinTrackingConfidence  float64 `mapstructure:"min_tracking_confidence" json:"min_tracking_confidence"`
	Width                  int     `mapstructure:"width" json:"width"`
	Height                 int     `mapstructure:"height" json:"height"`
}

func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		ModelComplexity:        1,
		SmoothLandmarks:        true,
		MinDetectionConfidence: 0.6,
		MinTrackingConfidence:  0.6,
		Width:                  640,
		Height:                 480,
	}
}

// Config holds landmark stream configuration
type Config struct {
	URL               string          `mapstructure:"url"`
	ReconnectDelay    time.Duration   `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration   `mapstructure:"max_reconnect_delay"`
	Detector          DetectorOptions `mapstructure:"detector"`
}

func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8765/ws/landmarks",
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		Detector:          DefaultDetectorOptions(),
	}
}

// HelloMessage is sent to the estimator right after connecting.
type HelloMessage struct {
	Type    string          `json:"type"`
	Options DetectorOptions `json:"options"`
}

// LandmarksMessage carries one estimator frame.
type LandmarksMessage struct {
	Type        string          `json:"type"`
	Landmarks   []pose.Landmark `json:"landmarks"`
	TimestampMs int64           `json:"timestamp_ms,omitempty"`
}

// ErrorMessage reports estimator-side errors
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
