package control

import (
	"github.com/Surajvthakur/Character-Model/internal/logging"
	"github.com/Surajvthakur/Character-Model/internal/pose"
)

// Incoming message types
const (
	MsgChange    = "change"
	MsgResetBone = "reset_bone"
	MsgResetAll  = "reset_all"
	MsgSelect    = "select"
	MsgEmotion   = "emotion"
	MsgKey       = "key"
	MsgRetryLoad = "retry_load"
	MsgLogs      = "logs"
	MsgOrbit     = "orbit"
	MsgZoom      = "zoom"
)

// Outgoing message types
const (
	MsgHello      = "hello"
	MsgBones      = "bones"
	MsgTransforms = "transforms"
	MsgBounds     = "bounds"
	MsgModelError = "model_error"
	MsgError      = "error"
	MsgCamera     = "camera"
)

// Command is any message the control surface sends. Fields not used by a
// given type are left zero.
type Command struct {
	Type    string  `json:"type"`
	Bone    string  `json:"bone,omitempty"`
	Kind    string  `json:"kind,omitempty"`
	Axis    int     `json:"axis"`
	Value   float64 `json:"value"`
	Emotion string  `json:"emotion,omitempty"`
	Key     string  `json:"key,omitempty"`
	Limit   int     `json:"limit,omitempty"`
	Yaw     float32 `json:"yaw,omitempty"`
	Pitch   float32 `json:"pitch,omitempty"`
	Delta   float32 `json:"delta,omitempty"`
}

// HelloMessage is the full state pushed to a newly connected surface.
type HelloMessage struct {
	Type       string                        `json:"type"`
	SessionID  string                        `json:"session_id"`
	State      string                        `json:"state"`
	Error      string                        `json:"error,omitempty"`
	Bones      []string                      `json:"bones"`
	Selected   string                        `json:"selected,omitempty"`
	Transforms map[string]pose.BoneTransform `json:"transforms"`
	Emotion    string                        `json:"emotion"`
	Bounds     *pose.SceneBounds             `json:"bounds,omitempty"`
	Camera     *CameraMessage                `json:"camera,omitempty"`
}

type BonesMessage struct {
	Type  string   `json:"type"`
	Bones []string `json:"bones"`
}

type TransformsMessage struct {
	Type       string                        `json:"type"`
	Selected   string                        `json:"selected,omitempty"`
	Transforms map[string]pose.BoneTransform `json:"transforms"`
}

type BoundsMessage struct {
	Type   string           `json:"type"`
	LoadID string           `json:"load_id,omitempty"`
	Bounds pose.SceneBounds `json:"bounds"`
}

type EmotionMessage struct {
	Type    string `json:"type"`
	Emotion string `json:"emotion"`
}

// ErrorMessage reports a model load failure or a rejected command.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

// LogsMessage answers a logs command with the most recent entries.
type LogsMessage struct {
	Type    string             `json:"type"`
	Entries []logging.LogEntry `json:"entries"`
}

// CameraMessage carries the framing camera after a change.
type CameraMessage struct {
	Type       string      `json:"type"`
	Position   [3]float32  `json:"position"`
	Target     [3]float32  `json:"target"`
	Distance   float32     `json:"distance"`
	View       [16]float32 `json:"view"`
	Projection [16]float32 `json:"projection"`
}
