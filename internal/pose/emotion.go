package pose

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

type Emotion string

const (
	EmotionNeutral Emotion = "neutral"
	EmotionHappy   Emotion = "happy"
	EmotionSad     Emotion = "sad"
	EmotionAngry   Emotion = "angry"
)

// Emotions lists the selectable emotions in key order.
var Emotions = []Emotion{EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry}

// ParseEmotion accepts an emotion name in any case.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Emotions {
		if e == known {
			return e, nil
		}
	}
	return EmotionNeutral, fmt.Errorf("%w: %q", ErrUnknownEmotion, s)
}

// EmotionFromKey maps the number keys 1..4 to the four emotions.
func EmotionFromKey(key rune) (Emotion, bool) {
	idx := int(key - '1')
	if idx < 0 || idx >= len(Emotions) {
		return EmotionNeutral, false
	}
	return Emotions[idx], true
}

// EmotionPose holds the target offsets, in radians, for one emotion.
type EmotionPose struct {
	HeadX  float64
	HeadY  float64
	SpineX float64
}

var emotionPoses = map[Emotion]EmotionPose{
	EmotionNeutral: {},
	EmotionHappy:   {HeadX: -0.25, SpineX: 0.15},
	EmotionSad:     {HeadX: 0.4, SpineX: -0.25},
	EmotionAngry:   {HeadX: 0.15, HeadY: 0.25, SpineX: -0.2},
}

// Pose returns the target offsets for e. Unknown values pose as neutral.
func (e Emotion) Pose() EmotionPose {
	return emotionPoses[e]
}

// EmotionPoser turns the current emotion into head and spine targets.
type EmotionPoser struct {
	Rig   Rig
	Alpha float64
}

// Targets returns the emotion's rotation targets. It yields nothing, and
// reports false, unless head, neck and spine are all present.
func (p EmotionPoser) Targets(e Emotion, bones BoneLookup) (Targets, bool) {
	if !hasAll(bones, p.Rig.EmotionBones()) {
		return nil, false
	}
	ep := e.Pose()
	return Targets{
		p.Rig.Head: {
			Value: mgl64.Vec3{ep.HeadX, ep.HeadY, 0},
			Mask:  ChannelXY,
			Alpha: p.Alpha,
		},
		p.Rig.Spine: {
			Value: mgl64.Vec3{ep.SpineX, 0, 0},
			Mask:  ChannelX,
			Alpha: p.Alpha,
		},
	}, true
}
