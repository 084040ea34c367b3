package pose

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// FrameInputs is everything the compositor reads from the outside world
// for one tick.
type FrameInputs struct {
	Emotion   Emotion
	Landmarks *LandmarkFrame
}

// JointTransform is the final local rotation (Euler XYZ, radians) and
// position to write onto a bone.
type JointTransform struct {
	Rotation mgl64.Vec3 `json:"rotation"`
	Position mgl64.Vec3 `json:"position"`
}

// Pose maps bone names to the transforms to apply this tick.
type Pose map[string]JointTransform

// Names returns the bones in the pose, sorted.
func (p Pose) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompositorConfig holds the tunable blend factors and retarget gains.
type CompositorConfig struct {
	RetargetAlpha float64
	EmotionAlpha  float64
	Retarget      RetargetConfig
}

func DefaultCompositorConfig() CompositorConfig {
	return CompositorConfig{
		RetargetAlpha: 0.2,
		EmotionAlpha:  0.1,
		Retarget:      DefaultRetargetConfig(),
	}
}

// Status reports which layers contributed to a composed pose.
type Status struct {
	Retargeted bool
	Emoted     bool
	Manual     bool
}

// Compositor blends the retarget, emotion and manual layers on top of
// the bind pose. Retargeting owns the head whenever a usable landmark
// frame is present; otherwise the emotion layer drives it.
type Compositor struct {
	rig      Rig
	cfg      CompositorConfig
	smoother *Smoother

	lastOffsets uint64
	offsetsSeen bool
}

func NewCompositor(rig Rig, cfg CompositorConfig) *Compositor {
	return &Compositor{
		rig:      rig,
		cfg:      cfg,
		smoother: NewSmoother(),
	}
}

// SetTuning swaps blend factors and gains without losing smoothing state.
func (c *Compositor) SetTuning(cfg CompositorConfig) {
	c.cfg = cfg
}

func (c *Compositor) Config() CompositorConfig {
	return c.cfg
}

// Reset drops all smoothing state. The next Compose re-emits every
// manual offset.
func (c *Compositor) Reset() {
	c.smoother.Reset()
	c.offsetsSeen = false
}

// Compose advances the smoothing state by one tick and returns the
// transforms to write. Bones moved only by manual offsets are included
// only when the offset map changed since the previous call.
func (c *Compositor) Compose(in FrameInputs, bones BoneLookup, registry *BindPoseRegistry, offsets *ManualOffsets) (Pose, Status) {
	var status Status
	targets := make(Targets)

	emotion := EmotionPoser{Rig: c.rig, Alpha: c.cfg.EmotionAlpha}
	if et, ok := emotion.Targets(in.Emotion, bones); ok {
		status.Emoted = true
		for bone, t := range et {
			targets[bone] = t
		}
	}

	retarget := Retargeter{Rig: c.rig, Config: c.cfg.Retarget, Alpha: c.cfg.RetargetAlpha}
	if rt, ok := retarget.Targets(in.Landmarks, bones); ok {
		status.Retargeted = true
		for bone, t := range rt {
			targets[bone] = t
		}
	}

	for bone, t := range targets {
		c.smoother.Step(bone, t)
	}

	out := make(Pose)
	for _, bone := range c.smoother.Bones() {
		if bones != nil && !bones.Has(bone) {
			continue
		}
		delta, _ := c.smoother.Value(bone)
		out[bone] = c.final(bone, delta, bones, registry, offsets)
	}

	if offsets != nil {
		version := offsets.Version()
		if !c.offsetsSeen || version != c.lastOffsets {
			for bone := range offsets.Snapshot() {
				if _, done := out[bone]; done {
					continue
				}
				if bones != nil && !bones.Has(bone) {
					continue
				}
				out[bone] = c.final(bone, mgl64.Vec3{}, bones, registry, offsets)
			}
			c.lastOffsets = version
			c.offsetsSeen = true
			status.Manual = true
		}
	}

	return out, status
}

func (c *Compositor) final(bone string, delta mgl64.Vec3, bones BoneLookup, registry *BindPoseRegistry, offsets *ManualOffsets) JointTransform {
	var bind BindPose
	if registry != nil {
		bind = registry.Resolve(bone, bones)
	}
	var manual BoneTransform
	if offsets != nil {
		manual = offsets.Get(bone)
	}
	rot := mgl64.Vec3{
		mgl64.DegToRad(manual.Rotation[0]),
		mgl64.DegToRad(manual.Rotation[1]),
		mgl64.DegToRad(manual.Rotation[2]),
	}
	return JointTransform{
		Rotation: bind.Rotation.Add(delta).Add(rot),
		Position: bind.Position.Add(mgl64.Vec3(manual.Position)),
	}
}
