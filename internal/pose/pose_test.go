package pose

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBones is a BoneLookup backed by a map.
type fakeBones map[string]BindPose

func (f fakeBones) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f fakeBones) Local(name string) (mgl64.Vec3, mgl64.Vec3, bool) {
	bp, ok := f[name]
	return bp.Rotation, bp.Position, ok
}

func fullRig() fakeBones {
	rig := DefaultRig()
	bones := fakeBones{}
	for _, name := range append(rig.RetargetBones(), rig.EmotionBones()...) {
		bones[name] = BindPose{}
	}
	return bones
}

// raisedArmFrame holds the left arm straight up, everything else centred.
func raisedArmFrame(t *testing.T) *LandmarkFrame {
	t.Helper()
	points := make([]Landmark, FullBodyLandmarks)
	for i := range points {
		points[i] = Landmark{X: 0.5, Y: 0.5}
	}
	points[LeftShoulder] = Landmark{X: 0.4, Y: 0.5}
	points[LeftElbow] = Landmark{X: 0.4, Y: 0.3}
	points[LeftWrist] = Landmark{X: 0.4, Y: 0.1}

	frame, err := NewLandmarkFrame(points)
	require.NoError(t, err)
	return frame
}

func TestNormalize(t *testing.T) {
	v := Normalize(Landmark{X: 0.75, Y: 0.25, Z: -0.3})
	assert.InDelta(t, 0.25, v.X(), 1e-12)
	assert.InDelta(t, 0.25, v.Y(), 1e-12)
	assert.InDelta(t, 0.3, v.Z(), 1e-12)
}

func TestAngleBetween(t *testing.T) {
	origin := mgl64.Vec3{}

	assert.InDelta(t, math.Pi/2, AngleBetween(mgl64.Vec3{0, 1, 0}, origin, mgl64.Vec3{1, 0, 0}), 1e-9)
	assert.InDelta(t, math.Pi, AngleBetween(mgl64.Vec3{0, 1, 0}, origin, mgl64.Vec3{0, -1, 0}), 1e-9)
	assert.InDelta(t, 0, AngleBetween(mgl64.Vec3{1, 0, 0}, origin, mgl64.Vec3{1, 0, 0}), 1e-9)
}

func TestAngleBetween_ZeroLengthRay(t *testing.T) {
	b := mgl64.Vec3{0.3, 0.3, 0.3}
	assert.Equal(t, 0.0, AngleBetween(b, b, mgl64.Vec3{1, 0, 0}))
	assert.Equal(t, 0.0, AngleBetween(mgl64.Vec3{1, 0, 0}, b, b))
}

func TestNewLandmarkFrame_Malformed(t *testing.T) {
	_, err := NewLandmarkFrame(make([]Landmark, 5))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	points := make([]Landmark, MinFrameLandmarks)
	points[LeftWrist].X = math.NaN()
	_, err = NewLandmarkFrame(points)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestLandmarkFrame_Visible(t *testing.T) {
	points := make([]Landmark, MinFrameLandmarks)
	frame, err := NewLandmarkFrame(points)
	require.NoError(t, err)
	assert.True(t, frame.Visible(0.5), "missing visibility counts as visible")

	low := 0.2
	points[Nose].Visibility = &low
	frame, err = NewLandmarkFrame(points)
	require.NoError(t, err)
	assert.False(t, frame.Visible(0.5))

	var nilFrame *LandmarkFrame
	assert.False(t, nilFrame.Visible(0))
}

func TestBindPoseRegistry_FirstWriteWins(t *testing.T) {
	r := NewBindPoseRegistry()
	assert.Equal(t, RegistryUninitialized, r.State())

	assert.True(t, r.Register("arm", mgl64.Vec3{1, 2, 3}, mgl64.Vec3{4, 5, 6}))
	assert.False(t, r.Register("arm", mgl64.Vec3{9, 9, 9}, mgl64.Vec3{9, 9, 9}))

	bp, ok := r.Get("arm")
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, bp.Rotation)
	assert.Equal(t, mgl64.Vec3{4, 5, 6}, bp.Position)

	r.Seal()
	r.Seal()
	assert.Equal(t, RegistryPopulated, r.State())
	assert.Equal(t, []string{"arm"}, r.Names())
}

func TestBindPoseRegistry_ResolveFallsBackToLive(t *testing.T) {
	r := NewBindPoseRegistry()
	live := fakeBones{"leg": {Rotation: mgl64.Vec3{0.5, 0, 0}}}

	bp := r.Resolve("leg", live)
	assert.Equal(t, mgl64.Vec3{0.5, 0, 0}, bp.Rotation)
	assert.Equal(t, BindPose{}, r.Resolve("ghost", live))
}

func TestSmoother_Convergence(t *testing.T) {
	s := NewSmoother()
	const (
		start  = 3.0
		target = -1.0
		alpha  = 0.2
	)
	s.state["b"] = mgl64.Vec3{start, 0, 0}

	for n := 1; n <= 40; n++ {
		got := s.Step("b", ChannelTarget{Value: mgl64.Vec3{target, 0, 0}, Mask: ChannelX, Alpha: alpha})
		want := math.Abs(start-target) * math.Pow(1-alpha, float64(n))
		assert.InDelta(t, want, math.Abs(got.X()-target), 1e-9, "iteration %d", n)
	}
}

func TestSmoother_MaskLeavesOtherChannels(t *testing.T) {
	s := NewSmoother()
	s.state["b"] = mgl64.Vec3{1, 1, 1}
	got := s.Step("b", ChannelTarget{Value: mgl64.Vec3{0, 0, 0}, Mask: ChannelZ, Alpha: 1})
	assert.Equal(t, mgl64.Vec3{1, 1, 0}, got)
}

func TestEmotion_ParseAndKeys(t *testing.T) {
	e, err := ParseEmotion(" Happy ")
	require.NoError(t, err)
	assert.Equal(t, EmotionHappy, e)

	_, err = ParseEmotion("bored")
	assert.ErrorIs(t, err, ErrUnknownEmotion)

	for i, want := range Emotions {
		got, ok := EmotionFromKey(rune('1' + i))
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := EmotionFromKey('5')
	assert.False(t, ok)
	assert.Equal(t, EmotionPose{}, Emotion("bored").Pose())
}

func TestEmotionPoser_Targets(t *testing.T) {
	rig := DefaultRig()
	p := EmotionPoser{Rig: rig, Alpha: 0.1}

	targets, ok := p.Targets(EmotionAngry, fullRig())
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{0.15, 0.25, 0}, targets[rig.Head].Value)
	assert.Equal(t, mgl64.Vec3{-0.2, 0, 0}, targets[rig.Spine].Value)
	_, touchesNeck := targets[rig.Neck]
	assert.False(t, touchesNeck)
}

func TestEmotionPoser_MissingBoneIsNoop(t *testing.T) {
	rig := DefaultRig()
	bones := fullRig()
	delete(bones, rig.Neck)

	targets, ok := EmotionPoser{Rig: rig, Alpha: 0.1}.Targets(EmotionSad, bones)
	assert.False(t, ok)
	assert.Empty(t, targets)
}

func TestRetargeter_RaisedArm(t *testing.T) {
	rig := DefaultRig()
	r := Retargeter{Rig: rig, Config: DefaultRetargetConfig(), Alpha: 0.2}

	angles := r.Measure(raisedArmFrame(t))
	assert.InDelta(t, 0.4*math.Pi, angles.LeftArm.Raise, 1e-9)
	assert.InDelta(t, 0, angles.LeftArm.Bend, 1e-9)
	assert.InDelta(t, 0, angles.LeftArm.Side, 1e-9)

	targets, ok := r.Targets(raisedArmFrame(t), fullRig())
	require.True(t, ok)
	assert.InDelta(t, -0.4*math.Pi, targets[rig.LeftUpperArm].Value.Z(), 1e-9)
	assert.InDelta(t, 0, targets[rig.LeftForearm].Value.Z(), 1e-9)
	assert.Equal(t, ChannelXYZ, targets[rig.LeftUpperArm].Mask)
	assert.Equal(t, 0.0, targets[rig.LeftUpperArm].Value.Y())
}

func TestRetargeter_ArmSideOnlyWhenEnabled(t *testing.T) {
	rig := DefaultRig()
	cfg := DefaultRetargetConfig()
	cfg.ApplyArmSide = true
	r := Retargeter{Rig: rig, Config: cfg, Alpha: 0.2}

	targets := r.Map(RetargetAngles{LeftArm: ArmAngles{Side: 0.3}, RightArm: ArmAngles{Side: 0.3}})
	assert.Equal(t, ChannelXYZ, targets[rig.LeftUpperArm].Mask)
	assert.InDelta(t, -0.3, targets[rig.LeftUpperArm].Value.Y(), 1e-12)
	assert.InDelta(t, 0.3, targets[rig.RightUpperArm].Value.Y(), 1e-12)
}

func TestRetargeter_ArmSideOffTargetsZero(t *testing.T) {
	rig := DefaultRig()
	r := Retargeter{Rig: rig, Config: DefaultRetargetConfig(), Alpha: 0.2}

	targets := r.Map(RetargetAngles{LeftArm: ArmAngles{Side: 0.3}, RightArm: ArmAngles{Side: 0.3}})
	assert.Equal(t, ChannelXYZ, targets[rig.LeftUpperArm].Mask)
	assert.Equal(t, 0.0, targets[rig.LeftUpperArm].Value.Y())
	assert.Equal(t, 0.0, targets[rig.RightUpperArm].Value.Y())
}

func TestRetargeter_NoDetection(t *testing.T) {
	r := Retargeter{Rig: DefaultRig(), Config: DefaultRetargetConfig(), Alpha: 0.2}
	_, ok := r.Targets(nil, fullRig())
	assert.False(t, ok)
}

func TestManualOffsets_SetClampsAndValidates(t *testing.T) {
	m := NewManualOffsets(DefaultOffsetLimits())

	require.NoError(t, m.Set("b", KindRotation, 1, 400))
	require.NoError(t, m.Set("b", KindPosition, 2, -3))
	got := m.Get("b")
	assert.Equal(t, 90.0, got.Rotation[1])
	assert.Equal(t, -0.2, got.Position[2])

	assert.ErrorIs(t, m.Set("b", KindRotation, 3, 1), ErrInvalidAxis)
	assert.ErrorIs(t, m.Set("b", "scale", 0, 1), ErrInvalidKind)
	assert.ErrorIs(t, m.Set("b", KindRotation, 0, math.NaN()), ErrInvalidValue)
}

func TestManualOffsets_ResetBone(t *testing.T) {
	m := NewManualOffsets(DefaultOffsetLimits())
	require.NoError(t, m.Set("b", KindRotation, 0, 45))
	require.NoError(t, m.Set("b", KindPosition, 0, 0.1))

	m.ResetBone("b")
	assert.Equal(t, BoneTransform{}, m.Get("b"))

	m.ResetBone("b")
	assert.True(t, m.Get("b").IsZero())
}

func TestManualOffsets_ResetAllKeepsKeys(t *testing.T) {
	m := NewManualOffsets(DefaultOffsetLimits())
	m.Ensure("a")
	require.NoError(t, m.Set("b", KindRotation, 2, -10))
	before := m.Version()

	m.ResetAll()
	assert.Greater(t, m.Version(), before)
	assert.Equal(t, []string{"a", "b"}, m.Bones())
	for _, tr := range m.Snapshot() {
		assert.True(t, tr.IsZero())
	}
}

func TestBoundsReporter_SingleEmission(t *testing.T) {
	var emitted []SceneBounds
	r := NewBoundsReporter(func(b SceneBounds) { emitted = append(emitted, b) })

	assert.False(t, r.Offer(SceneBounds{Radius: 0}))
	assert.False(t, r.Offer(SceneBounds{Radius: math.Inf(1)}))
	assert.Equal(t, BoundsNotComputed, r.State())

	good := SceneBounds{Center: mgl64.Vec3{0, 1, 0}, Radius: 1.5}
	for i := 0; i < 5; i++ {
		r.Offer(good)
	}
	require.Len(t, emitted, 1)
	assert.Equal(t, good, emitted[0])
	assert.Equal(t, BoundsSent, r.State())

	r.Reset()
	assert.True(t, r.Offer(good))
	assert.Len(t, emitted, 2)
}

func TestCompositor_WorkedExample(t *testing.T) {
	rig := DefaultRig()
	c := NewCompositor(rig, DefaultCompositorConfig())

	p, status := c.Compose(FrameInputs{Emotion: EmotionNeutral, Landmarks: raisedArmFrame(t)}, fullRig(), NewBindPoseRegistry(), nil)
	assert.True(t, status.Retargeted)
	assert.True(t, status.Emoted)

	assert.InDelta(t, -0.08*math.Pi, p[rig.LeftUpperArm].Rotation.Z(), 1e-9)
	assert.InDelta(t, 0, p[rig.LeftForearm].Rotation.Z(), 1e-9)
}

func TestCompositor_RetargetOwnsHead(t *testing.T) {
	rig := DefaultRig()
	c := NewCompositor(rig, DefaultCompositorConfig())
	bones := fullRig()

	// Sad pitches the head down by 0.4; a centred face asks for zero pitch.
	p, _ := c.Compose(FrameInputs{Emotion: EmotionSad, Landmarks: raisedArmFrame(t)}, bones, NewBindPoseRegistry(), nil)
	assert.InDelta(t, 0, p[rig.Head].Rotation.X(), 1e-9)
	assert.InDelta(t, -0.025, p[rig.Spine].Rotation.X(), 1e-9)

	// Without a frame the emotion layer takes the head back.
	p, _ = c.Compose(FrameInputs{Emotion: EmotionSad}, bones, NewBindPoseRegistry(), nil)
	assert.InDelta(t, 0.04, p[rig.Head].Rotation.X(), 1e-9)
}

func TestCompositor_NoDetectionFreezesArms(t *testing.T) {
	rig := DefaultRig()
	c := NewCompositor(rig, DefaultCompositorConfig())
	bones := fullRig()
	registry := NewBindPoseRegistry()

	first, _ := c.Compose(FrameInputs{Landmarks: raisedArmFrame(t)}, bones, registry, nil)
	second, status := c.Compose(FrameInputs{}, bones, registry, nil)
	assert.False(t, status.Retargeted)
	assert.Equal(t, first[rig.LeftUpperArm], second[rig.LeftUpperArm])
}

// sideArmFrame holds the left elbow out to the side at shoulder height.
func sideArmFrame(t *testing.T) *LandmarkFrame {
	t.Helper()
	points := make([]Landmark, FullBodyLandmarks)
	for i := range points {
		points[i] = Landmark{X: 0.5, Y: 0.5}
	}
	points[LeftShoulder] = Landmark{X: 0.4, Y: 0.5}
	points[LeftElbow] = Landmark{X: 0.2, Y: 0.5}
	points[LeftWrist] = Landmark{X: 0.0, Y: 0.5}

	frame, err := NewLandmarkFrame(points)
	require.NoError(t, err)
	return frame
}

func TestCompositor_ArmSideReloadReturnsToBind(t *testing.T) {
	rig := DefaultRig()
	cfg := DefaultCompositorConfig()
	cfg.Retarget.ApplyArmSide = true
	c := NewCompositor(rig, cfg)
	bones := fullRig()
	registry := NewBindPoseRegistry()

	var p Pose
	for i := 0; i < 50; i++ {
		p, _ = c.Compose(FrameInputs{Landmarks: sideArmFrame(t)}, bones, registry, nil)
	}
	require.Greater(t, math.Abs(p[rig.LeftUpperArm].Rotation.Y()), 1.0)

	cfg.Retarget.ApplyArmSide = false
	c.SetTuning(cfg)
	for i := 0; i < 200; i++ {
		p, _ = c.Compose(FrameInputs{Landmarks: sideArmFrame(t)}, bones, registry, nil)
	}
	assert.InDelta(t, 0, p[rig.LeftUpperArm].Rotation.Y(), 1e-6)
}

func TestCompositor_MissingBoneLeavesPoseUnchanged(t *testing.T) {
	rig := DefaultRig()
	c := NewCompositor(rig, DefaultCompositorConfig())
	bones := fullRig()
	registry := NewBindPoseRegistry()

	first, _ := c.Compose(FrameInputs{Emotion: EmotionHappy, Landmarks: raisedArmFrame(t)}, bones, registry, nil)

	delete(bones, rig.RightForearm)
	delete(bones, rig.Neck)
	second, status := c.Compose(FrameInputs{Emotion: EmotionSad, Landmarks: raisedArmFrame(t)}, bones, registry, nil)
	assert.False(t, status.Retargeted)
	assert.False(t, status.Emoted)

	for name, tr := range second {
		assert.Equal(t, first[name], tr, name)
	}
	assert.NotContains(t, second, rig.RightForearm)
}

func TestCompositor_ManualOffsetsOnBindPose(t *testing.T) {
	rig := DefaultRig()
	c := NewCompositor(rig, DefaultCompositorConfig())
	bones := fullRig()
	bones["Finger"] = BindPose{}

	registry := NewBindPoseRegistry()
	registry.Register("Finger", mgl64.Vec3{0.1, 0, 0}, mgl64.Vec3{0, 1, 0})
	offsets := NewManualOffsets(DefaultOffsetLimits())
	require.NoError(t, offsets.Set("Finger", KindRotation, 0, 90))
	require.NoError(t, offsets.Set("Finger", KindPosition, 1, 0.1))

	p, status := c.Compose(FrameInputs{}, bones, registry, offsets)
	require.True(t, status.Manual)
	assert.InDelta(t, 0.1+math.Pi/2, p["Finger"].Rotation.X(), 1e-9)
	assert.InDelta(t, 1.1, p["Finger"].Position.Y(), 1e-9)

	p, status = c.Compose(FrameInputs{}, bones, registry, offsets)
	assert.False(t, status.Manual)
	assert.NotContains(t, p, "Finger")

	offsets.ResetBone("Finger")
	p, _ = c.Compose(FrameInputs{}, bones, registry, offsets)
	assert.Equal(t, JointTransform{Rotation: mgl64.Vec3{0.1, 0, 0}, Position: mgl64.Vec3{0, 1, 0}}, p["Finger"])
}
