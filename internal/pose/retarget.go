package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// RetargetConfig scales image-space displacement into joint rotation.
// Each gain is a multiple of π per unit of normalized displacement.
type RetargetConfig struct {
	ArmGain       float64 `mapstructure:"arm_gain"`
	HeadYawGain   float64 `mapstructure:"head_yaw_gain"`
	HeadGain      float64 `mapstructure:"head_gain"`
	ApplyArmSide  bool    `mapstructure:"apply_arm_side"`
	MinVisibility float64 `mapstructure:"min_visibility"`
}

func DefaultRetargetConfig() RetargetConfig {
	return RetargetConfig{
		ArmGain:       2,
		HeadYawGain:   3,
		HeadGain:      2,
		ApplyArmSide:  false,
		MinVisibility: 0.5,
	}
}

// ArmAngles are the heuristic angles measured for one arm, before the
// per-side sign convention is applied.
type ArmAngles struct {
	Raise   float64
	Forward float64
	// Side is measured always but only reaches a bone when ApplyArmSide
	// is set; otherwise the Y target is zero.
	Side float64
	Bend float64
}

// RetargetAngles is the full set of absolute joint angles measured from
// one landmark frame.
type RetargetAngles struct {
	LeftArm   ArmAngles
	RightArm  ArmAngles
	HeadYaw   float64
	HeadPitch float64
	HeadRoll  float64
}

// Retargeter maps landmark frames onto the rig's arm and head bones.
type Retargeter struct {
	Rig    Rig
	Config RetargetConfig
	Alpha  float64
}

// Measure computes joint angles from a frame. It does no bone lookups.
func (r Retargeter) Measure(f *LandmarkFrame) RetargetAngles {
	armK := math.Pi * r.Config.ArmGain
	headK := math.Pi * r.Config.HeadGain

	nose := f.At(Nose)
	lEar, rEar := f.At(LeftEar), f.At(RightEar)
	lShoulder, rShoulder := f.At(LeftShoulder), f.At(RightShoulder)

	return RetargetAngles{
		LeftArm:   measureArm(lShoulder, f.At(LeftElbow), f.At(LeftWrist), armK),
		RightArm:  measureArm(rShoulder, f.At(RightElbow), f.At(RightWrist), armK),
		HeadYaw:   (nose.X() - midpoint(lShoulder, rShoulder).X()) * math.Pi * r.Config.HeadYawGain,
		HeadPitch: (nose.Y() - midpoint(lEar, rEar).Y()) * headK,
		HeadRoll:  (rEar.Y() - lEar.Y()) * headK,
	}
}

func measureArm(shoulder, elbow, wrist mgl64.Vec3, k float64) ArmAngles {
	return ArmAngles{
		Raise:   (elbow.Y() - shoulder.Y()) * k,
		Forward: (elbow.Z() - shoulder.Z()) * k,
		Side:    (elbow.X() - shoulder.X()) * k,
		Bend:    math.Pi - AngleBetween(shoulder, elbow, wrist),
	}
}

// Targets measures the frame and maps it onto bone channels. It reports
// false, producing no targets, when there is no usable frame or when any
// retargeted bone is missing from the rig.
func (r Retargeter) Targets(f *LandmarkFrame, bones BoneLookup) (Targets, bool) {
	if f == nil || !f.Visible(r.Config.MinVisibility) {
		return nil, false
	}
	if !hasAll(bones, r.Rig.RetargetBones()) {
		return nil, false
	}
	return r.Map(r.Measure(f)), true
}

// Map applies the mirrored sign conventions of the rig to measured angles.
// The left side of the skeleton has its local axes flipped.
func (r Retargeter) Map(a RetargetAngles) Targets {
	// Y is always driven so that turning arm side off eases it back to
	// the bind pose instead of holding the last side angle.
	leftSide, rightSide := 0.0, 0.0
	if r.Config.ApplyArmSide {
		leftSide, rightSide = -a.LeftArm.Side, a.RightArm.Side
	}
	return Targets{
		r.Rig.LeftUpperArm: {
			Value: mgl64.Vec3{a.LeftArm.Forward, leftSide, -a.LeftArm.Raise},
			Mask:  ChannelXYZ,
			Alpha: r.Alpha,
		},
		r.Rig.RightUpperArm: {
			Value: mgl64.Vec3{a.RightArm.Forward, rightSide, a.RightArm.Raise},
			Mask:  ChannelXYZ,
			Alpha: r.Alpha,
		},
		r.Rig.LeftForearm: {
			Value: mgl64.Vec3{0, 0, -a.LeftArm.Bend},
			Mask:  ChannelZ,
			Alpha: r.Alpha,
		},
		r.Rig.RightForearm: {
			Value: mgl64.Vec3{0, 0, a.RightArm.Bend},
			Mask:  ChannelZ,
			Alpha: r.Alpha,
		},
		r.Rig.Head: {
			Value: mgl64.Vec3{a.HeadPitch, -a.HeadYaw, a.HeadRoll},
			Mask:  ChannelXYZ,
			Alpha: r.Alpha,
		},
	}
}
