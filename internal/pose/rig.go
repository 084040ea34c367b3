package pose

import "github.com/go-gl/mathgl/mgl64"

// Rig names the bones the engine drives. Defaults match the shipped
// Bip001 character asset.
type Rig struct {
	Head          string `mapstructure:"head" yaml:"head"`
	Neck          string `mapstructure:"neck" yaml:"neck"`
	Spine         string `mapstructure:"spine" yaml:"spine"`
	LeftUpperArm  string `mapstructure:"left_upper_arm" yaml:"left_upper_arm"`
	RightUpperArm string `mapstructure:"right_upper_arm" yaml:"right_upper_arm"`
	LeftForearm   string `mapstructure:"left_forearm" yaml:"left_forearm"`
	RightForearm  string `mapstructure:"right_forearm" yaml:"right_forearm"`
}

// DefaultRig returns the bone names of the Bip001 skeleton.
func DefaultRig() Rig {
	return Rig{
		Head:          "Bip001_Head_087",
		Neck:          "Bip001_Neck_086",
		Spine:         "Bip001_Spine2_052",
		LeftUpperArm:  "Bip001_L_UpperArm",
		RightUpperArm: "Bip001_R_UpperArm",
		LeftForearm:   "Bip001_L_Forearm",
		RightForearm:  "Bip001_R_Forearm",
	}
}

// RetargetBones lists the bones the landmark retargeter writes.
func (r Rig) RetargetBones() []string {
	return []string{r.LeftUpperArm, r.RightUpperArm, r.LeftForearm, r.RightForearm, r.Head}
}

// EmotionBones lists the bones the emotion poser requires.
func (r Rig) EmotionBones() []string {
	return []string{r.Head, r.Neck, r.Spine}
}

// BoneLookup is a non-owning view of the loaded skeleton.
type BoneLookup interface {
	// Has reports whether a bone with this name exists in the loaded rig.
	Has(name string) bool
	// Local returns the bone's live local Euler rotation and position.
	Local(name string) (rotation, position mgl64.Vec3, ok bool)
}

func hasAll(bones BoneLookup, names []string) bool {
	if bones == nil {
		return false
	}
	for _, name := range names {
		if name == "" || !bones.Has(name) {
			return false
		}
	}
	return true
}

// MissingBones returns the names from want that bones does not have.
func MissingBones(bones BoneLookup, want []string) []string {
	var missing []string
	for _, name := range want {
		if bones == nil || !bones.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
