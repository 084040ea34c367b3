package pose

import "github.com/go-gl/mathgl/mgl64"

// BindPose is a bone's rest transform as authored in the asset.
type BindPose struct {
	Rotation mgl64.Vec3 `yaml:"rotation"`
	Position mgl64.Vec3 `yaml:"position"`
}

// RegistryState tracks whether a load's traversal has finished.
type RegistryState int

const (
	RegistryUninitialized RegistryState = iota
	RegistryPopulated
)

func (s RegistryState) String() string {
	switch s {
	case RegistryUninitialized:
		return "uninitialized"
	case RegistryPopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// BindPoseRegistry captures each bone's rest transform once per load.
// Entries are first-write-wins and never mutated afterwards; a reload
// builds a new registry.
type BindPoseRegistry struct {
	poses map[string]BindPose
	order []string
	state RegistryState
}

func NewBindPoseRegistry() *BindPoseRegistry {
	return &BindPoseRegistry{poses: make(map[string]BindPose)}
}

// Register records the rest transform of a bone. It returns false and
// leaves the registry untouched if the bone is already registered.
func (r *BindPoseRegistry) Register(name string, rotation, position mgl64.Vec3) bool {
	if _, exists := r.poses[name]; exists {
		return false
	}
	r.poses[name] = BindPose{Rotation: rotation, Position: position}
	r.order = append(r.order, name)
	return true
}

// Seal marks the end of the load traversal. Calling it again is a no-op.
// Bones discovered after sealing can still be registered.
func (r *BindPoseRegistry) Seal() {
	if r.state == RegistryUninitialized {
		r.state = RegistryPopulated
	}
}

func (r *BindPoseRegistry) State() RegistryState {
	return r.state
}

// Get returns the registered bind pose of a bone.
func (r *BindPoseRegistry) Get(name string) (BindPose, bool) {
	bp, ok := r.poses[name]
	return bp, ok
}

// Resolve returns the registered bind pose, falling back to the bone's
// live transform when it was never registered.
func (r *BindPoseRegistry) Resolve(name string, bones BoneLookup) BindPose {
	if bp, ok := r.poses[name]; ok {
		return bp
	}
	if bones != nil {
		if rot, pos, ok := bones.Local(name); ok {
			return BindPose{Rotation: rot, Position: pos}
		}
	}
	return BindPose{}
}

// Names returns registered bones in discovery order.
func (r *BindPoseRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *BindPoseRegistry) Len() int {
	return len(r.poses)
}
