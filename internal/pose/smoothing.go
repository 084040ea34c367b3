package pose

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Lerp moves a toward b by fraction t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Channels selects which Euler components a target drives.
type Channels [3]bool

var (
	ChannelX   = Channels{true, false, false}
	ChannelXY  = Channels{true, true, false}
	ChannelZ   = Channels{false, false, true}
	ChannelXYZ = Channels{true, true, true}
)

// ChannelTarget is a rotation target for some channels of one bone,
// together with the blend factor used to approach it.
type ChannelTarget struct {
	Value mgl64.Vec3
	Mask  Channels
	Alpha float64
}

// Targets maps bone names to rotation targets.
type Targets map[string]ChannelTarget

// Smoother holds the low-pass state of every automatically driven bone.
// State is a rotation delta from the bone's bind pose.
type Smoother struct {
	state map[string]mgl64.Vec3
}

func NewSmoother() *Smoother {
	return &Smoother{state: make(map[string]mgl64.Vec3)}
}

// Step advances the bone's masked channels one tick toward target and
// returns the new smoothed delta. Unmasked channels keep their value.
func (s *Smoother) Step(bone string, target ChannelTarget) mgl64.Vec3 {
	current := s.state[bone]
	alpha := clamp(target.Alpha, 0, 1)
	for i := 0; i < 3; i++ {
		if target.Mask[i] {
			current[i] = Lerp(current[i], target.Value[i], alpha)
		}
	}
	s.state[bone] = current
	return current
}

// Value returns the current smoothed delta for bone.
func (s *Smoother) Value(bone string) (mgl64.Vec3, bool) {
	v, ok := s.state[bone]
	return v, ok
}

// Bones returns the driven bone names in sorted order.
func (s *Smoother) Bones() []string {
	names := make([]string, 0, len(s.state))
	for name := range s.state {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forgets all smoothing state.
func (s *Smoother) Reset() {
	s.state = make(map[string]mgl64.Vec3)
}
