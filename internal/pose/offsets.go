package pose

import (
	"fmt"
	"sort"
	"sync"
)

// TransformKind selects which half of a BoneTransform an edit targets.
type TransformKind string

const (
	KindRotation TransformKind = "rotation"
	KindPosition TransformKind = "position"
)

func ParseTransformKind(s string) (TransformKind, error) {
	switch TransformKind(s) {
	case KindRotation, KindPosition:
		return TransformKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// BoneTransform is a user-authored offset. Rotation is in degrees,
// position in scene units.
type BoneTransform struct {
	Rotation [3]float64 `json:"rotation" yaml:"rotation"`
	Position [3]float64 `json:"position" yaml:"position"`
}

// IsZero reports whether the offset leaves the bind pose untouched.
func (t BoneTransform) IsZero() bool {
	return t == BoneTransform{}
}

// OffsetLimits bound manual edits regardless of what the control surface sends.
type OffsetLimits struct {
	RotationDeg float64 `mapstructure:"rotation_limit_deg"`
	Position    float64 `mapstructure:"position_limit"`
}

func DefaultOffsetLimits() OffsetLimits {
	return OffsetLimits{RotationDeg: 90, Position: 0.2}
}

// ManualOffsets is the per-bone offset layer. Edits replace a whole
// entry under the lock, so a reader never observes a torn transform.
type ManualOffsets struct {
	mu      sync.RWMutex
	entries map[string]BoneTransform
	limits  OffsetLimits
	version uint64
}

func NewManualOffsets(limits OffsetLimits) *ManualOffsets {
	return &ManualOffsets{
		entries: make(map[string]BoneTransform),
		limits:  limits,
	}
}

// Ensure creates a zero entry for bone if none exists.
func (m *ManualOffsets) Ensure(bone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[bone]; !ok {
		m.entries[bone] = BoneTransform{}
		m.version++
	}
}

// Set writes one axis of one kind of a bone's offset, clamped to the
// configured limits.
func (m *ManualOffsets) Set(bone string, kind TransformKind, axis int, value float64) error {
	if axis < 0 || axis > 2 {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	if !finite(value) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.entries[bone]
	switch kind {
	case KindRotation:
		t.Rotation[axis] = clamp(value, -m.limits.RotationDeg, m.limits.RotationDeg)
	case KindPosition:
		t.Position[axis] = clamp(value, -m.limits.Position, m.limits.Position)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	m.entries[bone] = t
	m.version++
	return nil
}

// Get returns the bone's offset, zero if it has none.
func (m *ManualOffsets) Get(bone string) BoneTransform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[bone]
}

// ResetBone zeroes a single bone's offset. The entry itself is kept.
func (m *ManualOffsets) ResetBone(bone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[bone] = BoneTransform{}
	m.version++
}

// ResetAll zeroes every known bone's offset.
func (m *ManualOffsets) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.entries {
		m.entries[name] = BoneTransform{}
	}
	m.version++
}

// SetLimits changes the clamp range for subsequent edits.
func (m *ManualOffsets) SetLimits(limits OffsetLimits) {
	m.mu.Lock()
	m.limits = limits
	m.mu.Unlock()
}

// Snapshot copies the whole map.
func (m *ManualOffsets) Snapshot() map[string]BoneTransform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]BoneTransform, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Bones returns the names with an entry, sorted.
func (m *ManualOffsets) Bones() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version increases on every mutation.
func (m *ManualOffsets) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}
