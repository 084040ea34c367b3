package pose

import "github.com/go-gl/mathgl/mgl64"

// SceneBounds is the bounding sphere of a loaded scene.
type SceneBounds struct {
	Center mgl64.Vec3 `json:"center"`
	Radius float64    `json:"radius"`
}

// Valid reports whether the sphere is usable for framing.
func (b SceneBounds) Valid() bool {
	if !finite(b.Radius) || b.Radius <= 0 {
		return false
	}
	return finite(b.Center[0]) && finite(b.Center[1]) && finite(b.Center[2])
}

type BoundsState int

const (
	BoundsNotComputed BoundsState = iota
	BoundsSent
)

func (s BoundsState) String() string {
	if s == BoundsSent {
		return "sent"
	}
	return "not_computed"
}

// BoundsReporter emits a scene's bounds at most once per load.
// Degenerate spheres are dropped so the next traversal can retry.
type BoundsReporter struct {
	emit  func(SceneBounds)
	state BoundsState
	sent  SceneBounds
}

func NewBoundsReporter(emit func(SceneBounds)) *BoundsReporter {
	return &BoundsReporter{emit: emit}
}

// Offer hands the reporter a freshly computed sphere. It returns true
// only on the call that actually emitted.
func (r *BoundsReporter) Offer(b SceneBounds) bool {
	if r.state == BoundsSent || !b.Valid() {
		return false
	}
	r.state = BoundsSent
	r.sent = b
	if r.emit != nil {
		r.emit(b)
	}
	return true
}

func (r *BoundsReporter) State() BoundsState {
	return r.state
}

// Sent returns the emitted bounds, if any.
func (r *BoundsReporter) Sent() (SceneBounds, bool) {
	return r.sent, r.state == BoundsSent
}

// Reset rearms the reporter for a new load.
func (r *BoundsReporter) Reset() {
	r.state = BoundsNotComputed
	r.sent = SceneBounds{}
}
