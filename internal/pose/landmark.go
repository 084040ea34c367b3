// Package pose turns landmark frames, emotion state and manual bone offsets
// into per-bone joint transforms for a single known skeleton.
//
// Everything in this package is pure computation: it never touches the scene
// graph. The caller hands in a BoneLookup and receives a Pose value that a
// thin adapter writes onto the live nodes.
package pose

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Landmark indices of the body pose estimator used by the retargeter.
const (
	Nose          = 0
	LeftEar       = 7
	RightEar      = 8
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16

	// MinFrameLandmarks is the smallest frame that covers every index above.
	MinFrameLandmarks = 17

	// FullBodyLandmarks is the size of a complete estimator frame.
	FullBodyLandmarks = 33
)

// requiredLandmarks are the indices the retargeter reads.
var requiredLandmarks = []int{
	Nose, LeftEar, RightEar,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
}

// Landmark is one estimated keypoint in detector space.
// X and Y are image fractions in [0,1], Z is relative depth where more
// negative means closer to the camera.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// LandmarkFrame is a validated, positionally indexed set of landmarks.
type LandmarkFrame struct {
	Points    []Landmark
	Timestamp time.Time
}

// NewLandmarkFrame validates raw estimator output and copies it into a frame.
// Short frames or frames with non-finite coordinates are rejected with
// ErrMalformedFrame; callers treat that as "no detection".
func NewLandmarkFrame(points []Landmark) (*LandmarkFrame, error) {
	if len(points) < MinFrameLandmarks {
		return nil, fmt.Errorf("%w: %d landmarks, need at least %d", ErrMalformedFrame, len(points), MinFrameLandmarks)
	}
	for _, idx := range requiredLandmarks {
		p := points[idx]
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return nil, fmt.Errorf("%w: landmark %d is not finite", ErrMalformedFrame, idx)
		}
	}

	frame := &LandmarkFrame{
		Points:    make([]Landmark, len(points)),
		Timestamp: time.Now(),
	}
	copy(frame.Points, points)
	return frame, nil
}

// At returns the normalized position of landmark idx.
func (f *LandmarkFrame) At(idx int) mgl64.Vec3 {
	return Normalize(f.Points[idx])
}

// Visible reports whether every landmark the retargeter needs reaches
// minVisibility. Landmarks without a visibility score count as visible.
func (f *LandmarkFrame) Visible(minVisibility float64) bool {
	if f == nil {
		return false
	}
	for _, idx := range requiredLandmarks {
		if v := f.Points[idx].Visibility; v != nil && *v < minVisibility {
			return false
		}
	}
	return true
}

// Normalize maps detector coordinates into a centered, y-up, toward-camera
// positive frame: (x-0.5, -(y-0.5), -z).
func Normalize(l Landmark) mgl64.Vec3 {
	return mgl64.Vec3{l.X - 0.5, -(l.Y - 0.5), -l.Z}
}

// AngleBetween returns the angle at vertex b between the rays b→a and b→c,
// in [0, π]. A zero-length ray yields 0.
func AngleBetween(a, b, c mgl64.Vec3) float64 {
	ba := a.Sub(b)
	bc := c.Sub(b)
	if ba.Len() < epsilon || bc.Len() < epsilon {
		return 0
	}
	dot := ba.Normalize().Dot(bc.Normalize())
	return math.Acos(clamp(dot, -1, 1))
}

func midpoint(a, b mgl64.Vec3) mgl64.Vec3 {
	return a.Add(b).Mul(0.5)
}
