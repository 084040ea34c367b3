package renderer

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/Surajvthakur/Character-Model/internal/bus"
	"github.com/Surajvthakur/Character-Model/internal/pose"
)

// Framer repositions the camera from a scene's bounding sphere, once per
// model load.
type Framer struct {
	logger zerolog.Logger
	margin float32

	mu     sync.Mutex
	camera *Camera
	framed map[string]bool
}

func NewFramer(camera *Camera, margin float32, logger zerolog.Logger) *Framer {
	return &Framer{
		camera: camera,
		margin: margin,
		framed: make(map[string]bool),
		logger: logger,
	}
}

// Attach subscribes the framer to bounds events.
func (f *Framer) Attach(eventBus *bus.EventBus) {
	eventBus.Subscribe(bus.EventTypeBoundsReady, func(e bus.Event) {
		loadID, _ := e.Data["load_id"].(string)
		bounds, ok := e.Data["bounds"].(pose.SceneBounds)
		if !ok {
			f.logger.Warn().Msg("Bounds event without bounds")
			return
		}
		f.Frame(loadID, bounds)
	})
}

// Frame fits the camera to bounds unless this load was already framed.
// It reports whether the camera moved.
func (f *Framer) Frame(loadID string, bounds pose.SceneBounds) bool {
	if !bounds.Valid() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.framed[loadID] {
		return false
	}
	f.framed[loadID] = true

	center := mgl32.Vec3{float32(bounds.Center[0]), float32(bounds.Center[1]), float32(bounds.Center[2])}
	f.camera.FrameSphere(center, float32(bounds.Radius), f.margin)

	f.logger.Info().
		Str("load_id", loadID).
		Float64("radius", bounds.Radius).
		Float32("distance", f.camera.Distance()).
		Msg("Camera framed to scene")
	return true
}

// CameraView is a copy of the camera's placement and matrices.
type CameraView struct {
	Position   mgl32.Vec3
	Target     mgl32.Vec3
	Distance   float32
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

// View returns the camera's current placement and matrices.
func (f *Framer) View() CameraView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view()
}

func (f *Framer) view() CameraView {
	return CameraView{
		Position:   f.camera.Position,
		Target:     f.camera.Target,
		Distance:   f.camera.Distance(),
		View:       f.camera.ViewMatrix(),
		Projection: f.camera.ProjectionMatrix(),
	}
}

// Orbit turns the camera around its target by yaw and pitch degrees.
func (f *Framer) Orbit(yaw, pitch float32) CameraView {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.camera.Orbit(yaw, pitch)
	return f.view()
}

// Zoom moves the camera toward the target by delta.
func (f *Framer) Zoom(delta float32) CameraView {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.camera.Zoom(delta)
	return f.view()
}

// SetAspectRatio follows viewport resizes.
func (f *Framer) SetAspectRatio(aspect float32) {
	if aspect <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.camera.SetAspectRatio(aspect)
}
