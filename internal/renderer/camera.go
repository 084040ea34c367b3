// Package renderer holds the camera-framing collaborator: a perspective
// camera with an orbit target that is fitted once to each loaded scene.
package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraConfig is the initial camera state before any scene is framed.
type CameraConfig struct {
	FOV      float32    `mapstructure:"fov"`
	Position [3]float32 `mapstructure:"position"`
	Margin   float32    `mapstructure:"margin"`
	Aspect   float32    `mapstructure:"aspect"`
}

func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		FOV:      50,
		Position: [3]float32{0, 0, 5},
		Margin:   1.2,
		Aspect:   16.0 / 9.0,
	}
}

// Camera represents a 3D camera
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	viewMatrix       mgl32.Mat4
	projectionMatrix mgl32.Mat4
	dirty            bool
}

func NewCamera(position, target, up mgl32.Vec3, fov, aspect, near, far float32) *Camera {
	c := &Camera{
		Position:    position,
		Target:      target,
		Up:          up,
		FOV:         fov,
		AspectRatio: aspect,
		NearPlane:   near,
		FarPlane:    far,
		dirty:       true,
	}
	c.updateMatrices()
	return c
}

// NewDefaultCamera looks at the origin from cfg.Position.
func NewDefaultCamera(cfg CameraConfig) *Camera {
	aspect := cfg.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	return NewCamera(
		mgl32.Vec3(cfg.Position),
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 1, 0},
		cfg.FOV,
		aspect,
		0.1, 1000,
	)
}

// ViewMatrix returns the view matrix
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

// ProjectionMatrix returns the projection matrix
func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Target, c.Up)
	c.projectionMatrix = mgl32.Perspective(
		mgl32.DegToRad(c.FOV),
		c.AspectRatio,
		c.NearPlane,
		c.FarPlane,
	)
	c.dirty = false
}

// SetAspectRatio updates aspect ratio
func (c *Camera) SetAspectRatio(aspect float32) {
	c.AspectRatio = aspect
	c.dirty = true
}

// Forward returns the camera's forward direction
func (c *Camera) Forward() mgl32.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

// Distance returns how far the camera sits from its orbit target.
func (c *Camera) Distance() float32 {
	return c.Position.Sub(c.Target).Len()
}

// FrameSphere moves the target to center and backs the camera off along
// its current viewing direction until a sphere of the given radius fits
// the vertical field of view, scaled by margin.
func (c *Camera) FrameSphere(center mgl32.Vec3, radius, margin float32) {
	if radius <= 0 {
		return
	}
	if margin <= 0 {
		margin = 1
	}

	dir := c.Position.Sub(c.Target)
	if dir.Len() < 1e-6 {
		dir = mgl32.Vec3{0, 0, 1}
	}
	dir = dir.Normalize()

	halfFov := float64(mgl32.DegToRad(c.FOV)) / 2
	distance := float32(float64(radius)/math.Sin(halfFov)) * margin

	c.Target = center
	c.Position = center.Add(dir.Mul(distance))
	c.NearPlane = distance / 100
	c.FarPlane = distance * 100
	c.dirty = true
}

// Orbit rotates the camera around the target
func (c *Camera) Orbit(deltaYaw, deltaPitch float32) {
	yawRad := float64(mgl32.DegToRad(deltaYaw))
	pitchRad := float64(mgl32.DegToRad(deltaPitch))

	relPos := c.Position.Sub(c.Target)
	distance := relPos.Len()

	theta := math.Atan2(float64(relPos.X()), float64(relPos.Z()))
	phi := math.Acos(float64(relPos.Y()) / float64(distance))

	theta += yawRad
	phi += pitchRad

	// Clamp pitch to avoid gimbal lock
	phi = math.Max(0.1, math.Min(math.Pi-0.1, phi))

	newPos := mgl32.Vec3{
		float32(math.Sin(phi) * math.Sin(theta)),
		float32(math.Cos(phi)),
		float32(math.Sin(phi) * math.Cos(theta)),
	}.Mul(distance)

	c.Position = c.Target.Add(newPos)
	c.dirty = true
}

// Zoom moves camera toward/away from target
func (c *Camera) Zoom(delta float32) {
	direction := c.Target.Sub(c.Position).Normalize()
	c.Position = c.Position.Add(direction.Mul(delta))

	if c.Position.Sub(c.Target).Len() < 0.1 {
		c.Position = c.Target.Add(direction.Mul(-0.1))
	}

	c.dirty = true
}
