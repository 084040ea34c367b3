package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Surajvthakur/Character-Model/internal/pose"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyBox returns a box that any point expands.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

func (b Box) Empty() bool {
	return b.Max.X() < b.Min.X() || b.Max.Y() < b.Min.Y() || b.Max.Z() < b.Min.Z()
}

// ExpandPoint grows the box to contain p.
func (b *Box) ExpandPoint(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

// Union grows the box to contain o.
func (b *Box) Union(o Box) {
	if o.Empty() {
		return
	}
	b.ExpandPoint(o.Min)
	b.ExpandPoint(o.Max)
}

// Transform returns the world-space AABB of the box's eight corners under m.
func (b Box) Transform(m mgl64.Mat4) Box {
	out := EmptyBox()
	if b.Empty() {
		return out
	}
	for i := 0; i < 8; i++ {
		corner := mgl64.Vec3{b.Min.X(), b.Min.Y(), b.Min.Z()}
		if i&1 != 0 {
			corner[0] = b.Max.X()
		}
		if i&2 != 0 {
			corner[1] = b.Max.Y()
		}
		if i&4 != 0 {
			corner[2] = b.Max.Z()
		}
		out.ExpandPoint(mgl64.TransformCoordinate(corner, m))
	}
	return out
}

// Sphere reduces the box to the sphere through its corners.
func (b Box) Sphere() pose.SceneBounds {
	if b.Empty() {
		return pose.SceneBounds{}
	}
	return pose.SceneBounds{
		Center: b.Min.Add(b.Max).Mul(0.5),
		Radius: b.Max.Sub(b.Min).Len() / 2,
	}
}
