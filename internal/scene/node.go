package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Node is one transform in the loaded scene graph. Rotation is kept as
// Euler XYZ radians because that is the space the pose engine writes in.
type Node struct {
	Index    int
	Name     string
	Bone     bool
	Rotation mgl64.Vec3
	Position mgl64.Vec3
	Scale    mgl64.Vec3

	Parent   *Node
	Children []*Node

	// Box is the local-space AABB of the node's mesh, nil for nodes
	// without geometry.
	Box *Box

	world mgl64.Mat4
}

// LocalMatrix composes translation, rotation and scale.
func (n *Node) LocalMatrix() mgl64.Mat4 {
	t := mgl64.Translate3D(n.Position.X(), n.Position.Y(), n.Position.Z())
	s := mgl64.Scale3D(n.Scale.X(), n.Scale.Y(), n.Scale.Z())
	return t.Mul4(EulerMatrix(n.Rotation)).Mul4(s)
}

// World returns the world matrix as of the last UpdateWorldMatrix.
func (n *Node) World() mgl64.Mat4 {
	return n.world
}

// UpdateWorldMatrix commits the node's local transform into its world
// matrix and, optionally, into every descendant.
func (n *Node) UpdateWorldMatrix(children bool) {
	local := n.LocalMatrix()
	if n.Parent != nil {
		n.world = n.Parent.world.Mul4(local)
	} else {
		n.world = local
	}
	if !children {
		return
	}
	for _, c := range n.Children {
		c.UpdateWorldMatrix(true)
	}
}

// EulerMatrix builds the rotation matrix for Euler angles applied in XYZ order.
func EulerMatrix(r mgl64.Vec3) mgl64.Mat4 {
	return mgl64.HomogRotate3DX(r.X()).
		Mul4(mgl64.HomogRotate3DY(r.Y())).
		Mul4(mgl64.HomogRotate3DZ(r.Z()))
}

// EulerFromMatrix extracts XYZ Euler angles from the rotation part of m.
// m must be unscaled.
func EulerFromMatrix(m mgl64.Mat4) mgl64.Vec3 {
	m13 := m.At(0, 2)
	y := math.Asin(math.Max(-1, math.Min(1, m13)))
	if math.Abs(m13) < 0.9999999 {
		return mgl64.Vec3{
			math.Atan2(-m.At(1, 2), m.At(2, 2)),
			y,
			math.Atan2(-m.At(0, 1), m.At(0, 0)),
		}
	}
	return mgl64.Vec3{math.Atan2(m.At(2, 1), m.At(1, 1)), y, 0}
}

// EulerFromQuat converts a glTF rotation (x, y, z, w) to XYZ Euler angles.
func EulerFromQuat(q [4]float64) mgl64.Vec3 {
	quat := mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}
	if quat.Len() < 1e-12 {
		return mgl64.Vec3{}
	}
	return EulerFromMatrix(quat.Normalize().Mat4())
}

// decompose splits an affine matrix into translation, XYZ Euler rotation
// and scale.
func decompose(m mgl64.Mat4) (pos, rot, scale mgl64.Vec3) {
	pos = m.Col(3).Vec3()
	scale = mgl64.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}
	r := m
	for i := 0; i < 3; i++ {
		if scale[i] == 0 {
			continue
		}
		col := m.Col(i).Vec3().Mul(1 / scale[i])
		r.SetCol(i, col.Vec4(0))
	}
	r.SetCol(3, mgl64.Vec4{0, 0, 0, 1})
	return pos, EulerFromMatrix(r), scale
}
