// Package scene adapts a glTF skeletal asset into the node graph the pose
// engine drives. It owns bone lookup by name, world-matrix commits and
// whole-scene bounds. Nothing here talks to a GPU.
package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/Surajvthakur/Character-Model/internal/pose"
)

var (
	ErrNoScene    = errors.New("gltf document has no nodes")
	ErrNoSkeleton = errors.New("gltf document has no skinned skeleton")
)

// Scene is a loaded asset's node graph.
type Scene struct {
	Roots []*Node

	nodes     []*Node
	bones     map[string]*Node
	boneOrder []string
}

// Load opens a .gltf or .glb file.
func Load(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf %s: %w", filepath.Base(path), err)
	}
	return fromDocument(doc, filepath.Dir(path))
}

// FromDocument builds a scene from an already decoded document. External
// buffer URIs are not resolved; embedded buffer data is.
func FromDocument(doc *gltf.Document) (*Scene, error) {
	return fromDocument(doc, "")
}

func fromDocument(doc *gltf.Document, baseDir string) (*Scene, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, ErrNoScene
	}

	joints := make(map[int]bool)
	for _, skin := range doc.Skins {
		for _, j := range skin.Joints {
			joints[int(j)] = true
		}
	}
	if len(joints) == 0 {
		return nil, ErrNoSkeleton
	}

	s := &Scene{
		nodes: make([]*Node, len(doc.Nodes)),
		bones: make(map[string]*Node),
	}

	for i, gn := range doc.Nodes {
		n := &Node{
			Index: i,
			Name:  gn.Name,
			Bone:  joints[i],
		}
		if n.Name == "" {
			n.Name = fmt.Sprintf("node_%d", i)
		}
		if gn.Matrix != [16]float64{} && gn.Matrix != gltf.DefaultMatrix {
			n.Position, n.Rotation, n.Scale = decompose(mgl64.Mat4(gn.Matrix))
		} else {
			n.Position = mgl64.Vec3(gn.TranslationOrDefault())
			n.Rotation = EulerFromQuat(gn.RotationOrDefault())
			n.Scale = mgl64.Vec3(gn.ScaleOrDefault())
		}
		if gn.Mesh != nil {
			box, err := meshBox(doc, int(*gn.Mesh), baseDir)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.Name, err)
			}
			n.Box = box
		}
		s.nodes[i] = n
	}

	for i, gn := range doc.Nodes {
		for _, c := range gn.Children {
			ci := int(c)
			if ci < 0 || ci >= len(s.nodes) || s.nodes[ci].Parent != nil {
				continue
			}
			s.nodes[ci].Parent = s.nodes[i]
			s.nodes[i].Children = append(s.nodes[i].Children, s.nodes[ci])
		}
	}

	s.Roots = sceneRoots(doc, s.nodes)

	s.Traverse(func(n *Node) {
		if !n.Bone {
			return
		}
		if _, dup := s.bones[n.Name]; dup {
			return
		}
		s.bones[n.Name] = n
		s.boneOrder = append(s.boneOrder, n.Name)
	})

	s.UpdateWorldMatrix()
	return s, nil
}

func sceneRoots(doc *gltf.Document, nodes []*Node) []*Node {
	var roots []*Node
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			idx = int(*doc.Scene)
		}
		for _, r := range doc.Scenes[idx].Nodes {
			ri := int(r)
			if ri >= 0 && ri < len(nodes) && nodes[ri].Parent == nil {
				roots = append(roots, nodes[ri])
			}
		}
		if len(roots) > 0 {
			return roots
		}
	}
	for _, n := range nodes {
		if n.Parent == nil {
			roots = append(roots, n)
		}
	}
	return roots
}

// Traverse visits every node reachable from the roots, depth first, parents
// before children.
func (s *Scene) Traverse(fn func(*Node)) {
	var walk func(*Node)
	walk = func(n *Node) {
		fn(n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range s.Roots {
		walk(r)
	}
}

// Bone returns the bone node with the given name.
func (s *Scene) Bone(name string) (*Node, bool) {
	n, ok := s.bones[name]
	return n, ok
}

func (s *Scene) Has(name string) bool {
	_, ok := s.bones[name]
	return ok
}

// Local returns the live local rotation and position of a bone.
func (s *Scene) Local(name string) (mgl64.Vec3, mgl64.Vec3, bool) {
	n, ok := s.bones[name]
	if !ok {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	return n.Rotation, n.Position, true
}

// BoneNames returns bone names in traversal order.
func (s *Scene) BoneNames() []string {
	out := make([]string, len(s.boneOrder))
	copy(out, s.boneOrder)
	return out
}

// Nodes returns every node in document order.
func (s *Scene) Nodes() []*Node {
	return s.nodes
}

// RegisterBindPoses records every bone's current transform in r, then
// seals it.
func (s *Scene) RegisterBindPoses(r *pose.BindPoseRegistry) {
	for _, name := range s.boneOrder {
		n := s.bones[name]
		r.Register(name, n.Rotation, n.Position)
	}
	r.Seal()
}

// Apply writes a composed pose onto the bone nodes and commits world
// matrices. Bones the scene does not have are ignored. It returns the
// number of bones written.
func (s *Scene) Apply(p pose.Pose) int {
	applied := 0
	for name, t := range p {
		n, ok := s.bones[name]
		if !ok {
			continue
		}
		n.Rotation = t.Rotation
		n.Position = t.Position
		applied++
	}
	if applied > 0 {
		s.UpdateWorldMatrix()
	}
	return applied
}

// UpdateWorldMatrix recomputes every world matrix from the roots down.
func (s *Scene) UpdateWorldMatrix() {
	for _, r := range s.Roots {
		r.UpdateWorldMatrix(true)
	}
}

// Bounds returns the bounding sphere of every mesh in the scene, in world
// space. A scene without geometry yields a zero sphere.
func (s *Scene) Bounds() pose.SceneBounds {
	box := EmptyBox()
	s.Traverse(func(n *Node) {
		if n.Box != nil {
			box.Union(n.Box.Transform(n.World()))
		}
	})
	return box.Sphere()
}

func meshBox(doc *gltf.Document, meshIdx int, baseDir string) (*Box, error) {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIdx)
	}
	box := EmptyBox()
	for _, prim := range doc.Meshes[meshIdx].Primitives {
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		b, err := accessorBox(doc, int(posIdx), baseDir)
		if err != nil {
			return nil, fmt.Errorf("read positions: %w", err)
		}
		box.Union(b)
	}
	if box.Empty() {
		return nil, nil
	}
	return &box, nil
}

// accessorBox uses the accessor's declared min/max, reading the vertex
// data only when an exporter left them out.
func accessorBox(doc *gltf.Document, idx int, baseDir string) (Box, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return Box{}, fmt.Errorf("accessor %d out of range", idx)
	}
	acc := doc.Accessors[idx]
	if len(acc.Min) >= 3 && len(acc.Max) >= 3 {
		return Box{
			Min: mgl64.Vec3{float64(acc.Min[0]), float64(acc.Min[1]), float64(acc.Min[2])},
			Max: mgl64.Vec3{float64(acc.Max[0]), float64(acc.Max[1]), float64(acc.Max[2])},
		}, nil
	}

	positions, err := readAccessorVec3(doc, acc, baseDir)
	if err != nil {
		return Box{}, err
	}
	box := EmptyBox()
	for _, p := range positions {
		box.ExpandPoint(p)
	}
	return box, nil
}

func readAccessorVec3(doc *gltf.Document, acc *gltf.Accessor, baseDir string) ([]mgl64.Vec3, error) {
	if acc.BufferView == nil {
		return nil, nil
	}
	if acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("unsupported position component type %v", acc.ComponentType)
	}
	view := doc.BufferViews[int(*acc.BufferView)]
	data, err := bufferData(doc.Buffers[int(view.Buffer)], baseDir)
	if err != nil {
		return nil, err
	}

	offset := int(view.ByteOffset) + int(acc.ByteOffset)
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = 12
	}
	count := int(acc.Count)
	if count > 0 && offset+(count-1)*stride+12 > len(data) {
		return nil, fmt.Errorf("accessor overruns buffer")
	}

	out := make([]mgl64.Vec3, count)
	for i := 0; i < count; i++ {
		at := offset + i*stride
		for c := 0; c < 3; c++ {
			bits := binary.LittleEndian.Uint32(data[at+c*4:])
			out[i][c] = float64(math.Float32frombits(bits))
		}
	}
	return out, nil
}

func bufferData(buffer *gltf.Buffer, baseDir string) ([]byte, error) {
	if len(buffer.Data) > 0 {
		return buffer.Data, nil
	}
	if buffer.URI == "" {
		return nil, fmt.Errorf("buffer has no URI and no embedded data")
	}
	if buffer.IsEmbeddedResource() {
		return nil, fmt.Errorf("data URI not supported")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("external buffer %q without base directory", buffer.URI)
	}
	data, err := os.ReadFile(filepath.Join(baseDir, buffer.URI))
	if err != nil {
		return nil, fmt.Errorf("read buffer file: %w", err)
	}
	return data, nil
}
