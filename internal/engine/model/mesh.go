package model

import (
	"github.com/Faultbox/stlviewer/pkg/formats"
	"github.com/Faultbox/stlviewer/pkg/math"
)

// BuildMesh creates a mesh from parsed STL data.
// Returns nil if the solid has no usable (non-degenerate) triangles.
func BuildMesh(s *formats.STL, opts BuildOptions) *Mesh {
	if s == nil || len(s.Triangles) == 0 {
		return nil
	}

	vertices := make([]Vertex, 0, len(s.Triangles)*3)
	indices := make([]uint32, 0, len(s.Triangles)*3)
	bounds := emptyBounds()

	for _, tri := range s.Triangles {
		v0 := math.V3(tri.Vertices[0])
		v1 := math.V3(tri.Vertices[1])
		v2 := math.V3(tri.Vertices[2])
		normalVec := v1.Sub(v0).Cross(v2.Sub(v0))

		// Degenerate triangle detection
		if normalVec.Length() < 1e-10 {
			continue
		}
		normal := normalVec.Normalize().Array()

		base := uint32(len(vertices))
		for _, p := range tri.Vertices {
			updateBounds(&bounds, p)
			vertices = append(vertices, Vertex{Position: p, Normal: normal})
		}
		indices = append(indices, base, base+1, base+2)
	}

	if len(vertices) == 0 {
		return nil
	}

	if opts.SmoothNormals {
		SmoothNormals(vertices)
	}

	return &Mesh{
		Vertices:  vertices,
		Indices:   indices,
		Bounds:    bounds,
		Transform: math.Identity(),
	}
}

// RestingPose returns the canonical node transform for a freshly loaded
// model: rotate about X by rotateXDeg degrees, then lift by restHeight.
func RestingPose(restHeight, rotateXDeg float32) math.Mat4 {
	return math.Translate(0, restHeight, 0).Mul(math.RotateX(math.Radians(rotateXDeg)))
}

// SetTransform replaces the pending node transform.
func (m *Mesh) SetTransform(t math.Mat4) {
	m.Transform = t
}

// Bake applies the pending transform to every vertex, recomputes the bounds
// and resets the transform to identity. Baking an already baked mesh is a
// no-op.
func (m *Mesh) Bake() {
	if m.Transform.IsIdentity() {
		return
	}

	bounds := emptyBounds()
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Position = m.Transform.TransformPoint(v.Position)
		v.Normal = math.V3(m.Transform.TransformDirection(v.Normal)).Normalize().Array()
		updateBounds(&bounds, v.Position)
	}

	m.Bounds = bounds
	m.Transform = math.Identity()
}

// WorldBounds returns the mesh bounds with the pending transform applied.
func (m *Mesh) WorldBounds() Bounds {
	return m.Bounds.Transform(m.Transform)
}

// TriangleCount returns the number of triangles in the index buffer.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// SmoothNormals averages normals at shared vertex positions.
// This reduces faceted appearance on scanned models.
func SmoothNormals(vertices []Vertex) {
	const epsilon float32 = 0.001

	// Group vertices by quantized position for O(n) lookup
	posMap := make(map[[3]int32][]int)
	for i := range vertices {
		key := [3]int32{
			int32(vertices[i].Position[0] / epsilon),
			int32(vertices[i].Position[1] / epsilon),
			int32(vertices[i].Position[2] / epsilon),
		}
		posMap[key] = append(posMap[key], i)
	}

	for _, idxs := range posMap {
		if len(idxs) < 2 {
			continue
		}

		var sum math.Vec3
		for _, idx := range idxs {
			sum = sum.Add(math.V3(vertices[idx].Normal))
		}

		avg := sum.Normalize()
		if avg == (math.Vec3{}) {
			continue
		}
		for _, idx := range idxs {
			vertices[idx].Normal = avg.Array()
		}
	}
}
