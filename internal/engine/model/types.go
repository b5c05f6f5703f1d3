// Package model builds renderable meshes from parsed STL solids and bakes
// their resting pose into vertex data.
package model

import "github.com/Faultbox/stlviewer/pkg/math"

// Vertex represents a mesh vertex with position and normal.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
}

// Mesh holds the complete mesh data ready for display.
// Transform is the node transform still to be applied to Vertices; it is
// identity once the mesh has been baked.
type Mesh struct {
	Vertices  []Vertex
	Indices   []uint32
	Bounds    Bounds
	Transform math.Mat4
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32 `json:"min"`
	Max [3]float32 `json:"max"`
}

// BuildOptions contains options for mesh building.
type BuildOptions struct {
	// SmoothNormals averages normals of vertices sharing a position.
	SmoothNormals bool
}
