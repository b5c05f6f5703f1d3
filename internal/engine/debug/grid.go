// Package debug provides reference geometry drawn alongside models.
package debug

import "github.com/Faultbox/stlviewer/internal/engine/model"

// DefaultGridDivisions is the number of cells along each side of the grid.
const DefaultGridDivisions = 10

// DefaultGridHeight is the Y level the grid is placed at.
const DefaultGridHeight = 5.0

// GridColor is the line color (0x888888).
var GridColor = [3]float32{0x88 / 255.0, 0x88 / 255.0, 0x88 / 255.0}

// Grid is a square line grid in the XZ plane.
type Grid struct {
	Size      float32    `json:"size"`
	Divisions int        `json:"divisions"`
	Center    [3]float32 `json:"center"`
}

// LineVertex represents a vertex for grid line rendering.
type LineVertex struct {
	X, Y, Z float32 // Position
	R, G, B float32 // Color
}

// GridForBounds sizes a grid to twice the largest extent of b and centers it
// under b in X/Z at the given height.
func GridForBounds(b model.Bounds, divisions int, height float32) Grid {
	if divisions <= 0 {
		divisions = DefaultGridDivisions
	}
	center := b.Center()
	return Grid{
		Size:      b.Size().MaxComponent() * 2,
		Divisions: divisions,
		Center:    [3]float32{center.X, height, center.Z},
	}
}

// Bounds returns the flat box covered by the grid.
func (g Grid) Bounds() model.Bounds {
	half := g.Size / 2
	return model.Bounds{
		Min: [3]float32{g.Center[0] - half, g.Center[1], g.Center[2] - half},
		Max: [3]float32{g.Center[0] + half, g.Center[1], g.Center[2] + half},
	}
}

// Lines generates line vertices for the grid, two per line.
// Returns 2*(Divisions+1) lines.
func (g Grid) Lines() []LineVertex {
	if g.Divisions <= 0 {
		return nil
	}

	half := g.Size / 2
	step := g.Size / float32(g.Divisions)
	cx, y, cz := g.Center[0], g.Center[1], g.Center[2]
	c := GridColor

	vertices := make([]LineVertex, 0, 4*(g.Divisions+1))
	for i := 0; i <= g.Divisions; i++ {
		k := -half + float32(i)*step
		vertices = append(vertices,
			// Line parallel to Z
			LineVertex{cx + k, y, cz - half, c[0], c[1], c[2]},
			LineVertex{cx + k, y, cz + half, c[0], c[1], c[2]},
			// Line parallel to X
			LineVertex{cx - half, y, cz + k, c[0], c[1], c[2]},
			LineVertex{cx + half, y, cz + k, c[0], c[1], c[2]},
		)
	}
	return vertices
}
