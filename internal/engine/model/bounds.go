package model

import "github.com/Faultbox/stlviewer/pkg/math"

// emptyBounds is inverted so the first point always expands it.
func emptyBounds() Bounds {
	return Bounds{
		Min: [3]float32{1e30, 1e30, 1e30},
		Max: [3]float32{-1e30, -1e30, -1e30},
	}
}

// IsEmpty reports whether no point has been added to b.
func (b Bounds) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Size returns the box extent along each axis.
func (b Bounds) Size() math.Vec3 {
	if b.IsEmpty() {
		return math.Vec3{}
	}
	return math.V3(b.Max).Sub(math.V3(b.Min))
}

// Center returns the box midpoint.
func (b Bounds) Center() math.Vec3 {
	if b.IsEmpty() {
		return math.Vec3{}
	}
	return math.V3(b.Min).Add(math.V3(b.Max)).Scale(0.5)
}

// Transform returns the bounds of all eight corners of b after applying m.
func (b Bounds) Transform(m math.Mat4) Bounds {
	if b.IsEmpty() || m.IsIdentity() {
		return b
	}
	out := emptyBounds()
	for i := 0; i < 8; i++ {
		corner := [3]float32{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		updateBounds(&out, m.TransformPoint(corner))
	}
	return out
}

func updateBounds(b *Bounds, p [3]float32) {
	if p[0] < b.Min[0] {
		b.Min[0] = p[0]
	}
	if p[1] < b.Min[1] {
		b.Min[1] = p[1]
	}
	if p[2] < b.Min[2] {
		b.Min[2] = p[2]
	}
	if p[0] > b.Max[0] {
		b.Max[0] = p[0]
	}
	if p[1] > b.Max[1] {
		b.Max[1] = p[1]
	}
	if p[2] > b.Max[2] {
		b.Max[2] = p[2]
	}
}
