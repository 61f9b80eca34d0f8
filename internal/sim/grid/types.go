package grid

import "fmt"

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Dims is the voxel extent of the grid.
type Dims = Vec3i

// Volume returns X*Y*Z, or 0 when any axis is non-positive.
func Volume(d Dims) int {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return 0
	}
	return d.X * d.Y * d.Z
}

// Valid reports whether every axis is strictly positive.
func Valid(d Dims) bool { return d.X > 0 && d.Y > 0 && d.Z > 0 }

type Vec3 [3]float32

type Vec4 [4]float32

// Box is the half-open voxel box [Origin, Origin+Size).
type Box struct {
	Origin Vec3i `json:"origin"`
	Size   Vec3i `json:"size"`
}

// Whole returns the box covering the full grid.
func Whole(d Dims) Box { return Box{Size: d} }

func (b Box) Max() Vec3i { return b.Origin.Add(b.Size) }

func (b Box) Empty() bool { return b.Size.X <= 0 || b.Size.Y <= 0 || b.Size.Z <= 0 }

func (b Box) Contains(x, y, z int) bool {
	m := b.Max()
	return b.Origin.X <= x && b.Origin.Y <= y && b.Origin.Z <= z &&
		x < m.X && y < m.Y && z < m.Z
}

// Clip intersects the box with [0,d). The result may be empty.
func (b Box) Clip(d Dims) Box {
	lo := Vec3i{X: max(b.Origin.X, 0), Y: max(b.Origin.Y, 0), Z: max(b.Origin.Z, 0)}
	m := b.Max()
	hi := Vec3i{X: min(m.X, d.X), Y: min(m.Y, d.Y), Z: min(m.Z, d.Z)}
	out := Box{Origin: lo, Size: Vec3i{X: hi.X - lo.X, Y: hi.Y - lo.Y, Z: hi.Z - lo.Z}}
	if out.Empty() {
		return Box{Origin: lo}
	}
	return out
}

func (b Box) String() string { return fmt.Sprintf("%s+%s", b.Origin, b.Size) }
