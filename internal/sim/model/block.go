package model

import (
	"math"

	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/materials"
)

type Vec3 [3]float64

func (v Vec3) Abs() Vec3 { return Vec3{math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])} }

func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v[0] * o[0], v[1] * o[1], v[2] * o[2]} }

// RoundInt rounds each axis half-to-even.
func (v Vec3) RoundInt() grid.Vec3i {
	return grid.Vec3i{
		X: int(math.RoundToEven(v[0])),
		Y: int(math.RoundToEven(v[1])),
		Z: int(math.RoundToEven(v[2])),
	}
}

// Placement is a block's transform relative to its container. Position is in
// the container's unit space, where (0,0,0) is the container centre.
type Placement struct {
	Position    Vec3
	Scale       Vec3
	ParentScale Vec3
}

// VoxelBounds maps the placement onto the integer voxel grid:
//
//	size   = round(|scale| * |parent|)
//	origin = round(|parent| * position - fsize/2 + |parent|/2)
//
// where fsize is the unrounded size. No clamping happens here.
func (p Placement) VoxelBounds() grid.Box {
	parent := p.ParentScale.Abs()
	fSize := p.Scale.Abs().Mul(parent)
	var fPos Vec3
	for i := range fPos {
		fPos[i] = parent[i]*p.Position[i] - fSize[i]/2 + parent[i]/2
	}
	return grid.Box{Origin: fPos.RoundInt(), Size: fSize.RoundInt()}
}

// Block is one placed physical component.
type Block struct {
	Name string
	Placement

	Source   SourceKind
	Material *materials.Properties

	MaterialPercentage float64
	Passability        float64
	Movability         Vec3

	Fan          FanKind
	FanDirection Vec3
	Airflow      float64 // m3/h
	MinRPM       float64
	MaxRPM       float64

	Active bool
}

// NewBlock returns a block with the component defaults: fully solid material
// share, fully passable, free to move on every axis, 100 m3/h at 450..2000 rpm.
func NewBlock(name string, mat *materials.Properties) *Block {
	return &Block{
		Name:               name,
		Placement:          Placement{Scale: Vec3{1, 1, 1}, ParentScale: Vec3{1, 1, 1}},
		Material:           mat,
		MaterialPercentage: 1,
		Passability:        1,
		Movability:         Vec3{1, 1, 1},
		Airflow:            100,
		MinRPM:             450,
		MaxRPM:             2000,
		Active:             true,
	}
}
