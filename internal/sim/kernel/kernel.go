// Package kernel defines the per-voxel numeric update contract the engine
// dispatches once per step, plus a registry of named implementations.
package kernel

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"voxelflow/internal/sim/grid"
)

// Fan is the airflow description of one fan kind, collected from the model.
type Fan struct {
	Direction grid.Vec3 // unit length, or zero
	Airflow   float32   // m3/h
	MinRPM    float32
	MaxRPM    float32
	// Area is the fan face in m2, derived from the voxels the fan occupies.
	Area float32
}

// Fields is the view a kernel gets for one step. Static fields and In are
// read-only; a kernel writes Out and Errors at the voxel it was called for
// and nowhere else.
type Fields struct {
	Dims grid.Dims
	DT   float32

	Errors      *grid.Field[grid.Vec4]
	Source      *grid.Field[int32]
	Fan         *grid.Field[int32]
	Passability *grid.Field[float32]
	Movability  *grid.Field[grid.Vec3]
	HeatModel   *grid.Field[grid.Vec3]

	In  grid.State
	Out grid.State

	// SourcePower is watts per voxel, indexed by source id.
	SourcePower []float32
	// Fans is indexed by fan id; entry 0 is unused.
	Fans []Fan
}

type Kernel interface {
	Name() string
	Voxel(f *Fields, x, y, z int)
}

// Params carries the tunable coefficients a factory may use.
type Params struct {
	Diffusion       float32
	VelocityDamping float32
	PressureRelax   float32
	VoxelSize       float32 // m
	AmbientCoupling float32
	AmbientTemp     float32
}

type Factory func(Params) Kernel

var ErrUnknown = errors.New("unknown kernel")

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a kernel available by name. It panics on duplicates.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("kernel: duplicate registration " + name)
	}
	registry[name] = f
}

func New(name string, p Params) (Kernel, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return f(p), nil
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Func adapts a plain function to Kernel. Handy for tests and tools.
type Func struct {
	ID string
	Fn func(f *Fields, x, y, z int)
}

func (k Func) Name() string                 { return k.ID }
func (k Func) Voxel(f *Fields, x, y, z int) { k.Fn(f, x, y, z) }

// Copy is the identity kernel: Out = In, errors zeroed.
var Copy = Func{ID: "copy", Fn: func(f *Fields, x, y, z int) {
	i := f.In.AirTemp.Idx(x, y, z)
	f.Out.Velocity.Data()[i] = f.In.Velocity.Data()[i]
	f.Out.AirPressure.Data()[i] = f.In.AirPressure.Data()[i]
	f.Out.AirTemp.Data()[i] = f.In.AirTemp.Data()[i]
	f.Out.MaterialTemp.Data()[i] = f.In.MaterialTemp.Data()[i]
	f.Errors.Data()[i] = grid.Vec4{}
}}

func init() {
	Register("copy", func(Params) Kernel { return Copy })
	Register("exchange", func(p Params) Kernel { return NewExchange(p) })
}
