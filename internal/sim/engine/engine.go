// Package engine drives the voxel grid: it sizes and fills the field store from
// a model, dispatches the numeric kernel once per step and commits the
// double-buffered state between steps.
//
// Every operation is synchronous. A draw, step or commit returns only after
// all voxels of that invocation are written, so each call is a full barrier
// for the next one.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/kernel"
	"voxelflow/internal/sim/model"
	"voxelflow/internal/sim/tuning"
)

var (
	// ErrConfiguration reports a model or snapshot the grid cannot be built from.
	ErrConfiguration = errors.New("configuration error")
	// ErrUninitialized reports an operation that needs a prior successful Init.
	ErrUninitialized = errors.New("engine not initialized")
	// ErrKernel reports a kernel that is missing or failed during dispatch.
	ErrKernel = errors.New("kernel invocation failed")
)

type Options struct {
	// Name labels snapshots and reports.
	Name   string
	Tuning tuning.Tuning
	// Kernel overrides the kernel named by Tuning.Kernel.
	Kernel kernel.Kernel
	Logger *log.Logger
}

type Engine struct {
	mu sync.Mutex

	name   string
	src    model.Source
	tune   tuning.Tuning
	log    *log.Logger
	pool   *grid.Pool
	kernel kernel.Kernel
	// kernelErr is kept so that a missing kernel fails Step, not construction.
	kernelErr error

	store grid.Store
	dims  grid.Dims
	ready bool

	testBox  grid.Box
	testTemp float32

	fans        []kernel.Fan
	sourcePower []float32

	tick   atomic.Uint64
	sinks  []StepSink
	last   StepReport
	snapCh chan<- snapshot.SnapshotV1
}

func New(src model.Source, opts Options) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil model source", ErrConfiguration)
	}
	tune := opts.Tuning
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	e := &Engine{
		name: opts.Name,
		src:  src,
		tune: tune,
		log:  logger,
		pool: grid.NewPool(tune.Workers),
		testBox: grid.Box{
			Origin: grid.Vec3i{X: tune.Test.Origin[0], Y: tune.Test.Origin[1], Z: tune.Test.Origin[2]},
			Size:   grid.Vec3i{X: tune.Test.Size[0], Y: tune.Test.Size[1], Z: tune.Test.Size[2]},
		},
		testTemp: float32(tune.Test.Temperature),
	}
	if opts.Kernel != nil {
		e.kernel = opts.Kernel
	} else {
		e.kernel, e.kernelErr = kernel.New(tune.Kernel, kernelParams(tune))
	}
	return e, nil
}

func kernelParams(t tuning.Tuning) kernel.Params {
	return kernel.Params{
		Diffusion:       float32(t.Exchange.Diffusion),
		VelocityDamping: float32(t.Exchange.VelocityDamping),
		PressureRelax:   float32(t.Exchange.PressureRelax),
		VoxelSize:       float32(t.Exchange.VoxelSizeM),
		AmbientCoupling: float32(t.Exchange.AmbientCoupling),
		AmbientTemp:     float32(t.Baseline.AirTemp),
	}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Tuning() tuning.Tuning { return e.tune }

// KernelName is empty when no kernel could be resolved.
func (e *Engine) KernelName() string {
	if e.kernel == nil {
		return ""
	}
	return e.kernel.Name()
}

func (e *Engine) Dims() grid.Dims {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTestInjection replaces the box and temperature Test stamps.
func (e *Engine) SetTestInjection(box grid.Box, temperature float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.testBox = box
	e.testTemp = temperature
}

// View runs fn with the store locked. fn must not retain the store or modify it.
func (e *Engine) View(fn func(s *grid.Store)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrUninitialized
	}
	fn(&e.store)
	return nil
}

// Voxel is every field value at one voxel.
type Voxel struct {
	Errors      grid.Vec4
	Source      model.SourceKind
	Fan         model.FanKind
	Passability float32
	Movability  grid.Vec3
	HeatModel   grid.Vec3
	In, Out     VoxelState
}

type VoxelState struct {
	Velocity     grid.Vec3 `json:"velocity"`
	AirPressure  float32   `json:"air_pressure"`
	AirTemp      float32   `json:"air_temp"`
	MaterialTemp float32   `json:"material_temp"`
}

func (e *Engine) Sample(x, y, z int) (Voxel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return Voxel{}, ErrUninitialized
	}
	s := &e.store
	i, ok := s.Source.IdxCheck(x, y, z)
	if !ok {
		return Voxel{}, fmt.Errorf("voxel (%d,%d,%d) outside grid %s", x, y, z, e.dims)
	}
	state := func(st grid.State) VoxelState {
		return VoxelState{
			Velocity:     st.Velocity.Data()[i],
			AirPressure:  st.AirPressure.Data()[i],
			AirTemp:      st.AirTemp.Data()[i],
			MaterialTemp: st.MaterialTemp.Data()[i],
		}
	}
	return Voxel{
		Errors:      s.Errors.Data()[i],
		Source:      model.SourceKind(s.Source.Data()[i]),
		Fan:         model.FanKind(s.Fan.Data()[i]),
		Passability: s.Passability.Data()[i],
		Movability:  s.Movability.Data()[i],
		HeatModel:   s.HeatModel.Data()[i],
		In:          state(s.In),
		Out:         state(s.Out),
	}, nil
}
