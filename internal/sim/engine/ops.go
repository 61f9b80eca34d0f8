package engine

import (
	"fmt"
	"time"

	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/kernel"
)

// Step runs the kernel once over every voxel. It reads In and the static
// fields and writes Out and Errors; In is left untouched.
func (e *Engine) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("step: %w", ErrUninitialized)
	}
	return e.step()
}

func (e *Engine) step() error {
	if e.kernel == nil {
		return fmt.Errorf("%w: %v", ErrKernel, e.kernelErr)
	}
	s := &e.store
	f := &kernel.Fields{
		Dims:        e.dims,
		DT:          float32(e.tune.DT),
		Errors:      s.Errors,
		Source:      s.Source,
		Fan:         s.Fan,
		Passability: s.Passability,
		Movability:  s.Movability,
		HeatModel:   s.HeatModel,
		In:          s.In,
		Out:         s.Out,
		SourcePower: e.sourcePower,
		Fans:        e.fans,
	}
	k := e.kernel
	if err := e.pool.Dispatch(grid.Whole(e.dims), func(x, y, z int) {
		k.Voxel(f, x, y, z)
	}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrKernel, k.Name(), err)
	}
	return nil
}

// Simulate is one steady-state tick: Step, then commit Out into In.
func (e *Engine) Simulate() error {
	report, snap, err := e.simulate(false)
	if err != nil {
		return err
	}
	e.publish(report, snap)
	return nil
}

// TestAndSimulate is the auto-test tick: Test, then Simulate, under one lock.
func (e *Engine) TestAndSimulate() error {
	report, snap, err := e.simulate(true)
	if err != nil {
		return err
	}
	e.publish(report, snap)
	return nil
}

func (e *Engine) simulate(withTest bool) (StepReport, *snapshotJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return StepReport{}, nil, fmt.Errorf("simulate: %w", ErrUninitialized)
	}
	start := time.Now()
	if withTest {
		if err := e.test(); err != nil {
			return StepReport{}, nil, err
		}
	}
	if err := e.step(); err != nil {
		return StepReport{}, nil, err
	}
	if err := e.overwriteIn(); err != nil {
		return StepReport{}, nil, err
	}
	tick := e.tick.Add(1)
	report := e.report(tick, time.Since(start), withTest)
	e.last = report

	var job *snapshotJob
	if every := e.tune.SnapshotEveryTicks; every > 0 && tick%uint64(every) == 0 && e.snapCh != nil {
		job = &snapshotJob{ch: e.snapCh, snap: e.export()}
	}
	return report, job, nil
}

// Test stamps the configured test temperature into In.AirTemp over the test
// box and then copies In into Out.
//
// This is the reverse commit direction of Simulate. The next Step reads the
// stamped In, so the perturbation is simulated; Out holds a copy until then.
func (e *Engine) Test() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("test: %w", ErrUninitialized)
	}
	return e.test()
}

func (e *Engine) test() error {
	if err := grid.DrawScalar(e.pool, e.store.In.AirTemp, e.testBox, e.testTemp); err != nil {
		return err
	}
	return e.overwriteOut()
}

// OverwriteIn copies every Out field into its In twin.
func (e *Engine) OverwriteIn() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("overwrite in: %w", ErrUninitialized)
	}
	return e.overwriteIn()
}

// OverwriteOut copies every In field into its Out twin.
func (e *Engine) OverwriteOut() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("overwrite out: %w", ErrUninitialized)
	}
	return e.overwriteOut()
}

// ResetInOut sets both sides of every double-buffered field to the baseline.
func (e *Engine) ResetInOut() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("reset: %w", ErrUninitialized)
	}
	return e.resetInOut()
}

func (e *Engine) overwriteIn() error  { return copyState(e.pool, e.store.In, e.store.Out) }
func (e *Engine) overwriteOut() error { return copyState(e.pool, e.store.Out, e.store.In) }

// copyState copies all four pairs in a single dispatch.
func copyState(p *grid.Pool, dst, src grid.State) error {
	dv, sv := dst.Velocity.Data(), src.Velocity.Data()
	dp, sp := dst.AirPressure.Data(), src.AirPressure.Data()
	da, sa := dst.AirTemp.Data(), src.AirTemp.Data()
	dm, sm := dst.MaterialTemp.Data(), src.MaterialTemp.Data()
	f := src.AirTemp
	return p.Dispatch(grid.Whole(f.Dims()), func(x, y, z int) {
		i := f.Idx(x, y, z)
		dv[i] = sv[i]
		dp[i] = sp[i]
		da[i] = sa[i]
		dm[i] = sm[i]
	})
}

func (e *Engine) resetInOut() error {
	s := &e.store
	b := e.tune.Baseline
	pressure, air, mat := float32(b.AirPressure), float32(b.AirTemp), float32(b.MaterialTemp)
	f := s.In.AirTemp
	return e.pool.Dispatch(grid.Whole(e.dims), func(x, y, z int) {
		i := f.Idx(x, y, z)
		for _, st := range [2]grid.State{s.In, s.Out} {
			st.Velocity.Data()[i] = grid.Vec3{}
			st.AirPressure.Data()[i] = pressure
			st.AirTemp.Data()[i] = air
			st.MaterialTemp.Data()[i] = mat
		}
	})
}
