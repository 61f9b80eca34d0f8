package engine

import (
	"fmt"

	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/grid"
)

type snapshotJob struct {
	ch   chan<- snapshot.SnapshotV1
	snap snapshot.SnapshotV1
}

// SetSnapshotSink receives a snapshot every Tuning.SnapshotEveryTicks ticks.
// Sends never block; a full channel drops the snapshot.
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapCh = ch
}

// Export copies every field into a snapshot.
func (e *Engine) Export() (snapshot.SnapshotV1, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return snapshot.SnapshotV1{}, fmt.Errorf("export: %w", ErrUninitialized)
	}
	return e.export(), nil
}

func (e *Engine) export() snapshot.SnapshotV1 {
	s := &e.store
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Name:    e.name,
			Tick:    e.tick.Load(),
			Dims:    [3]int{e.dims.X, e.dims.Y, e.dims.Z},
			Kernel:  e.KernelName(),
		},
		Errors:      vec4s(s.Errors.Data()),
		Source:      append([]int32(nil), s.Source.Data()...),
		Fan:         append([]int32(nil), s.Fan.Data()...),
		Passability: append([]float32(nil), s.Passability.Data()...),
		Movability:  vec3s(s.Movability.Data()),
		HeatModel:   vec3s(s.HeatModel.Data()),
		In:          exportState(s.In),
		Out:         exportState(s.Out),
	}
}

// Import restores the dynamic state of a snapshot taken at the current dims:
// the error field, both state sides and the tick counter. Source, fan,
// passability, movability and heat model stay as the last Init stamped them
// from the current model.
func (e *Engine) Import(snap snapshot.SnapshotV1) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("import: %w", ErrUninitialized)
	}
	d := grid.Dims{X: snap.Header.Dims[0], Y: snap.Header.Dims[1], Z: snap.Header.Dims[2]}
	if d != e.dims {
		return fmt.Errorf("%w: snapshot dims %s do not match grid %s", ErrConfiguration, d, e.dims)
	}
	if err := snap.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	s := &e.store
	for i := range s.Errors.Data() {
		s.Errors.Data()[i] = snap.Errors[i]
	}
	importState(s.In, snap.In)
	importState(s.Out, snap.Out)
	e.tick.Store(snap.Header.Tick)
	return nil
}

func exportState(st grid.State) snapshot.StateV1 {
	return snapshot.StateV1{
		Velocity:     vec3s(st.Velocity.Data()),
		AirPressure:  append([]float32(nil), st.AirPressure.Data()...),
		AirTemp:      append([]float32(nil), st.AirTemp.Data()...),
		MaterialTemp: append([]float32(nil), st.MaterialTemp.Data()...),
	}
}

func importState(st grid.State, sv snapshot.StateV1) {
	for i := range st.Velocity.Data() {
		st.Velocity.Data()[i] = sv.Velocity[i]
	}
	copy(st.AirPressure.Data(), sv.AirPressure)
	copy(st.AirTemp.Data(), sv.AirTemp)
	copy(st.MaterialTemp.Data(), sv.MaterialTemp)
}

func vec3s(in []grid.Vec3) [][3]float32 {
	out := make([][3]float32, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func vec4s(in []grid.Vec4) [][4]float32 {
	out := make([][4]float32, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
