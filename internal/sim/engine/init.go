package engine

import (
	"fmt"
	"math"

	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/kernel"
	"voxelflow/internal/sim/model"
)

// Baseline medium: near-zero heat capacity, fully air, no conduction.
var defaultHeatModel = grid.Vec3{0.01, 1, 0}

// Init sizes the grid from the model, stamps defaults and every active block,
// resets the double-buffered state and commits it. Calling Init again re-reads
// the model; buffers are reallocated only when the container size changed.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newDims := e.src.ContainerSize()
	if !grid.Valid(newDims) {
		e.ready = false
		return fmt.Errorf("%w: container size %s must be positive on every axis", ErrConfiguration, newDims)
	}
	changed := newDims != e.dims
	e.dims = newDims

	realloc, err := e.store.EnsureDims(e.dims)
	if err != nil {
		e.ready = false
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if realloc {
		e.log.Printf("grid allocated dims=%s voxels=%d (dims changed=%v)", e.dims, grid.Volume(e.dims), changed)
	}

	if err := e.drawDefaults(); err != nil {
		e.ready = false
		return err
	}
	if err := e.resetInOut(); err != nil {
		e.ready = false
		return err
	}

	blocks := e.src.ActiveBlocks()
	e.fans = make([]kernel.Fan, len(model.FanKinds()))
	sourceVoxels := make([]int, len(model.SourceKinds()))
	for _, b := range blocks {
		if err := e.drawBlock(b); err != nil {
			e.ready = false
			return fmt.Errorf("draw block %q: %w", b.Name, err)
		}
		n := grid.Volume(b.VoxelBounds().Clip(e.dims).Size)
		if b.Source != model.SourceNone && int(b.Source) < len(sourceVoxels) {
			sourceVoxels[b.Source] += n
		}
		if b.Fan != model.FanNone && int(b.Fan) < len(e.fans) && n > 0 {
			e.fans[b.Fan] = e.fanFor(b, n)
		}
	}
	e.sourcePower = e.sourcePowerFor(sourceVoxels)

	if err := e.overwriteOut(); err != nil {
		e.ready = false
		return err
	}
	e.ready = true
	e.log.Printf("init done dims=%s blocks=%d kernel=%s", e.dims, len(blocks), e.KernelName())
	return nil
}

func (e *Engine) drawDefaults() error {
	s := &e.store
	whole := grid.Whole(e.dims)
	if err := grid.DrawScalar(e.pool, s.Passability, whole, 1); err != nil {
		return err
	}
	if err := grid.DrawVector(e.pool, s.Movability, whole, grid.Vec3{1, 1, 1}); err != nil {
		return err
	}
	if err := grid.DrawVector(e.pool, s.HeatModel, whole, defaultHeatModel); err != nil {
		return err
	}
	// Ids and diagnostics from a previous Init must not survive a re-Init at the same dims.
	if err := grid.DrawInt(e.pool, s.Source, whole, int32(model.SourceNone)); err != nil {
		return err
	}
	if err := grid.DrawInt(e.pool, s.Fan, whole, int32(model.FanNone)); err != nil {
		return err
	}
	return grid.Draw(e.pool, s.Errors, whole, grid.Vec4{})
}

// drawBlock stamps one block's properties into its voxel bounds. Bounds
// outside the grid are clipped by Draw.
func (e *Engine) drawBlock(b *model.Block) error {
	s := &e.store
	box := b.VoxelBounds()

	if b.Source != model.SourceNone {
		if err := grid.DrawInt(e.pool, s.Source, box, int32(b.Source)); err != nil {
			return err
		}
	}
	hm := defaultHeatModel
	if b.Material != nil {
		hm = grid.Vec3{
			float32(b.Material.HeatCapacity()),
			float32(b.MaterialPercentage),
			float32(b.Material.ThermalTransferRate()),
		}
	}
	if err := grid.DrawVector(e.pool, s.HeatModel, box, hm); err != nil {
		return err
	}
	if err := grid.DrawScalar(e.pool, s.Passability, box, float32(b.Passability)); err != nil {
		return err
	}
	mov := grid.Vec3{float32(b.Movability[0]), float32(b.Movability[1]), float32(b.Movability[2])}
	if err := grid.DrawVector(e.pool, s.Movability, box, mov); err != nil {
		return err
	}
	if b.Fan != model.FanNone {
		if err := grid.DrawInt(e.pool, s.Fan, box, int32(b.Fan)); err != nil {
			return err
		}
	}
	return nil
}

// fanFor derives the fan table entry of a block covering n voxels. The fan
// face is approximated by n^(2/3) voxel faces.
func (e *Engine) fanFor(b *model.Block, n int) kernel.Fan {
	var dir grid.Vec3
	d := b.FanDirection
	if l := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2]); l > 0 {
		dir = grid.Vec3{float32(d[0] / l), float32(d[1] / l), float32(d[2] / l)}
	}
	vs := e.tune.Exchange.VoxelSizeM
	return kernel.Fan{
		Direction: dir,
		Airflow:   float32(b.Airflow),
		MinRPM:    float32(b.MinRPM),
		MaxRPM:    float32(b.MaxRPM),
		Area:      float32(math.Pow(float64(n), 2.0/3.0) * vs * vs),
	}
}

// sourcePowerFor spreads each source kind's wattage over the voxels it covers.
func (e *Engine) sourcePowerFor(voxels []int) []float32 {
	out := make([]float32, len(voxels))
	for _, k := range model.SourceKinds() {
		if k == model.SourceNone || voxels[k] == 0 {
			continue
		}
		out[k] = float32(e.tune.Sources[k.String()] / float64(voxels[k]))
	}
	return out
}
