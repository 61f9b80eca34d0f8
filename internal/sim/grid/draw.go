package grid

// Draw writes v into every voxel of box that lies inside the field. Voxels of
// box outside [0,dims) are skipped.
func Draw[T any](p *Pool, f *Field[T], box Box, v T) error {
	box = box.Clip(f.dims)
	if box.Empty() {
		return nil
	}
	data := f.data
	return p.Dispatch(box, func(x, y, z int) {
		data[f.Idx(x, y, z)] = v
	})
}

// DrawScalar stamps a float field.
func DrawScalar(p *Pool, f *Field[float32], box Box, v float32) error { return Draw(p, f, box, v) }

// DrawVector stamps a 3-vector field.
func DrawVector(p *Pool, f *Field[Vec3], box Box, v Vec3) error { return Draw(p, f, box, v) }

// DrawInt stamps an integer id field.
func DrawInt(p *Pool, f *Field[int32], box Box, v int32) error { return Draw(p, f, box, v) }
