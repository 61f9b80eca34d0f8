package grid

// Field is one per-voxel buffer laid out x-fastest, then y, then z.
type Field[T any] struct {
	dims Dims
	data []T
}

func NewField[T any](d Dims) *Field[T] {
	return &Field[T]{dims: d, data: make([]T, Volume(d))}
}

func (f *Field[T]) Dims() Dims { return f.dims }

func (f *Field[T]) Len() int { return len(f.data) }

// Data exposes the backing slice. Kernels index it with Idx.
func (f *Field[T]) Data() []T { return f.data }

func (f *Field[T]) Idx(x, y, z int) int {
	return x + y*f.dims.X + z*f.dims.X*f.dims.Y
}

// IdxCheck returns the index of (x,y,z) and false if it lies outside the field.
func (f *Field[T]) IdxCheck(x, y, z int) (int, bool) {
	if x < 0 || y < 0 || z < 0 || x >= f.dims.X || y >= f.dims.Y || z >= f.dims.Z {
		return -1, false
	}
	return f.Idx(x, y, z), true
}

func (f *Field[T]) At(x, y, z int) T { return f.data[f.Idx(x, y, z)] }

func (f *Field[T]) Set(x, y, z int, v T) { f.data[f.Idx(x, y, z)] = v }

// Coords is the inverse of Idx.
func (f *Field[T]) Coords(idx int) (x, y, z int) {
	area := f.dims.X * f.dims.Y
	return idx % f.dims.X, (idx % area) / f.dims.X, idx / area
}

// Writable reports whether the buffer is allocated and accepts per-voxel writes.
func (f *Field[T]) Writable() bool {
	return f != nil && f.data != nil && len(f.data) == Volume(f.dims)
}

// Release drops the backing storage. A released field is never written again.
func (f *Field[T]) Release() {
	if f == nil {
		return
	}
	f.data = nil
}
