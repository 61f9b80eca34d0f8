package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoxClip(t *testing.T) {
	d := Dims{X: 4, Y: 4, Z: 4}
	cases := []struct {
		name string
		in   Box
		want Box
	}{
		{"inside", Box{Origin: Vec3i{1, 1, 1}, Size: Vec3i{2, 2, 2}}, Box{Origin: Vec3i{1, 1, 1}, Size: Vec3i{2, 2, 2}}},
		{"negative origin", Box{Origin: Vec3i{-1, 0, 0}, Size: Vec3i{3, 1, 1}}, Box{Origin: Vec3i{0, 0, 0}, Size: Vec3i{2, 1, 1}}},
		{"past end", Box{Origin: Vec3i{3, 3, 3}, Size: Vec3i{5, 5, 5}}, Box{Origin: Vec3i{3, 3, 3}, Size: Vec3i{1, 1, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.in.Clip(d))
		})
	}
	require.True(t, Box{Origin: Vec3i{5, 0, 0}, Size: Vec3i{1, 1, 1}}.Clip(d).Empty())
}

func TestFieldIdxCoordsRoundTrip(t *testing.T) {
	f := NewField[float32](Dims{X: 3, Y: 4, Z: 5})
	require.Equal(t, 60, f.Len())
	for i := 0; i < f.Len(); i++ {
		x, y, z := f.Coords(i)
		require.Equal(t, i, f.Idx(x, y, z))
	}
	_, ok := f.IdxCheck(3, 0, 0)
	require.False(t, ok)
}

func TestStoreEnsureDims(t *testing.T) {
	var s Store
	_, err := s.EnsureDims(Dims{X: 0, Y: 2, Z: 2})
	require.Error(t, err)

	d := Dims{X: 2, Y: 3, Z: 4}
	changed, err := s.EnsureDims(d)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, s.Allocated())

	n := Volume(d)
	for _, l := range []int{
		s.Errors.Len(), s.Source.Len(), s.Fan.Len(), s.Passability.Len(), s.Movability.Len(), s.HeatModel.Len(),
		s.In.Velocity.Len(), s.In.AirPressure.Len(), s.In.AirTemp.Len(), s.In.MaterialTemp.Len(),
		s.Out.Velocity.Len(), s.Out.AirPressure.Len(), s.Out.AirTemp.Len(), s.Out.MaterialTemp.Len(),
	} {
		require.Equal(t, n, l)
	}

	prev := s.In.AirTemp
	changed, err = s.EnsureDims(d)
	require.NoError(t, err)
	require.False(t, changed)
	require.Same(t, prev, s.In.AirTemp)

	// A released buffer forces a full reallocation even at the same dims.
	s.Fan.Release()
	changed, err = s.EnsureDims(d)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotSame(t, prev, s.In.AirTemp)
	require.False(t, prev.Writable())

	changed, err = s.EnsureDims(Dims{X: 5, Y: 5, Z: 5})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 125, s.Out.MaterialTemp.Len())
}

func TestDrawLocality(t *testing.T) {
	p := NewPool(4)
	f := NewField[float32](Dims{X: 5, Y: 5, Z: 5})
	box := Box{Origin: Vec3i{1, 2, 3}, Size: Vec3i{2, 2, 1}}
	require.NoError(t, DrawScalar(p, f, box, 7))
	for i, v := range f.Data() {
		x, y, z := f.Coords(i)
		if box.Contains(x, y, z) {
			require.Equal(t, float32(7), v)
		} else {
			require.Equal(t, float32(0), v, "voxel (%d,%d,%d)", x, y, z)
		}
	}
}

func TestDrawLastWriteWins(t *testing.T) {
	p := NewPool(3)
	f := NewField[Vec3](Dims{X: 4, Y: 4, Z: 4})
	box := Box{Origin: Vec3i{0, 0, 0}, Size: Vec3i{2, 2, 2}}
	require.NoError(t, DrawVector(p, f, box, Vec3{1, 1, 1}))
	require.NoError(t, DrawVector(p, f, box, Vec3{2, 3, 4}))
	require.Equal(t, Vec3{2, 3, 4}, f.At(1, 1, 1))
	require.Equal(t, Vec3{}, f.At(2, 2, 2))
}

func TestDrawClipsOutOfRange(t *testing.T) {
	p := NewPool(2)
	f := NewField[int32](Dims{X: 3, Y: 3, Z: 3})
	require.NoError(t, DrawInt(p, f, Box{Origin: Vec3i{2, 2, 2}, Size: Vec3i{4, 4, 4}}, 9))
	require.Equal(t, int32(9), f.At(2, 2, 2))
	require.Equal(t, int32(0), f.At(1, 2, 2))
	require.NoError(t, DrawInt(p, f, Box{Origin: Vec3i{-5, 0, 0}, Size: Vec3i{2, 1, 1}}, 1))
	require.Equal(t, int32(0), f.At(0, 0, 0))
}

func TestPoolDispatchVisitsEveryVoxelOnce(t *testing.T) {
	p := NewPool(8)
	d := Dims{X: 7, Y: 5, Z: 3}
	hits := NewField[int32](d)
	require.NoError(t, p.Dispatch(Whole(d), func(x, y, z int) {
		hits.Data()[hits.Idx(x, y, z)]++
	}))
	for _, h := range hits.Data() {
		require.Equal(t, int32(1), h)
	}
}

func TestPoolDispatchRecoversPanic(t *testing.T) {
	p := NewPool(2)
	err := p.Dispatch(Whole(Dims{X: 2, Y: 2, Z: 2}), func(x, y, z int) {
		if x == 1 && y == 1 && z == 1 {
			panic("boom")
		}
	})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "boom", pe.Value)
}
