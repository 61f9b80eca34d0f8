package grid

import "fmt"

// State is one side ("in" or "out") of the double-buffered fields.
type State struct {
	Velocity     *Field[Vec3]
	AirPressure  *Field[float32]
	AirTemp      *Field[float32]
	MaterialTemp *Field[float32]
}

func newState(d Dims) State {
	return State{
		Velocity:     NewField[Vec3](d),
		AirPressure:  NewField[float32](d),
		AirTemp:      NewField[float32](d),
		MaterialTemp: NewField[float32](d),
	}
}

func (s State) writable() bool {
	return s.Velocity.Writable() && s.AirPressure.Writable() &&
		s.AirTemp.Writable() && s.MaterialTemp.Writable()
}

func (s State) release() {
	s.Velocity.Release()
	s.AirPressure.Release()
	s.AirTemp.Release()
	s.MaterialTemp.Release()
}

// Store owns every field buffer of the simulation. All buffers share one Dims.
type Store struct {
	dims Dims

	Errors      *Field[Vec4]
	Source      *Field[int32]
	Fan         *Field[int32]
	Passability *Field[float32]
	Movability  *Field[Vec3]
	// HeatModel: x = volumetric heat capacity, y = air fraction, z = thermal transfer rate.
	HeatModel *Field[Vec3]

	In  State
	Out State
}

func (s *Store) Dims() Dims { return s.dims }

// Allocated reports whether every buffer exists at the current dims and is writable.
func (s *Store) Allocated() bool {
	if !Valid(s.dims) {
		return false
	}
	for _, ok := range []bool{
		s.Errors.Writable(), s.Source.Writable(), s.Fan.Writable(),
		s.Passability.Writable(), s.Movability.Writable(), s.HeatModel.Writable(),
		s.In.writable(), s.Out.writable(),
	} {
		if !ok {
			return false
		}
	}
	return true
}

// EnsureDims reallocates every buffer at d unless all of them already exist at d.
// It reports whether a reallocation happened.
func (s *Store) EnsureDims(d Dims) (bool, error) {
	if !Valid(d) {
		return false, fmt.Errorf("invalid grid dims %s", d)
	}
	if d == s.dims && s.Allocated() {
		return false, nil
	}
	s.Release()

	s.dims = d
	s.Errors = NewField[Vec4](d)
	s.Source = NewField[int32](d)
	s.Fan = NewField[int32](d)
	s.Passability = NewField[float32](d)
	s.Movability = NewField[Vec3](d)
	s.HeatModel = NewField[Vec3](d)
	s.In = newState(d)
	s.Out = newState(d)
	return true, nil
}

// Release drops every buffer.
func (s *Store) Release() {
	s.Errors.Release()
	s.Source.Release()
	s.Fan.Release()
	s.Passability.Release()
	s.Movability.Release()
	s.HeatModel.Release()
	s.In.release()
	s.Out.release()
}
