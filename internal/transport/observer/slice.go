package observer

import (
	"fmt"
	"math"

	"voxelflow/internal/observerproto"
	"voxelflow/internal/sim/grid"
)

func validField(name string) bool {
	for _, f := range observerproto.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// normalizeSubscribe fills defaults and clamps Index into the grid.
func normalizeSubscribe(sub *observerproto.SubscribeMsg, d grid.Dims) error {
	if sub.Field == "" {
		sub.Field = observerproto.FieldAirTemp
	}
	if !validField(sub.Field) {
		return fmt.Errorf("unknown field %q", sub.Field)
	}
	if sub.Axis == "" {
		sub.Axis = "z"
	}
	var n int
	switch sub.Axis {
	case "x":
		n = d.X
	case "y":
		n = d.Y
	case "z":
		n = d.Z
	default:
		return fmt.Errorf("bad axis %q", sub.Axis)
	}
	if sub.Index < 0 {
		sub.Index = 0
	}
	if n > 0 && sub.Index >= n {
		sub.Index = n - 1
	}
	return nil
}

func sampler(s *grid.Store, field string) func(i int) float32 {
	switch field {
	case observerproto.FieldMaterialTemp:
		d := s.In.MaterialTemp.Data()
		return func(i int) float32 { return d[i] }
	case observerproto.FieldAirPressure:
		d := s.In.AirPressure.Data()
		return func(i int) float32 { return d[i] }
	case observerproto.FieldSpeed:
		d := s.In.Velocity.Data()
		return func(i int) float32 {
			v := d[i]
			return float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
		}
	case observerproto.FieldPassability:
		d := s.Passability.Data()
		return func(i int) float32 { return d[i] }
	case observerproto.FieldSource:
		d := s.Source.Data()
		return func(i int) float32 { return float32(d[i]) }
	case observerproto.FieldFan:
		d := s.Fan.Data()
		return func(i int) float32 { return float32(d[i]) }
	default:
		d := s.In.AirTemp.Data()
		return func(i int) float32 { return d[i] }
	}
}

// buildSlice copies one axis-aligned plane of the In state and static fields.
func buildSlice(s *grid.Store, sub observerproto.SubscribeMsg, tick uint64) observerproto.SliceMsg {
	d := s.Dims()
	at := sampler(s, sub.Field)
	idx := s.Source.Idx

	var w, h int
	var cell func(u, v int) int
	switch sub.Axis {
	case "x":
		w, h = d.Y, d.Z
		cell = func(u, v int) int { return idx(sub.Index, u, v) }
	case "y":
		w, h = d.X, d.Z
		cell = func(u, v int) int { return idx(u, sub.Index, v) }
	default:
		w, h = d.X, d.Y
		cell = func(u, v int) int { return idx(u, v, sub.Index) }
	}

	msg := observerproto.SliceMsg{
		Type:            "SLICE",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Field:           sub.Field,
		Axis:            sub.Axis,
		Index:           sub.Index,
		W:               w,
		H:               h,
		Data:            make([]float32, w*h),
	}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			val := at(cell(u, v))
			k := u + v*w
			msg.Data[k] = val
			if k == 0 || val < msg.Min {
				msg.Min = val
			}
			if k == 0 || val > msg.Max {
				msg.Max = val
			}
		}
	}
	return msg
}
