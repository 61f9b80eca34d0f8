package kernel

import (
	"math"

	"voxelflow/internal/sim/grid"
)

// Volumetric heat capacity of air at 20 C, J/(cm3*K).
const airHeatCapacity = 0.00121

// minAirShare keeps the air reservoir of solid voxels from vanishing.
const minAirShare = 0.05

var neighbours = [6][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}}

// Exchange is the reference kernel. Per voxel it
//   - imposes fan velocity on fan voxels, otherwise relaxes velocity toward the
//     passable-neighbour mean, minus the pressure gradient, scaled by movability;
//   - relaxes pressure toward the negative velocity divergence;
//   - advects air temperature upwind and diffuses it across passable faces;
//   - conducts material temperature between neighbouring solids;
//   - exchanges heat between the voxel's material and air reservoirs;
//   - adds source power to material temperature.
type Exchange struct {
	p Params
	// voxel volume in cm3
	volume float32
}

func NewExchange(p Params) *Exchange {
	if p.VoxelSize <= 0 {
		p.VoxelSize = 0.01
	}
	cm := p.VoxelSize * 100
	return &Exchange{p: p, volume: cm * cm * cm}
}

func (k *Exchange) Name() string { return "exchange" }

func (k *Exchange) Voxel(f *Fields, x, y, z int) {
	in, out := f.In, f.Out
	i := in.AirTemp.Idx(x, y, z)
	dt := f.DT

	pass := f.Passability.Data()[i]
	mov := f.Movability.Data()[i]
	hm := f.HeatModel.Data()[i]

	inV := in.Velocity.Data()
	inP := in.AirPressure.Data()
	inTa := in.AirTemp.Data()
	inTm := in.MaterialTemp.Data()

	ta, tm := inTa[i], inTm[i]

	var (
		meanV          grid.Vec3
		weight         float32
		div            float32
		gradP          grid.Vec3
		diffTa, condTm float32
	)
	for axis, d := range neighbours {
		j, ok := in.AirTemp.IdxCheck(x+d[0], y+d[1], z+d[2])
		if !ok {
			continue
		}
		pn := f.Passability.Data()[j]
		face := min(pass, pn)

		vn := inV[j]
		for c := 0; c < 3; c++ {
			meanV[c] += vn[c] * pn
		}
		weight += pn

		a := axis / 2
		sign := float32(d[a])
		div += sign * vn[a] * face / 2
		gradP[a] += sign * (inP[j] - inP[i]) / 2

		diffTa += face * (inTa[j] - ta)

		hn := f.HeatModel.Data()[j]
		if hm[1] > 0 && hn[1] > 0 {
			condTm += min(hm[2], hn[2]) * (inTm[j] - tm)
		}
	}

	// Velocity.
	var v grid.Vec3
	if id := f.Fan.Data()[i]; id > 0 && int(id) < len(f.Fans) && f.Fans[id].Area > 0 {
		fan := f.Fans[id]
		speed := fan.Airflow / 3600 / fan.Area // m/s
		for c := 0; c < 3; c++ {
			v[c] = fan.Direction[c] * speed * pass
		}
	} else {
		if weight > 0 {
			for c := 0; c < 3; c++ {
				meanV[c] /= weight
			}
		}
		for c := 0; c < 3; c++ {
			nv := k.p.VelocityDamping*(inV[i][c]+meanV[c])/2 - k.p.PressureRelax*gradP[c]
			v[c] = nv * mov[c] * pass
		}
	}

	// Pressure.
	p := (1-k.p.PressureRelax)*inP[i] - k.p.PressureRelax*div

	// Air temperature: upwind advection on each axis, then diffusion.
	adv := ta
	for a := 0; a < 3; a++ {
		c := inV[i][a] * dt / k.p.VoxelSize // voxels per step
		if c == 0 {
			continue
		}
		up := [3]int{x, y, z}
		if c > 0 {
			up[a]--
		} else {
			up[a]++
			c = -c
		}
		j, ok := in.AirTemp.IdxCheck(up[0], up[1], up[2])
		if !ok || f.Passability.Data()[j] == 0 {
			continue
		}
		adv -= min(c, 1) * (ta - inTa[j]) / 3
	}
	newTa := adv + min(k.p.Diffusion*dt, 1.0/6)*diffTa
	newTm := tm + min(dt, 1.0/6)*condTm

	// Material <-> air exchange. hm.x is the volumetric heat capacity of the
	// voxel's medium and hm.y the share of the voxel it fills.
	cm := hm[0]*hm[1] + 1e-6
	ca := float32(airHeatCapacity) * max(pass, minAirShare)
	rate := min(hm[2]*dt, 1)
	q := rate * (newTm - newTa) * cm * ca / (cm + ca)
	newTm -= q / cm
	newTa += q / ca

	if id := f.Source.Data()[i]; id > 0 && int(id) < len(f.SourcePower) {
		newTm += f.SourcePower[id] * dt / (cm * k.volume)
	}

	if k.p.AmbientCoupling > 0 && onBoundary(f.Dims, x, y, z) {
		newTa += min(k.p.AmbientCoupling*dt, 1) * (k.p.AmbientTemp - newTa)
	}

	out.Velocity.Data()[i] = v
	out.AirPressure.Data()[i] = p
	out.AirTemp.Data()[i] = newTa
	out.MaterialTemp.Data()[i] = newTm
	f.Errors.Data()[i] = grid.Vec4{
		float32(math.Abs(float64(newTa - ta))),
		div,
		float32(math.Abs(float64(newTm - tm))),
		0,
	}
}

func onBoundary(d grid.Dims, x, y, z int) bool {
	return x == 0 || y == 0 || z == 0 || x == d.X-1 || y == d.Y-1 || z == d.Z-1
}
