package engine

import (
	"math"
	"time"
)

type Stats struct {
	Min  float32 `json:"min"`
	Max  float32 `json:"max"`
	Mean float32 `json:"mean"`
}

// StepReport summarises the committed state after one Simulate.
type StepReport struct {
	Name         string  `json:"name,omitempty"`
	Tick         uint64  `json:"tick"`
	Kernel       string  `json:"kernel"`
	DurationMS   float64 `json:"duration_ms"`
	TestInjected bool    `json:"test_injected,omitempty"`

	AirTemp      Stats   `json:"air_temp"`
	MaterialTemp Stats   `json:"material_temp"`
	AirPressure  Stats   `json:"air_pressure"`
	MaxSpeed     float32 `json:"max_speed"`
	MaxResidual  float32 `json:"max_residual"`
}

// StepSink receives a report after every Simulate. Sinks are called outside
// the engine lock, in registration order.
type StepSink interface {
	WriteStep(StepReport) error
}

func (e *Engine) AddSink(s StepSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

func (e *Engine) LastReport() StepReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) publish(r StepReport, job *snapshotJob) {
	e.mu.Lock()
	sinks := append([]StepSink(nil), e.sinks...)
	e.mu.Unlock()

	for _, s := range sinks {
		if err := s.WriteStep(r); err != nil {
			e.log.Printf("step sink: tick=%d: %v", r.Tick, err)
		}
	}
	if job != nil {
		select {
		case job.ch <- job.snap:
		default:
			e.log.Printf("snapshot sink busy; dropped tick=%d", job.snap.Header.Tick)
		}
	}
}

func (e *Engine) report(tick uint64, d time.Duration, withTest bool) StepReport {
	s := &e.store
	r := StepReport{
		Name:         e.name,
		Tick:         tick,
		Kernel:       e.KernelName(),
		DurationMS:   float64(d.Microseconds()) / 1000,
		TestInjected: withTest,
		AirTemp:      stats(s.In.AirTemp.Data()),
		MaterialTemp: stats(s.In.MaterialTemp.Data()),
		AirPressure:  stats(s.In.AirPressure.Data()),
	}
	for _, v := range s.In.Velocity.Data() {
		sp := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
		if sp > r.MaxSpeed {
			r.MaxSpeed = sp
		}
	}
	for _, er := range s.Errors.Data() {
		for _, c := range er {
			if a := float32(math.Abs(float64(c))); a > r.MaxResidual {
				r.MaxResidual = a
			}
		}
	}
	return r
}

func stats(xs []float32) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	st := Stats{Min: xs[0], Max: xs[0]}
	var sum float64
	for _, x := range xs {
		st.Min = min(st.Min, x)
		st.Max = max(st.Max, x)
		sum += float64(x)
	}
	st.Mean = float32(sum / float64(len(xs)))
	return st
}
