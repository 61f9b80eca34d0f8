package main

import (
	"bytes"
	"strings"
	"testing"

	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/model"
)

func TestSummarize(t *testing.T) {
	n := 4
	s := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, Name: "m", Tick: 9, Dims: [3]int{2, 2, 1}, Kernel: "exchange"},
		Errors:      make([][4]float32, n),
		Source:      []int32{int32(model.SourceCPU), int32(model.SourceCPU), 0, int32(model.SourceGPU)},
		Fan:         []int32{0, 0, int32(model.FanBack), 0},
		Passability: []float32{1, 1, 0, 0},
		Movability:  make([][3]float32, n),
		HeatModel:   make([][3]float32, n),
		In: snapshot.StateV1{
			Velocity:     [][3]float32{{3, 4, 0}, {}, {}, {}},
			AirPressure:  make([]float32, n),
			AirTemp:      []float32{20, 22, 24, 26},
			MaterialTemp: make([]float32, n),
		},
		Out: snapshot.StateV1{
			Velocity:     make([][3]float32, n),
			AirPressure:  make([]float32, n),
			AirTemp:      make([]float32, n),
			MaterialTemp: make([]float32, n),
		},
	}
	s.Errors[2] = [4]float32{0, -0.5, 0.25, 0}
	if err := s.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}

	r := summarize("x.snap.zst", &s)
	byName := map[string]fieldStats{}
	for _, f := range r.Fields {
		byName[f.Field] = f
	}
	if f := byName["in.air_temp"]; f.Min != 20 || f.Max != 26 || f.Mean != 23 {
		t.Fatalf("in.air_temp: %+v", f)
	}
	if f := byName["in.velocity"]; f.Max != 5 {
		t.Fatalf("in.velocity: %+v", f)
	}
	if f := byName["errors"]; f.Max != 0.5 {
		t.Fatalf("errors: %+v", f)
	}
	if f := byName["passability"]; f.Mean != 0.5 {
		t.Fatalf("passability: %+v", f)
	}
	if r.Sources["cpu"] != 2 || r.Sources["gpu"] != 1 || len(r.Sources) != 2 {
		t.Fatalf("sources: %v", r.Sources)
	}
	if r.Fans["back"] != 1 || len(r.Fans) != 1 {
		t.Fatalf("fans: %v", r.Fans)
	}

	var buf bytes.Buffer
	printText(&buf, r)
	out := buf.String()
	for _, want := range []string{"tick=9", "dims=2x2x1", "source voxels: cpu=2 gpu=1", "fan voxels: back=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
