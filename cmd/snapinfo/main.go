// Command snapinfo prints the header and per-field statistics of a snapshot.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/model"
)

type fieldStats struct {
	Field string  `json:"field"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

type report struct {
	Path    string          `json:"path"`
	Header  snapshot.Header `json:"header"`
	Fields  []fieldStats    `json:"fields"`
	Sources map[string]int  `json:"source_voxels"`
	Fans    map[string]int  `json:"fan_voxels"`
}

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory (used when no path is given)")
		asJSON  = flag.Bool("json", false, "print a JSON report instead of text")
		header  = flag.Bool("header", false, "print only the header")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[snapinfo] ", log.LstdFlags)

	path := flag.Arg(0)
	if path == "" {
		path = snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
		if path == "" {
			logger.Fatalf("no snapshot given and none found under %s", *dataDir)
		}
	}

	if *header {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			logger.Fatalf("read header: %v", err)
		}
		_ = json.NewEncoder(os.Stdout).Encode(h)
		return
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		logger.Fatalf("read snapshot: %v", err)
	}
	if err := snap.Check(); err != nil {
		logger.Fatalf("snapshot %s: %v", path, err)
	}
	r := summarize(path, &snap)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(r)
		return
	}
	printText(os.Stdout, r)
}

func summarize(path string, s *snapshot.SnapshotV1) report {
	r := report{
		Path:    path,
		Header:  s.Header,
		Sources: map[string]int{},
		Fans:    map[string]int{},
	}
	add := func(name string, xs []float32) {
		r.Fields = append(r.Fields, scalarStats(name, xs))
	}
	addVec := func(name string, xs [][3]float32) {
		mag := make([]float32, len(xs))
		for i, v := range xs {
			mag[i] = float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
		}
		add(name, mag)
	}

	add("passability", s.Passability)
	addVec("movability", s.Movability)
	heatCap := make([]float32, len(s.HeatModel))
	for i, v := range s.HeatModel {
		heatCap[i] = v[0]
	}
	add("heat_capacity", heatCap)
	residual := make([]float32, len(s.Errors))
	for i, v := range s.Errors {
		residual[i] = max(abs32(v[0]), abs32(v[1]), abs32(v[2]), abs32(v[3]))
	}
	add("errors", residual)
	for _, st := range []struct {
		side string
		v    snapshot.StateV1
	}{{"in", s.In}, {"out", s.Out}} {
		addVec(st.side+".velocity", st.v.Velocity)
		add(st.side+".air_pressure", st.v.AirPressure)
		add(st.side+".air_temp", st.v.AirTemp)
		add(st.side+".material_temp", st.v.MaterialTemp)
	}

	for _, id := range s.Source {
		if k := model.SourceKind(id); k != model.SourceNone {
			r.Sources[k.String()]++
		}
	}
	for _, id := range s.Fan {
		if k := model.FanKind(id); k != model.FanNone {
			r.Fans[k.String()]++
		}
	}
	return r
}

func scalarStats(name string, xs []float32) fieldStats {
	st := fieldStats{Field: name}
	if len(xs) == 0 {
		return st
	}
	st.Min, st.Max = float64(xs[0]), float64(xs[0])
	var sum float64
	for _, x := range xs {
		v := float64(x)
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
		sum += v
	}
	st.Mean = sum / float64(len(xs))
	return st
}

func abs32(x float32) float32 { return float32(math.Abs(float64(x))) }

func printText(w io.Writer, r report) {
	h := r.Header
	fmt.Fprintf(w, "%s\n", r.Path)
	fmt.Fprintf(w, "  version=%d name=%q tick=%d kernel=%q dims=%dx%dx%d\n",
		h.Version, h.Name, h.Tick, h.Kernel, h.Dims[0], h.Dims[1], h.Dims[2])
	fmt.Fprintf(w, "  %-20s %14s %14s %14s\n", "field", "min", "max", "mean")
	for _, f := range r.Fields {
		fmt.Fprintf(w, "  %-20s %14.6g %14.6g %14.6g\n", f.Field, f.Min, f.Max, f.Mean)
	}
	printCounts(w, "source voxels", r.Sources)
	printCounts(w, "fan voxels", r.Fans)
}

func printCounts(w io.Writer, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "  %s:", title)
	for _, k := range keys {
		fmt.Fprintf(w, " %s=%d", k, m[k])
	}
	fmt.Fprintln(w)
}
