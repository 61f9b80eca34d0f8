package snapshot

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sample() SnapshotV1 {
	n := 2
	st := StateV1{
		Velocity:     [][3]float32{{1, 0, 0}, {0, 0, -1}},
		AirPressure:  []float32{0.5, -0.5},
		AirTemp:      []float32{20, 200},
		MaterialTemp: []float32{21, 22},
	}
	return SnapshotV1{
		Header:      Header{Version: Version, Name: "case", Tick: 42, Dims: [3]int{2, 1, 1}, Kernel: "exchange"},
		Errors:      make([][4]float32, n),
		Source:      []int32{1, 0},
		Fan:         []int32{0, 3},
		Passability: []float32{0, 1},
		Movability:  [][3]float32{{0, 0, 0}, {1, 1, 1}},
		HeatModel:   [][3]float32{{1.6, 1, 0.3}, {0.01, 1, 0}},
		In:          st,
		Out:         st,
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(filepath.Join(dir, "snapshots"), 42)
	want := sample()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got, want)
	}
	if err := got.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header mismatch: %+v", h)
	}
}

func TestCheck_LengthMismatch(t *testing.T) {
	s := sample()
	s.In.AirTemp = s.In.AirTemp[:1]
	if err := s.Check(); err == nil {
		t.Fatalf("expected mismatch error")
	}
	s = sample()
	s.Header.Version = 9
	if err := s.Check(); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"10.snap.zst", "200.snap.zst", "30.snap.zst", "x.snap.zst", "99.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := Latest(dir); got != filepath.Join(dir, "200.snap.zst") {
		t.Fatalf("latest: %s", got)
	}
	if got := Latest(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}
