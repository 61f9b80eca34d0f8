package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// Ext is the file suffix of snapshot files, named <tick>.snap.zst.
const Ext = ".snap.zst"

type Header struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
	Tick    uint64 `json:"tick"`
	Dims    [3]int `json:"dims"`
	Kernel  string `json:"kernel,omitempty"`
}

// SnapshotV1 holds every field buffer, flattened x-fastest.
type SnapshotV1 struct {
	Header Header

	Errors      [][4]float32
	Source      []int32
	Fan         []int32
	Passability []float32
	Movability  [][3]float32
	HeatModel   [][3]float32

	In  StateV1
	Out StateV1
}

type StateV1 struct {
	Velocity     [][3]float32
	AirPressure  []float32
	AirTemp      []float32
	MaterialTemp []float32
}

func (s StateV1) check(n int) error {
	if len(s.Velocity) != n || len(s.AirPressure) != n || len(s.AirTemp) != n || len(s.MaterialTemp) != n {
		return fmt.Errorf("state field length mismatch (want %d)", n)
	}
	return nil
}

// Voxels is the voxel count implied by the header dims.
func (s *SnapshotV1) Voxels() int {
	d := s.Header.Dims
	if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 {
		return 0
	}
	return d[0] * d[1] * d[2]
}

// Check verifies that every field has exactly one value per voxel.
func (s *SnapshotV1) Check() error {
	if s.Header.Version != Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	n := s.Voxels()
	if n == 0 {
		return fmt.Errorf("invalid dims %v", s.Header.Dims)
	}
	if len(s.Errors) != n || len(s.Source) != n || len(s.Fan) != n ||
		len(s.Passability) != n || len(s.Movability) != n || len(s.HeatModel) != n {
		return fmt.Errorf("static field length mismatch (want %d)", n)
	}
	if err := s.In.check(n); err != nil {
		return fmt.Errorf("in: %w", err)
	}
	if err := s.Out.check(n); err != nil {
		return fmt.Errorf("out: %w", err)
	}
	return nil
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, all inside one zstd stream.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	// The header line is repeated inside the gob payload.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	defer closeFn()
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() {
		dec.Close()
		_ = f.Close()
	}, nil
}

// PathFor returns <dir>/<tick>.snap.zst.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, strconv.FormatUint(tick, 10)+Ext)
}

// Latest returns the snapshot in dir with the highest tick, or "".
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Ext) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, Ext), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
