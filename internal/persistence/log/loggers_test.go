package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"voxelflow/internal/sim/engine"
)

func TestStepLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	l := NewStepLogger(dir)
	clock := time.Date(2026, 10, 16, 9, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for tick := uint64(1); tick <= 3; tick++ {
		if tick == 3 {
			clock = clock.Add(2 * time.Minute) // crosses into the next hour
		}
		if err := l.WriteStep(engine.StepReport{Tick: tick, Kernel: "exchange"}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(filepath.Join(dir, "steps"), "steps")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 rotated files, got %v", files)
	}

	var ticks []uint64
	for _, f := range files {
		err := ReadJSONL(f, func(line []byte) error {
			var r engine.StepReport
			if err := json.Unmarshal(line, &r); err != nil {
				return err
			}
			ticks = append(ticks, r.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 3 || ticks[0] != 1 || ticks[2] != 3 {
		t.Fatalf("ticks: %v", ticks)
	}
}
