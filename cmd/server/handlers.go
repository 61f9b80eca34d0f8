package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"voxelflow/internal/persistence/indexdb"
	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/engine"
	"voxelflow/internal/transport/observer"
)

// maxStepsPerRequest bounds POST /v1/simulate?n=.
const maxStepsPerRequest = 1000

type app struct {
	eng     *engine.Engine
	log     *log.Logger
	idx     *indexdb.SQLiteIndex
	obs     *observer.Server
	snapDir string
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)

	mux.HandleFunc("/v1/state", a.handleState)
	mux.HandleFunc("/v1/voxel", a.handleVoxel)
	mux.HandleFunc("/v1/init", a.post(func() (any, error) {
		if err := a.eng.Init(); err != nil {
			return nil, err
		}
		d := a.eng.Dims()
		return map[string]any{"dims": [3]int{d.X, d.Y, d.Z}}, nil
	}))
	mux.HandleFunc("/v1/test", a.post(func() (any, error) { return nil, a.eng.Test() }))
	mux.HandleFunc("/v1/reset", a.post(func() (any, error) { return nil, a.eng.ResetInOut() }))
	mux.HandleFunc("/v1/overwrite/in", a.post(func() (any, error) { return nil, a.eng.OverwriteIn() }))
	mux.HandleFunc("/v1/overwrite/out", a.post(func() (any, error) { return nil, a.eng.OverwriteOut() }))
	mux.HandleFunc("/v1/simulate", a.handleSimulate)
	mux.HandleFunc("/v1/snapshot", a.post(func() (any, error) {
		snap, err := a.eng.Export()
		if err != nil {
			return nil, err
		}
		path, err := a.writeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tick": snap.Header.Tick, "path": path}, nil
	}))

	if a.obs != nil {
		mux.HandleFunc("/v1/observer/bootstrap", a.obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", a.obs.WSHandler())
	}
	return mux
}

// post wraps a command as a POST-only JSON endpoint.
func (a *app) post(fn func() (any, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		out, err := fn()
		if err != nil {
			a.writeError(rw, r, err)
			return
		}
		resp := map[string]any{"ok": true, "tick": a.eng.Tick()}
		if m, ok := out.(map[string]any); ok {
			for k, v := range m {
				resp[k] = v
			}
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (a *app) handleSimulate(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n := 1
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxStepsPerRequest {
			http.Error(rw, fmt.Sprintf("n must be in [1,%d]", maxStepsPerRequest), http.StatusBadRequest)
			return
		}
		n = v
	}
	withTest := r.URL.Query().Get("test") == "1"
	for i := 0; i < n; i++ {
		var err error
		if withTest {
			err = a.eng.TestAndSimulate()
		} else {
			err = a.eng.Simulate()
		}
		if err != nil {
			a.writeError(rw, r, err)
			return
		}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": a.eng.Tick(), "report": a.eng.LastReport()})
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d := a.eng.Dims()
	resp := struct {
		Name   string            `json:"name"`
		Tick   uint64            `json:"tick"`
		Ready  bool              `json:"ready"`
		Kernel string            `json:"kernel"`
		Dims   [3]int            `json:"dims"`
		Last   engine.StepReport `json:"last"`
		Index  *indexdb.Stats    `json:"index,omitempty"`
	}{
		Name:   a.eng.Name(),
		Tick:   a.eng.Tick(),
		Ready:  a.eng.Ready(),
		Kernel: a.eng.KernelName(),
		Dims:   [3]int{d.X, d.Y, d.Z},
		Last:   a.eng.LastReport(),
	}
	if a.idx != nil {
		st := a.idx.Stats()
		resp.Index = &st
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleVoxel(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var p [3]int
	for i, k := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(r.URL.Query().Get(k))
		if err != nil {
			http.Error(rw, "x, y and z are required integers", http.StatusBadRequest)
			return
		}
		p[i] = v
	}
	v, err := a.eng.Sample(p[0], p[1], p[2])
	if err != nil {
		if errors.Is(err, engine.ErrUninitialized) {
			a.writeError(rw, r, err)
			return
		}
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"tick":        a.eng.Tick(),
		"pos":         p,
		"source":      v.Source.String(),
		"fan":         v.Fan.String(),
		"passability": v.Passability,
		"movability":  v.Movability,
		"heat_model":  v.HeatModel,
		"errors":      v.Errors,
		"in":          v.In,
		"out":         v.Out,
	})
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	name := a.eng.Name()
	last := a.eng.LastReport()
	ready := 0
	if a.eng.Ready() {
		ready = 1
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP voxelflow_tick Committed simulation steps.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_tick gauge\n")
	fmt.Fprintf(rw, "voxelflow_tick{model=%q} %d\n", name, a.eng.Tick())

	fmt.Fprintf(rw, "# HELP voxelflow_ready Whether the grid is initialised.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_ready gauge\n")
	fmt.Fprintf(rw, "voxelflow_ready{model=%q} %d\n", name, ready)

	fmt.Fprintf(rw, "# HELP voxelflow_step_ms Last step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_step_ms gauge\n")
	fmt.Fprintf(rw, "voxelflow_step_ms{model=%q} %.3f\n", name, last.DurationMS)

	fmt.Fprintf(rw, "# HELP voxelflow_temperature Temperature statistics of the committed state.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_temperature gauge\n")
	for _, s := range []struct {
		medium string
		st     engine.Stats
	}{{"air", last.AirTemp}, {"material", last.MaterialTemp}} {
		fmt.Fprintf(rw, "voxelflow_temperature{model=%q,medium=%q,stat=%q} %.6f\n", name, s.medium, "min", s.st.Min)
		fmt.Fprintf(rw, "voxelflow_temperature{model=%q,medium=%q,stat=%q} %.6f\n", name, s.medium, "max", s.st.Max)
		fmt.Fprintf(rw, "voxelflow_temperature{model=%q,medium=%q,stat=%q} %.6f\n", name, s.medium, "mean", s.st.Mean)
	}

	fmt.Fprintf(rw, "# HELP voxelflow_max_speed Largest air speed in the committed state.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_max_speed gauge\n")
	fmt.Fprintf(rw, "voxelflow_max_speed{model=%q} %.6f\n", name, last.MaxSpeed)

	fmt.Fprintf(rw, "# HELP voxelflow_max_residual Largest kernel residual of the last step.\n")
	fmt.Fprintf(rw, "# TYPE voxelflow_max_residual gauge\n")
	fmt.Fprintf(rw, "voxelflow_max_residual{model=%q} %.6f\n", name, last.MaxResidual)

	if a.obs != nil {
		fmt.Fprintf(rw, "# HELP voxelflow_observer_sessions Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxelflow_observer_sessions gauge\n")
		fmt.Fprintf(rw, "voxelflow_observer_sessions %d\n", a.obs.Sessions())

		fmt.Fprintf(rw, "# HELP voxelflow_observer_dropped_total Slices dropped on full session queues.\n")
		fmt.Fprintf(rw, "# TYPE voxelflow_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelflow_observer_dropped_total %d\n", a.obs.Dropped())
	}
	if a.idx != nil {
		s := a.idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelflow_index_queue_depth Index write queue depth.\n")
		fmt.Fprintf(rw, "# TYPE voxelflow_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelflow_index_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP voxelflow_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE voxelflow_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelflow_index_dropped_total{kind=%q} %d\n", "step", s.DropStepTotal)
		fmt.Fprintf(rw, "voxelflow_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
	}
}

// writeSnapshot stores snap under snapDir and records it in the index.
func (a *app) writeSnapshot(snap snapshot.SnapshotV1) (string, error) {
	path := snapshot.PathFor(a.snapDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if a.idx != nil {
		a.idx.RecordSnapshot(path, snap.Header)
	}
	a.log.Printf("snapshot written tick=%d path=%s", snap.Header.Tick, path)
	return path, nil
}

func (a *app) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUninitialized):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrConfiguration):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
