package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelflow/internal/persistence/indexdb"
	persistlog "voxelflow/internal/persistence/log"
	"voxelflow/internal/persistence/snapshot"
	"voxelflow/internal/sim/engine"
	"voxelflow/internal/sim/materials"
	"voxelflow/internal/sim/model"
	"voxelflow/internal/sim/tuning"
	"voxelflow/internal/transport/observer"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		materialsPath = flag.String("materials", "", "path to materials.json (default: <configs>/materials.json)")
		modelPath     = flag.String("model", "", "path to model.yaml (default: <configs>/model.yaml)")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir       = flag.String("data", "./data", "runtime data directory (step log, snapshots, index db)")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite index (step stats + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		remoteObserver = flag.Bool("remote_observer", false, "allow observer connections from non-loopback addresses")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	mp := orDefault(*materialsPath, filepath.Join(*configDir, "materials.json"))
	cat, err := materials.Load(mp)
	if err != nil {
		logger.Fatalf("load materials: %v", err)
	}
	mdp := orDefault(*modelPath, filepath.Join(*configDir, "model.yaml"))
	m, err := model.Load(mdp, cat)
	if err != nil {
		logger.Fatalf("load model: %v", err)
	}
	tp := orDefault(*tuningPath, filepath.Join(*configDir, "tuning.yaml"))
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	logger.Printf("loaded materials=%d (digest %.12s) model=%s blocks=%d active=%d",
		len(cat.Names), cat.Digest, m.Name, len(m.Blocks), len(m.ActiveBlocks()))

	_ = os.MkdirAll(*dataDir, 0o755)
	snapDir := filepath.Join(*dataDir, "snapshots")

	// Optional read-model; the step log and snapshots do not depend on it.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(mp, cat, mdp, tune); err != nil {
			logger.Printf("index db: upsert catalogs: %v", err)
		}
	}

	eng, err := engine.New(m, engine.Options{Name: m.Name, Tuning: tune, Logger: logger})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if err := eng.Init(); err != nil {
		logger.Fatalf("init: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := eng.Import(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), eng.Tick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	stepLog := persistlog.NewStepLogger(*dataDir)
	defer stepLog.Close()
	eng.AddSink(stepLog)
	if idx != nil {
		eng.AddSink(idx)
	}

	obsSrv := observer.NewServer(eng, logger)
	obsSrv.AllowRemote = *remoteObserver
	eng.AddSink(obsSrv)

	a := &app{eng: eng, log: logger, idx: idx, obs: obsSrv, snapDir: snapDir}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	eng.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := a.writeSnapshot(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
