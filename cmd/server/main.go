package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/persistence/r2s3"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world/terrain/store"
	"voxelnav.ai/internal/transport/observer"
	"voxelnav.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed override (fresh worlds only; 0 keeps tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite search index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapEvery  = flag.Duration("snapshot_every", 5*time.Minute, "write a snapshot when the world changed (0 disables)")
		snapKeep   = flag.Int("snapshot_keep", 8, "snapshots kept in the live dir; older ones move to archives/ (0 keeps all)")

		preload     = flag.Int("preload_radius", 128, "generate chunks within this many blocks of the origin at startup")
		maxInFlight = flag.Int("max_in_flight", 4, "unfinished searches allowed per websocket session")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *seed != 0 {
		tune.WorldGen.Seed = *seed
	}
	navCfg, err := navigation.ConfigFromTuning(tune.Pathfinding)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (logs remain the source of truth).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	// Create world (fresh or resumed from snapshot).
	gen := store.NewWorldGen(tune, &cats.Blocks)
	var chunks *store.ChunkStore
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		chunks, err = store.FromSnapshot(gen, snap, cats.Blocks.Index)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s revision=%d chunks=%d", filepath.Base(snapshotToLoad), chunks.Revision(), len(snap.Chunks))
	} else {
		chunks = store.NewChunkStore(gen)
	}
	if *preload > 0 {
		n := chunks.EnsureArea(0, 0, *preload)
		logger.Printf("preloaded %d chunks (radius=%d)", n, *preload)
	}

	ctx, cancel := signalContext()
	defer cancel()

	searchLog := persistlog.NewSearchLogger(worldDir)
	defer searchLog.Close()
	hub := observer.NewHub()
	recorders := []navigation.Recorder{searchLog, hub}
	if idx != nil {
		recorders = append(recorders, idx)
	}
	deps := navigation.Deps{
		Logger:    logger,
		Recorders: recorders,
		Revision:  chunks.Revision,
	}
	if navCfg.Trace {
		traceLog := persistlog.NewTraceLogger(worldDir)
		defer traceLog.Close()
		deps.Tracer = navigation.MultiTracer{traceLog, hub}
	}
	nav := navigation.New(navCfg, store.View{Store: chunks, Blocks: &cats.Blocks}, deps)
	// Runs before the loggers close so every finished search is recorded.
	defer nav.Close()

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("snapshot mirror: %v", err)
	}
	// Closed after the final snapshot below is queued.
	defer mirror.Close()

	snaps := &snapshotter{
		dir:     filepath.Join(worldDir, "snapshots"),
		worldID: *worldID,
		store:   chunks,
		blocks:  &cats.Blocks,
		idx:     idx,
		mirror:  mirror,
		keep:    *snapKeep,
		log:     logger,
	}
	if *snapEvery > 0 {
		go snaps.run(ctx, *snapEvery)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(*worldID, nav, chunks, idx, hub, mirror))

	enableAdminHTTP := envBool("VN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VN_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID      string           `json:"world_id"`
				Revision     uint64           `json:"revision"`
				WorldDigest  string           `json:"world_digest"`
				LoadedChunks int              `json:"loaded_chunks"`
				Searches     navigation.Stats `json:"searches"`
			}{
				WorldID:      *worldID,
				Revision:     chunks.Revision(),
				WorldDigest:  chunks.Digest(),
				LoadedChunks: len(chunks.LoadedChunkKeys()),
				Searches:     nav.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			path, rev, err := snaps.write()
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "revision": rev, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "revision": rev, "path": path})
		})
		(&worldAdmin{store: chunks, blocks: &cats.Blocks, log: logger}).register(mux)

		obs := observer.NewServer(hub, observer.World{
			ID:     *worldID,
			Store:  chunks,
			Blocks: &cats.Blocks,
			Stats:  nav.Stats,
		}, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (VN_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VN_ENABLE_PPROF_HTTP=false)")
	}

	wsSrv := ws.NewServer(nav, ws.Info{
		World: protocol.WorldParams{
			ChunkSize: [3]int{store.ChunkSide, store.ChunkSide, chunks.Gen.Height},
			Height:    chunks.Gen.Height,
			BoundaryR: chunks.Gen.BoundaryR,
			Seed:      chunks.Gen.Seed,
		},
		Revision: chunks.Revision,
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			AgentsDigest: cats.Agents.Digest,
		},
		Agents:      cats.Agents.ByID,
		MaxInFlight: *maxInFlight,
	}, logger)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
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

	// Final snapshot so a restart resumes from the latest edits.
	if *snapEvery > 0 {
		if _, _, err := snaps.writeIfChanged(); err != nil {
			logger.Printf("final snapshot: %v", err)
		}
	}
}

func metricsHandler(worldID string, nav *navigation.Manager, chunks *store.ChunkStore, idx runtimeIndex, hub *observer.Hub, mirror *r2s3.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := nav.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelnav_world_revision Block edits applied to the world.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_world_revision counter\n")
		fmt.Fprintf(rw, "voxelnav_world_revision{world=%q} %d\n", worldID, chunks.Revision())

		fmt.Fprintf(rw, "# HELP voxelnav_world_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_world_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "voxelnav_world_loaded_chunks{world=%q} %d\n", worldID, len(chunks.LoadedChunkKeys()))

		fmt.Fprintf(rw, "# HELP voxelnav_searches Searches by state.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_searches gauge\n")
		fmt.Fprintf(rw, "voxelnav_searches{world=%q,state=%q} %d\n", worldID, "tracked", st.Tracked)
		fmt.Fprintf(rw, "voxelnav_searches{world=%q,state=%q} %d\n", worldID, "running", st.Running)
		fmt.Fprintf(rw, "voxelnav_searches{world=%q,state=%q} %d\n", worldID, "deferred", st.Deferred)

		fmt.Fprintf(rw, "# HELP voxelnav_search_slots Background search slots.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_search_slots gauge\n")
		fmt.Fprintf(rw, "voxelnav_search_slots{world=%q} %d\n", worldID, st.Slots)

		if hub != nil {
			fmt.Fprintf(rw, "# HELP voxelnav_observer_sessions Connected observer sessions.\n")
			fmt.Fprintf(rw, "# TYPE voxelnav_observer_sessions gauge\n")
			fmt.Fprintf(rw, "voxelnav_observer_sessions{world=%q} %d\n", worldID, hub.Sessions())

			fmt.Fprintf(rw, "# HELP voxelnav_observer_dropped_total Observer messages dropped because a session queue was full.\n")
			fmt.Fprintf(rw, "# TYPE voxelnav_observer_dropped_total counter\n")
			fmt.Fprintf(rw, "voxelnav_observer_dropped_total{world=%q} %d\n", worldID, hub.Dropped())
		}

		if mirror != nil {
			ms := mirror.Stats()
			fmt.Fprintf(rw, "# HELP voxelnav_mirror_uploads_total Snapshot uploads to object storage by result.\n")
			fmt.Fprintf(rw, "# TYPE voxelnav_mirror_uploads_total counter\n")
			fmt.Fprintf(rw, "voxelnav_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "ok", ms.UploadSuccessTotal)
			fmt.Fprintf(rw, "voxelnav_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "failed", ms.UploadFailTotal)
			fmt.Fprintf(rw, "voxelnav_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "dropped", ms.DroppedTotal)
		}

		if idx == nil {
			return
		}
		is := idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelnav_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelnav_index_queue_depth{world=%q} %d\n", worldID, is.QueueDepth)

		fmt.Fprintf(rw, "# HELP voxelnav_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "search", is.DropSearchTotal)
		fmt.Fprintf(rw, "voxelnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", is.DropSnapshotTotal)
	}
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
