package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelnav.ai/internal/persistence/indexdb"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	navigation.Recorder
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "searches.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported VN_INDEX_BACKEND: %s", backend)
	}
}
