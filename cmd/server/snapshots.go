package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"voxelnav.ai/internal/persistence/archive"
	"voxelnav.ai/internal/persistence/r2s3"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

// snapshotter writes <dir>/<revision>.snap.zst files.
type snapshotter struct {
	dir     string
	worldID string
	store   *store.ChunkStore
	blocks  *catalogs.BlockCatalog
	idx     runtimeIndex
	mirror  *r2s3.Mirror
	// keep > 0 moves all but the newest keep snapshots to archives/.
	keep    int
	log     *log.Logger

	mu         sync.Mutex
	lastDigest string
}

func (s *snapshotter) run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if path, _, err := s.writeIfChanged(); err != nil {
				s.log.Printf("snapshot write: %v", err)
			} else if path != "" {
				s.log.Printf("snapshot written: %s", filepath.Base(path))
			}
		}
	}
}

// writeIfChanged skips the write when the world digest matches the last
// snapshot this process wrote. Chunk loads and unloads count as changes even
// though they leave the revision alone.
func (s *snapshotter) writeIfChanged() (string, uint64, error) {
	digest := s.store.Digest()
	s.mu.Lock()
	same := digest == s.lastDigest
	s.mu.Unlock()
	if same {
		return "", s.store.Revision(), nil
	}
	return s.write()
}

func (s *snapshotter) write() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.Snapshot(s.worldID, s.blocks.Palette, s.blocks.PaletteDigest)
	rev := snap.Header.Revision
	path := filepath.Join(s.dir, fmt.Sprintf("%d.snap.zst", rev))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", rev, err
	}
	s.lastDigest = snap.Header.WorldDigest
	if s.idx != nil {
		s.idx.RecordSnapshot(path, snap)
	}
	s.mirror.Enqueue(path)
	if s.keep > 0 {
		moved, err := archive.Retain(filepath.Dir(s.dir), s.keep)
		if err != nil {
			s.log.Printf("snapshot archive: %v", err)
		} else if len(moved) > 0 {
			s.log.Printf("archived %d old snapshots", len(moved))
		}
	}
	return path, rev, nil
}

// latestSnapshot returns the highest-revision snapshot under worldDir.
func latestSnapshot(worldDir string) string {
	snaps, err := archive.ListSnapshots(filepath.Join(worldDir, "snapshots"))
	if err != nil || len(snaps) == 0 {
		return ""
	}
	return snaps[0].Path
}
