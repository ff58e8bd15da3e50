package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"

	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/pathfind"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		worldDir  = flag.String("world_dir", "", "world dir containing searches/searches-*.jsonl.zst (default: the snapshot's world dir)")
		configDir = flag.String("configs", "./configs", "config directory")
		anyRev    = flag.Bool("any_revision", false, "also replay searches recorded against a different world revision")
		maxDiffs  = flag.Int("max_diffs", 10, "stop after this many mismatches (0 = no limit)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s revision=%d seed=%d height=%d chunks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Revision, snap.Seed, snap.Height, len(snap.Chunks))

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	chunks, err := store.FromSnapshot(store.NewWorldGen(tuning.Defaults(), &cats.Blocks), snap, cats.Blocks.Index)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	digest, err := checkWorld(chunks, snap, cats.Blocks.PaletteDigest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	fmt.Printf("world digest=%s\n", digest)
	view := store.View{Store: chunks, Blocks: &cats.Blocks}

	dir := *worldDir
	if dir == "" {
		// <world>/snapshots/<rev>.snap.zst
		dir = filepath.Dir(filepath.Dir(*snapPath))
	}

	var st stats
	errStop := errors.New("stop")
	err = persistlog.ReadSearches(dir, func(rec navigation.Record) error {
		if !*anyRev && rec.WorldRev != snap.Header.Revision {
			st.skipped++
			return nil
		}
		diff, ok, err := replayRecord(view, rec)
		if err != nil {
			return fmt.Errorf("search %s: %w", rec.ID, err)
		}
		if !ok {
			st.skipped++
			return nil
		}
		st.checked++
		if diff != "" {
			st.mismatched++
			fmt.Printf("mismatch search=%s start=%v goal=%v (-logged +replayed):\n%s", rec.ID, rec.Start, rec.Goal, diff)
			if *maxDiffs > 0 && st.mismatched >= *maxDiffs {
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay done: checked=%d mismatched=%d skipped=%d\n", st.checked, st.mismatched, st.skipped)
	if st.mismatched > 0 {
		os.Exit(1)
	}
}

// checkWorld confirms the rebuilt store holds the world the snapshot
// describes. Snapshots without a digest, or saved under another palette,
// were only checked against their own chunks at import.
func checkWorld(chunks *store.ChunkStore, snap snapshot.SnapshotV1, paletteDigest string) (string, error) {
	got := chunks.Digest()
	want := snap.Header.WorldDigest
	if want == "" || snap.PaletteDigest != paletteDigest {
		return got, nil
	}
	if got != want {
		return got, fmt.Errorf("rebuilt world digest %s does not match snapshot %s", got, want)
	}
	return got, nil
}

type stats struct {
	checked, mismatched, skipped int
}

// outcome is the part of a search result that must be reproducible.
type outcome struct {
	Status    string
	Reason    string
	Waypoints [][3]int
	Cost      int
	Steps     int
}

// replayRecord re-runs one logged search synchronously and diffs the
// outcome. Cancelled searches stopped at a wall-clock dependent step, so
// they are reported as not replayable.
func replayRecord(view pathfind.WorldView, rec navigation.Record) (diff string, replayable bool, err error) {
	if rec.Reason == pathfind.ReasonCancelled.String() {
		return "", false, nil
	}
	opts, err := rec.PathfindOptions()
	if err != nil {
		return "", false, err
	}
	s := pathfind.NewSearch(view, rec.PathfindRequest(), opts)
	for s.Advance(256) == pathfind.Calculating {
	}
	res := s.Result()

	got := outcome{
		Status: res.Status.String(),
		Reason: res.Reason.String(),
		Cost:   res.Cost,
		Steps:  res.Steps,
	}
	for _, p := range res.Waypoints {
		got.Waypoints = append(got.Waypoints, p.Array())
	}
	want := outcome{
		Status:    rec.Status,
		Reason:    rec.Reason,
		Waypoints: rec.Waypoints,
		Cost:      rec.Cost,
		Steps:     rec.Steps,
	}
	return cmp.Diff(want, got), true, nil
}
