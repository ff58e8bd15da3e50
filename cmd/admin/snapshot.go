package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelnav.ai/internal/persistence/archive"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

const snapshotUsage = "usage: admin snapshot gen|info|save|list|archive [flags]"

func snapshotCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, snapshotUsage)
		os.Exit(2)
	}
	switch args[0] {
	case "gen":
		genCmd(args[1:])
	case "info":
		infoCmd(args[1:])
	case "save":
		saveCmd(args[1:])
	case "list":
		listSnapshotsCmd(args[1:])
	case "archive":
		archiveCmd(args[1:])
	default:
		fmt.Fprintln(os.Stderr, snapshotUsage)
		os.Exit(2)
	}
}

// listSnapshotsCmd prints live snapshots newest first, then archived ones.
func listSnapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshot list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	_ = fs.Parse(args)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	live, err := archive.ListSnapshots(filepath.Join(worldDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	archived, err := archive.List(worldDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list archives:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{"live": live, "archived": archived})
}

// archiveCmd applies the server's retention policy offline.
func archiveCmd(args []string) {
	fs := flag.NewFlagSet("snapshot archive", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	keep := fs.Int("keep", 8, "snapshots to keep in the live dir")
	_ = fs.Parse(args)

	if *keep <= 0 {
		fmt.Fprintln(os.Stderr, "-keep must be > 0")
		os.Exit(2)
	}
	moved, err := archive.Retain(filepath.Join(*dataDir, "worlds", *worldID), *keep)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archive:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{"archived": moved})
}

// genCmd generates a fresh world offline and writes it as a snapshot.
func genCmd(args []string) {
	fs := flag.NewFlagSet("snapshot gen", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	tuningPath := fs.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	seed := fs.Int64("seed", 0, "seed override (0 keeps tuning)")
	radius := fs.Int("radius", 64, "generate chunks within this many blocks of the origin")
	outPath := fs.String("out", "", "output snapshot path (default: <data>/worlds/<world>/snapshots/<rev>.snap.zst)")
	_ = fs.Parse(args)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	if *seed != 0 {
		tune.WorldGen.Seed = *seed
	}

	s := store.NewChunkStore(store.NewWorldGen(tune, &cats.Blocks))
	n := s.EnsureArea(0, 0, *radius)
	snap := s.Snapshot(*worldID, cats.Blocks.Palette, cats.Blocks.PaletteDigest)

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(*dataDir, "worlds", *worldID, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Revision))
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot ok: world=%s seed=%d chunks=%d out=%s\n", *worldID, snap.Seed, n, out)
}

type snapshotInfo struct {
	Path      string          `json:"path"`
	Header    snapshot.Header `json:"header"`
	Seed      int64           `json:"seed"`
	Height    int             `json:"height"`
	BoundaryR int             `json:"boundary_r"`
	FloorY    int             `json:"floor_y"`
	Palette   int             `json:"palette"`
	Blocks    []blockCount    `json:"blocks"`
}

type blockCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("snapshot info", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (default: latest for -world)")
	headerOnly := fs.Bool("header", false, "print only the header")
	_ = fs.Parse(args)

	path := resolveSnapshot(*snapPath, *dataDir, *worldID)
	if *headerOnly {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(path, snap))
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotInfo {
	counts := make([]int, len(snap.Palette))
	for _, ch := range snap.Chunks {
		for _, b := range ch.Blocks {
			if int(b) < len(counts) {
				counts[b]++
			}
		}
	}
	var blocks []blockCount
	for i, n := range counts {
		if n > 0 {
			blocks = append(blocks, blockCount{ID: snap.Palette[i], Count: n})
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Count != blocks[j].Count {
			return blocks[i].Count > blocks[j].Count
		}
		return blocks[i].ID < blocks[j].ID
	})
	return snapshotInfo{
		Path:      path,
		Header:    snap.Header,
		Seed:      snap.Seed,
		Height:    snap.Height,
		BoundaryR: snap.BoundaryR,
		FloorY:    snap.FloorY,
		Palette:   len(snap.Palette),
		Blocks:    blocks,
	}
}

// maxFillCells bounds one fill so a typo cannot rewrite the whole world.
const maxFillCells = 1 << 20

// fillCmd sets every block in a box to one block type and writes the result
// as a new snapshot. Useful for staging obstacles before a replay.
func fillCmd(args []string) {
	fs := flag.NewFlagSet("fill", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot to edit (default: latest for -world)")
	aabb := fs.String("aabb", "", "box x1,y1,z1:x2,y2,z2 (required)")
	blockID := fs.String("block", "", "block id, e.g. FENCE (required)")
	outPath := fs.String("out", "", "output snapshot path (default: next to the input, named by revision)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*aabb) == "" || strings.TrimSpace(*blockID) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb or -block")
		os.Exit(2)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}
	cells := (max[0] - min[0] + 1) * (max[1] - min[1] + 1) * (max[2] - min[2] + 1)
	if cells > maxFillCells {
		fmt.Fprintf(os.Stderr, "box too large: %d cells (max %d)\n", cells, maxFillCells)
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalogs:", err)
		os.Exit(1)
	}
	b, ok := cats.Blocks.Index[strings.ToUpper(strings.TrimSpace(*blockID))]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown block:", *blockID)
		os.Exit(2)
	}

	path := resolveSnapshot(*snapPath, *dataDir, *worldID)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	s, err := store.FromSnapshot(store.NewWorldGen(tuning.Defaults(), &cats.Blocks), snap, cats.Blocks.Index)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	applied, skipped := s.Fill(min, max, b)
	out := s.Snapshot(snap.Header.WorldID, cats.Blocks.Palette, cats.Blocks.PaletteDigest)
	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(filepath.Dir(path), fmt.Sprintf("%d.snap.zst", out.Header.Revision))
	}
	if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("fill ok: snapshot=%s aabb=%s block=%s applied=%d skipped=%d revision=%d out=%s\n",
		filepath.Base(path), *aabb, *blockID, applied, skipped, out.Header.Revision, *outPath)
}

func resolveSnapshot(path, dataDir, worldID string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = latestSnapshot(filepath.Join(dataDir, "worlds", worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run `admin snapshot gen`")
		os.Exit(2)
	}
	return path
}
