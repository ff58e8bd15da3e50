// Package archive retires old world snapshots out of the live snapshot
// directory so startup only scans the recent ones.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"voxelnav.ai/internal/persistence/snapshot"
)

const snapSuffix = ".snap.zst"

// Meta is written as meta.json next to each archived snapshot.
type Meta struct {
	WorldID    string `json:"world_id"`
	Revision   uint64 `json:"revision"`
	Chunks     int    `json:"chunks"`
	Snapshot   string `json:"snapshot"`
	ArchivedAt string `json:"archived_at"`
}

// Entry is a revision-named snapshot file.
type Entry struct {
	Path     string
	Revision uint64
}

// ListSnapshots returns the <revision>.snap.zst files in dir, newest first.
// A missing dir yields no entries.
func ListSnapshots(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapSuffix) {
			continue
		}
		rev, err := strconv.ParseUint(strings.TrimSuffix(name, snapSuffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{Path: filepath.Join(dir, name), Revision: rev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision > out[j].Revision })
	return out, nil
}

// Retain keeps the newest keep snapshots in <worldDir>/snapshots and moves
// the rest to <worldDir>/archives/rev_<N>/. It returns the archived paths.
func Retain(worldDir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	snaps, err := ListSnapshots(filepath.Join(worldDir, "snapshots"))
	if err != nil || len(snaps) <= keep {
		return nil, err
	}
	var archived []string
	for _, e := range snaps[keep:] {
		dst, err := archiveOne(worldDir, e)
		if err != nil {
			return archived, fmt.Errorf("archive %s: %w", filepath.Base(e.Path), err)
		}
		archived = append(archived, dst)
	}
	return archived, nil
}

func archiveOne(worldDir string, e Entry) (string, error) {
	h, err := snapshot.ReadHeader(e.Path)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("rev_%08d", e.Revision))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(e.Path))
	if err := move(e.Path, dst); err != nil {
		return "", err
	}
	meta := Meta{
		WorldID:    h.WorldID,
		Revision:   h.Revision,
		Chunks:     h.Chunks,
		Snapshot:   filepath.Base(dst),
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// List reads every archived snapshot's meta, oldest first.
func List(worldDir string) ([]Meta, error) {
	paths, err := filepath.Glob(filepath.Join(worldDir, "archives", "rev_*", "meta.json"))
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m Meta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

// move renames src to dst, copying when they sit on different filesystems.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
