package store

import (
	"fmt"

	snapv1 "voxelnav.ai/internal/persistence/snapshot"
)

// ExportLoadedChunks converts loaded chunk data into snapshot chunks.
func (s *ChunkStore) ExportLoadedChunks(keys []ChunkKey) []snapv1.ChunkV1 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.chunks[k]
		if ch == nil {
			continue
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		out = append(out, snapv1.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Height: ch.Height,
			Blocks: blocks,
		})
	}
	return out
}

// ImportChunks rebuilds a chunk store from snapshot chunks. remap, when
// non-nil, translates snapshot palette ids to current ones.
func ImportChunks(gen WorldGen, chunks []snapv1.ChunkV1, remap []uint16) (*ChunkStore, error) {
	store := NewChunkStore(gen)
	want := ChunkSide * ChunkSide * gen.Height
	for _, ch := range chunks {
		if ch.Height != gen.Height {
			return nil, fmt.Errorf("snapshot chunk height mismatch: got %d want %d", ch.Height, gen.Height)
		}
		if len(ch.Blocks) != want {
			return nil, fmt.Errorf("snapshot chunk blocks length mismatch: got %d want %d", len(ch.Blocks), want)
		}
		k := ChunkKey{CX: ch.CX, CZ: ch.CZ}
		c := newChunk(ch.CX, ch.CZ, ch.Height)
		for i, b := range ch.Blocks {
			if remap != nil {
				if int(b) >= len(remap) {
					return nil, fmt.Errorf("chunk %d,%d: block id %d outside snapshot palette", ch.CX, ch.CZ, b)
				}
				b = remap[b]
			}
			c.Blocks[i] = b
		}
		store.chunks[k] = c
	}
	return store, nil
}

// Snapshot captures the world parameters and every loaded chunk.
func (s *ChunkStore) Snapshot(worldID string, palette []string, paletteDigest string) snapv1.SnapshotV1 {
	g := s.Gen
	snap := snapv1.SnapshotV1{
		Header:        snapv1.Header{WorldID: worldID, Revision: s.Revision()},
		Seed:          g.Seed,
		Height:        g.Height,
		BoundaryR:     g.BoundaryR,
		FloorY:        g.FloorY,
		WallPermille:  g.WallPermille,
		FencePermille: g.FencePermille,
		PondPermille:  g.PondPermille,
		Palette:       append([]string(nil), palette...),
		PaletteDigest: paletteDigest,
		Chunks:        s.ExportLoadedChunks(s.LoadedChunkKeys()),
	}
	// Hash the exported copy so the digest matches the chunks even if an
	// edit lands while exporting.
	snap.Header.WorldDigest = SnapshotDigest(snap)
	return snap
}

// FromSnapshot restores a store after checking the chunks against the
// header's world digest. Generation parameters come from the
// snapshot so chunks loaded later match the saved world; block ids are
// translated by name into the current palette index.
func FromSnapshot(gen WorldGen, snap snapv1.SnapshotV1, index map[string]uint16) (*ChunkStore, error) {
	if want := snap.Header.WorldDigest; want != "" {
		if got := SnapshotDigest(snap); got != want {
			return nil, fmt.Errorf("snapshot world digest mismatch: header=%s chunks=%s", want, got)
		}
	}
	gen.Seed = snap.Seed
	gen.Height = snap.Height
	gen.BoundaryR = snap.BoundaryR
	gen.FloorY = snap.FloorY
	gen.WallPermille = snap.WallPermille
	gen.FencePermille = snap.FencePermille
	gen.PondPermille = snap.PondPermille

	remap := make([]uint16, len(snap.Palette))
	for i, name := range snap.Palette {
		id, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("snapshot block %q missing from catalog", name)
		}
		remap[i] = id
	}
	s, err := ImportChunks(gen, snap.Chunks, remap)
	if err != nil {
		return nil, err
	}
	s.revision = snap.Header.Revision
	return s, nil
}
