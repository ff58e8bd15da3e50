package store

import genpkg "voxelnav.ai/internal/sim/world/terrain/gen"

// InBounds reports whether the coordinate lies inside the world column range
// and boundary.
func (s *ChunkStore) InBounds(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	return s.inBoundary(x, z)
}

func (s *ChunkStore) inBoundary(x, z int) bool {
	if s.Gen.BoundaryR > 0 {
		if x < -s.Gen.BoundaryR || x > s.Gen.BoundaryR || z < -s.Gen.BoundaryR || z > s.Gen.BoundaryR {
			return false
		}
	}
	return true
}

func split(x, z int) (k ChunkKey, lx, lz int) {
	k = ChunkKey{CX: genpkg.FloorDiv(x, ChunkSide), CZ: genpkg.FloorDiv(z, ChunkSide)}
	return k, genpkg.Mod(x, ChunkSide), genpkg.Mod(z, ChunkSide)
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sortKeys(keys)
	return keys
}

func (s *ChunkStore) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Block reads a block without generating anything. loaded is false when the
// owning chunk is not resident or the coordinate is out of bounds.
func (s *ChunkStore) Block(x, y, z int) (b uint16, loaded bool) {
	if !s.InBounds(x, y, z) {
		return s.Gen.Air, false
	}
	k, lx, lz := split(x, z)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[k]
	if !ok {
		return s.Gen.Air, false
	}
	return ch.Get(lx, y, lz), true
}

// SetBlock writes one block, generating its chunk first if needed. Every
// change bumps the revision; writing the current value does not.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) {
	s.setBlock(x, y, z, b)
}

func (s *ChunkStore) setBlock(x, y, z int, b uint16) bool {
	if !s.InBounds(x, y, z) {
		return false
	}
	k, lx, lz := split(x, z)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.getOrGenLocked(k.CX, k.CZ)
	if ch.Get(lx, y, lz) == b {
		return false
	}
	ch.Set(lx, y, lz, b)
	s.revision++
	return true
}

// Fill sets every block in the box [min, max] to b. It reports how many
// cells changed and how many fell outside the world. Each change is its own
// edit, so concurrent readers may see a partly filled box.
func (s *ChunkStore) Fill(min, max [3]int, b uint16) (applied, skipped int) {
	for x := min[0]; x <= max[0]; x++ {
		for z := min[2]; z <= max[2]; z++ {
			for y := min[1]; y <= max[1]; y++ {
				if !s.InBounds(x, y, z) {
					skipped++
					continue
				}
				if s.setBlock(x, y, z, b) {
					applied++
				}
			}
		}
	}
	return applied, skipped
}

func (s *ChunkStore) getOrGenLocked(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := newChunk(cx, cz, s.Gen.Height)
	s.GenerateChunk(ch)
	ch.dirty = true
	s.chunks[k] = ch
	return ch
}

// EnsureArea loads every chunk overlapping the square of radius r blocks
// around (x,z), clipped to the world boundary. It returns how many chunks
// were generated.
func (s *ChunkStore) EnsureArea(x, z, r int) int {
	if r < 0 {
		r = 0
	}
	minX, maxX, minZ, maxZ := x-r, x+r, z-r, z+r
	if b := s.Gen.BoundaryR; b > 0 {
		minX, maxX = max(minX, -b), min(maxX, b)
		minZ, maxZ = max(minZ, -b), min(maxZ, b)
	}
	if minX > maxX || minZ > maxZ {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for cz := genpkg.FloorDiv(minZ, ChunkSide); cz <= genpkg.FloorDiv(maxZ, ChunkSide); cz++ {
		for cx := genpkg.FloorDiv(minX, ChunkSide); cx <= genpkg.FloorDiv(maxX, ChunkSide); cx++ {
			if _, ok := s.chunks[ChunkKey{CX: cx, CZ: cz}]; !ok {
				s.getOrGenLocked(cx, cz)
				n++
			}
		}
	}
	return n
}

// Unload drops a chunk. Searches treat its columns as unavailable until it
// is loaded again.
func (s *ChunkStore) Unload(cx, cz int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ChunkKey{CX: cx, CZ: cz}
	if _, ok := s.chunks[k]; !ok {
		return false
	}
	delete(s.chunks, k)
	return true
}

// SurfaceY returns the first air block above the highest solid block in the
// column, or -1 if the column is not loaded.
func (s *ChunkStore) SurfaceY(x, z int, solid func(uint16) bool) int {
	for y := s.Gen.Height - 1; y >= 0; y-- {
		b, ok := s.Block(x, y, z)
		if !ok {
			return -1
		}
		if solid(b) {
			return y + 1
		}
	}
	return 0
}
