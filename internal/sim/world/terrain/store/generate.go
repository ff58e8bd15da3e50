package store

import genpkg "voxelnav.ai/internal/sim/world/terrain/gen"

// GenerateChunk fills ch from the seed: stone, dirt and a grass top up to
// FloorY, then the surface feature for each column.
func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	g := s.Gen
	params := genpkg.Params{
		Seed:             g.Seed,
		SpawnClearRadius: g.SpawnClearRadius,
		WallPermille:     g.WallPermille,
		FencePermille:    g.FencePermille,
		PondPermille:     g.PondPermille,
	}
	top := min(g.FloorY, ch.Height)
	for z := 0; z < ChunkSide; z++ {
		for x := 0; x < ChunkSide; x++ {
			wx := ch.CX*ChunkSide + x
			wz := ch.CZ*ChunkSide + z
			if !s.inBoundary(wx, wz) {
				continue
			}
			for y := 0; y < top; y++ {
				b := g.Stone
				switch {
				case y == top-1:
					b = g.Grass
				case y >= top-3:
					b = g.Dirt
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}

			switch genpkg.FeatureAt(params, wx, wz) {
			case genpkg.Wall:
				for y := top; y < min(top+3, ch.Height); y++ {
					ch.Blocks[ch.index(x, y, z)] = g.Log
				}
			case genpkg.Fence:
				if top < ch.Height {
					ch.Blocks[ch.index(x, top, z)] = g.Fence
				}
			case genpkg.Pond:
				for y := max(top-2, 0); y < top; y++ {
					ch.Blocks[ch.index(x, y, z)] = g.Water
				}
			}
		}
	}
}
