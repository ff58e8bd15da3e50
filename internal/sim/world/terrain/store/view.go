package store

import (
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/pathfind"
	"voxelnav.ai/internal/sim/tuning"
)

// BlockInfoer resolves palette ids for the navigator.
type BlockInfoer interface {
	Info(id uint16) pathfind.BlockInfo
}

// View exposes a store to searches. Each query takes the store's read lock,
// so searches see edits between steps but never a torn chunk.
type View struct {
	Store  *ChunkStore
	Blocks BlockInfoer
}

var _ pathfind.WorldView = View{}

// QueryBlock never generates terrain: unloaded chunks, the void below y=0 and
// anything past the boundary are unavailable. Above the build height is air.
func (v View) QueryBlock(p pathfind.Vec3i) (pathfind.BlockInfo, bool) {
	s := v.Store
	if p.Y < 0 || !s.inBoundary(p.X, p.Z) {
		return pathfind.BlockInfo{}, false
	}
	if p.Y >= s.Gen.Height {
		k, _, _ := split(p.X, p.Z)
		s.mu.RLock()
		_, ok := s.chunks[k]
		s.mu.RUnlock()
		if !ok {
			return pathfind.BlockInfo{}, false
		}
		return v.Blocks.Info(s.Gen.Air), true
	}
	b, ok := s.Block(p.X, p.Y, p.Z)
	if !ok {
		return pathfind.BlockInfo{}, false
	}
	return v.Blocks.Info(b), true
}

// NewWorldGen resolves generation parameters and block ids.
func NewWorldGen(t tuning.Tuning, blocks *catalogs.BlockCatalog) WorldGen {
	return WorldGen{
		Seed:             t.WorldGen.Seed,
		Height:           t.Height(),
		BoundaryR:        t.WorldBoundaryR,
		FloorY:           t.WorldGen.FloorY,
		SpawnClearRadius: 8,
		WallPermille:     t.WorldGen.WallPermille,
		FencePermille:    t.WorldGen.FencePermille,
		PondPermille:     t.WorldGen.PondPermille,

		Air:   blocks.MustIndex("AIR"),
		Stone: blocks.MustIndex("STONE"),
		Dirt:  blocks.MustIndex("DIRT"),
		Grass: blocks.MustIndex("GRASS"),
		Log:   blocks.MustIndex("LOG"),
		Fence: blocks.MustIndex("FENCE"),
		Water: blocks.MustIndex("WATER"),
	}
}
