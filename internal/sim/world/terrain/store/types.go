package store

import "sync"

const ChunkSide = 16

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16 // len = 16*16*Height, index x + z*16 + y*256

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, height int) *Chunk {
	return &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: height,
		Blocks: make([]uint16, ChunkSide*ChunkSide*height),
	}
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSide + y*ChunkSide*ChunkSide
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

// Digest hashes the chunk's blocks, recomputing only after an edit. Callers
// hold the store's write lock.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		c.hash = digestBlocks(c.Blocks)
		c.dirty = false
	}
	return c.hash
}

// WorldGen carries generation parameters plus the palette ids of the blocks
// the generator places.
type WorldGen struct {
	Seed      int64
	Height    int
	BoundaryR int // blocks

	FloorY           int
	SpawnClearRadius int
	WallPermille     int
	FencePermille    int
	PondPermille     int

	Air   uint16
	Stone uint16
	Dirt  uint16
	Grass uint16
	Log   uint16
	Fence uint16
	Water uint16
}

// ChunkStore is the voxel world. It is shared between the simulation, which
// edits blocks, and background searches, which read through a View; mu
// guards every field below it.
type ChunkStore struct {
	Gen WorldGen

	mu       sync.RWMutex
	chunks   map[ChunkKey]*Chunk
	revision uint64
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		Gen:    gen,
		chunks: map[ChunkKey]*Chunk{},
	}
}
