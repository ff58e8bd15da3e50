package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	snapv1 "voxelnav.ai/internal/persistence/snapshot"
)

// Digest hashes the world content: seed, height and every loaded chunk in
// key order. Two stores with the same digest answer every block query the
// same way inside their loaded area. The revision is not part of it.
func (s *ChunkStore) Digest() string {
	// Chunk digests are cached on the chunk, so this needs the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sortKeys(keys)
	d := newWorldDigest(s.Gen.Seed, s.Gen.Height)
	for _, k := range keys {
		d.chunk(k, s.chunks[k].Digest())
	}
	return d.sum()
}

// SnapshotDigest computes Digest over snapshot chunks as stored, before any
// palette remap.
func SnapshotDigest(snap snapv1.SnapshotV1) string {
	chunks := append([]snapv1.ChunkV1(nil), snap.Chunks...)
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].CX != chunks[j].CX {
			return chunks[i].CX < chunks[j].CX
		}
		return chunks[i].CZ < chunks[j].CZ
	})
	d := newWorldDigest(snap.Seed, snap.Height)
	for _, ch := range chunks {
		d.chunk(ChunkKey{CX: ch.CX, CZ: ch.CZ}, digestBlocks(ch.Blocks))
	}
	return d.sum()
}

type worldDigest struct {
	h   hash.Hash
	tmp [8]byte
}

func newWorldDigest(seed int64, height int) *worldDigest {
	d := &worldDigest{h: sha256.New()}
	d.i64(seed)
	d.i64(int64(height))
	return d
}

func (d *worldDigest) i64(v int64) {
	binary.LittleEndian.PutUint64(d.tmp[:], uint64(v))
	d.h.Write(d.tmp[:])
}

func (d *worldDigest) chunk(k ChunkKey, sum [32]byte) {
	d.i64(int64(k.CX))
	d.i64(int64(k.CZ))
	d.h.Write(sum[:])
}

func (d *worldDigest) sum() string { return hex.EncodeToString(d.h.Sum(nil)) }

func digestBlocks(blocks []uint16) [32]byte {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range blocks {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
}
