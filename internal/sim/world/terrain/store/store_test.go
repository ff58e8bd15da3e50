package store

import (
	"sync"
	"testing"

	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/pathfind"
	"voxelnav.ai/internal/sim/tuning"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load("../../../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return c
}

func testWorld(t *testing.T) (*ChunkStore, *catalogs.Catalogs) {
	t.Helper()
	cats := loadCatalogs(t)
	tu := tuning.Defaults()
	tu.ChunkSize = []int{16, 16, 16}
	tu.WorldGen.FloorY = 4
	tu.WorldBoundaryR = 64
	return NewChunkStore(NewWorldGen(tu, &cats.Blocks)), cats
}

func TestGenerateLayers(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 0)
	b := &cats.Blocks
	want := map[int]string{0: "STONE", 1: "DIRT", 3: "GRASS", 4: "AIR"}
	for y, id := range want {
		if got, _ := s.Block(0, y, 0); got != b.MustIndex(id) {
			t.Fatalf("y=%d: got %s want %s", y, b.Palette[got], id)
		}
	}
	if got := s.SurfaceY(0, 0, func(id uint16) bool { return b.Info(id).Solid }); got != 4 {
		t.Fatalf("surface = %d, want 4", got)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, _ := testWorld(t)
	b, _ := testWorld(t)
	a.EnsureArea(0, 0, 40)
	b.EnsureArea(0, 0, 40)
	if a.Digest() != b.Digest() {
		t.Fatalf("identical seeds generated different worlds")
	}

	c, _ := testWorld(t)
	c.Gen.Seed++
	c.EnsureArea(0, 0, 40)
	if c.Digest() == a.Digest() {
		t.Fatalf("different seeds share a digest")
	}
}

func TestBoundsAndUnload(t *testing.T) {
	s, _ := testWorld(t)
	if n := s.EnsureArea(0, 0, 20); n == 0 {
		t.Fatalf("expected chunks generated")
	}
	if n := s.EnsureArea(0, 0, 20); n != 0 {
		t.Fatalf("second EnsureArea generated %d chunks", n)
	}
	if _, ok := s.Block(0, -1, 0); ok {
		t.Fatalf("y<0 should be out of bounds")
	}
	if _, ok := s.Block(100, 4, 0); ok {
		t.Fatalf("past boundary should be out of bounds")
	}
	if !s.Unload(0, 0) {
		t.Fatalf("unload failed")
	}
	if _, ok := s.Block(1, 1, 1); ok {
		t.Fatalf("unloaded chunk still readable")
	}
}

func TestSetBlockBumpsRevision(t *testing.T) {
	s, cats := testWorld(t)
	stone := cats.Blocks.MustIndex("STONE")
	s.SetBlock(2, 5, 2, stone)
	s.SetBlock(2, 5, 2, stone)
	if s.Revision() != 1 {
		t.Fatalf("revision = %d, want 1", s.Revision())
	}
	if b, ok := s.Block(2, 5, 2); !ok || b != stone {
		t.Fatalf("block not set")
	}
}

func TestDigestFollowsEdits(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 16)
	before := s.Digest()
	if s.Digest() != before {
		t.Fatalf("digest not stable")
	}

	stone, air := cats.Blocks.MustIndex("STONE"), cats.Blocks.MustIndex("AIR")
	s.SetBlock(3, 8, 3, stone)
	edited := s.Digest()
	if edited == before {
		t.Fatalf("edit did not change the digest")
	}
	s.SetBlock(3, 8, 3, air)
	if s.Digest() != before {
		t.Fatalf("reverting the edit should restore the digest")
	}
	if s.Revision() != 2 {
		t.Fatalf("revision = %d, want 2", s.Revision())
	}

	s.Unload(0, 0)
	if s.Digest() == before {
		t.Fatalf("unloading a chunk should change the digest")
	}
}

func TestFillCountsAndClips(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 4)
	fence := cats.Blocks.MustIndex("FENCE")

	applied, skipped := s.Fill([3]int{0, 6, 0}, [3]int{2, 7, 0}, fence)
	if applied != 6 || skipped != 0 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	if applied, _ := s.Fill([3]int{0, 6, 0}, [3]int{2, 7, 0}, fence); applied != 0 {
		t.Fatalf("refill applied %d", applied)
	}
	if _, skipped := s.Fill([3]int{0, -2, 0}, [3]int{0, -1, 0}, fence); skipped != 2 {
		t.Fatalf("expected cells below the world skipped, got %d", skipped)
	}
	if s.Revision() != 6 {
		t.Fatalf("revision = %d, want 6", s.Revision())
	}
}

func TestViewQueryBlock(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 0)
	v := View{Store: s, Blocks: &cats.Blocks}

	cases := []struct {
		name  string
		p     pathfind.Vec3i
		solid bool
		valid bool
	}{
		{"ground", pathfind.Vec3i{Y: 2}, true, true},
		{"air", pathfind.Vec3i{Y: 5}, false, true},
		{"above height", pathfind.Vec3i{Y: 40}, false, true},
		{"void", pathfind.Vec3i{Y: -1}, false, false},
		{"unloaded", pathfind.Vec3i{X: 40, Y: 5}, false, false},
		{"boundary", pathfind.Vec3i{X: 65, Y: 5}, false, false},
	}
	for _, tc := range cases {
		info, valid := v.QueryBlock(tc.p)
		if valid != tc.valid || (valid && info.Solid != tc.solid) {
			t.Fatalf("%s: got solid=%v valid=%v", tc.name, info.Solid, valid)
		}
	}

	s.SetBlock(3, 4, 3, cats.Blocks.MustIndex("FENCE"))
	if info, _ := v.QueryBlock(pathfind.Vec3i{X: 3, Y: 4, Z: 3}); info.Shape != pathfind.ShapeFence {
		t.Fatalf("fence shape lost: %+v", info)
	}
}

func TestSearchThroughView(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 8)
	fence := cats.Blocks.MustIndex("FENCE")
	for z := -7; z <= 7; z++ {
		if z != 5 {
			s.SetBlock(2, 4, z, fence)
		}
	}
	v := View{Store: s, Blocks: &cats.Blocks}
	req := pathfind.Request{
		Start:    pathfind.Vec3i{X: 0, Y: 4, Z: 0},
		Goal:     pathfind.Vec3i{X: 5, Y: 4, Z: 0},
		MaxSteps: 2000,
		MaxUp:    1,
		MaxDown:  1,
	}
	srch := pathfind.NewSearch(v, req, pathfind.Options{})
	for srch.Advance(100) == pathfind.Calculating {
	}
	r := srch.Result()
	if r.Status != pathfind.PathFound {
		t.Fatalf("expected detour through fence gap, got %s (%s)", r.Status, r.Reason)
	}
	for _, p := range r.Waypoints {
		if p.X == 2 && p.Z != 5 {
			t.Fatalf("path crossed fence at %v", p)
		}
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s, cats := testWorld(t)
	s.EnsureArea(0, 0, 16)
	v := View{Store: s, Blocks: &cats.Blocks}
	stone := cats.Blocks.MustIndex("STONE")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				v.QueryBlock(pathfind.Vec3i{X: j % 16, Y: 5, Z: j % 7})
			}
		}()
	}
	for j := 0; j < 500; j++ {
		s.SetBlock(j%16, 5, j%7, stone)
	}
	wg.Wait()
}
