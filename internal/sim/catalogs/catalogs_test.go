package catalogs

import (
	"testing"

	"voxelnav.ai/internal/sim/pathfind"
)

func TestLoadRepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Blocks.Palette[0] != "AIR" || c.Blocks.Index["AIR"] != 0 {
		t.Fatalf("AIR must be palette id 0, got %v", c.Blocks.Palette[:1])
	}
	if got := c.Blocks.Info(c.Blocks.MustIndex("FENCE")); !got.Solid || got.Shape != pathfind.ShapeFence {
		t.Fatalf("FENCE info = %+v", got)
	}
	if got := c.Blocks.Info(c.Blocks.MustIndex("FENCE_GATE")); got.Shape != pathfind.ShapeFence {
		t.Fatalf("gate should behave like a fence, got %+v", got)
	}
	if got := c.Blocks.Info(c.Blocks.MustIndex("WATER")); got.Solid || got.Shape != pathfind.ShapeStillLiquid {
		t.Fatalf("WATER info = %+v", got)
	}
	if got := c.Blocks.Info(c.Blocks.MustIndex("FLOWING_WATER")); got.Shape != pathfind.ShapeNone {
		t.Fatalf("flowing water has no override, got %+v", got)
	}
	if got := c.Blocks.Info(60000); !got.Solid {
		t.Fatalf("unknown palette id should be solid")
	}
	if _, ok := c.Agents.ByID["HUMANOID"]; !ok {
		t.Fatalf("missing HUMANOID agent profile")
	}
	if c.Blocks.PaletteDigest == "" || c.Blocks.DefsDigest == "" {
		t.Fatalf("missing digests")
	}
}

func TestParseBlocksRejects(t *testing.T) {
	cases := map[string]string{
		"missing air":   `[{"id":"STONE","solid":true}]`,
		"solid air":     `[{"id":"AIR","solid":true}]`,
		"empty id":      `[{"id":"AIR"},{"id":""}]`,
		"unknown shape": `[{"id":"AIR"},{"id":"X","shape":"STAIRS"}]`,
		"bad json":      `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var b BlockCatalog
			if err := parseBlocks([]byte(raw), &b); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPaletteIsStable(t *testing.T) {
	var a, b BlockCatalog
	if err := parseBlocks([]byte(`[{"id":"STONE","solid":true},{"id":"AIR"},{"id":"DIRT","solid":true}]`), &a); err != nil {
		t.Fatalf("parse a: %v", err)
	}
	if err := parseBlocks([]byte(`[{"id":"DIRT","solid":true},{"id":"STONE","solid":true},{"id":"AIR"}]`), &b); err != nil {
		t.Fatalf("parse b: %v", err)
	}
	if a.PaletteDigest != b.PaletteDigest {
		t.Fatalf("palette digest depends on file order")
	}
	want := []string{"AIR", "DIRT", "STONE"}
	for i, id := range want {
		if a.Palette[i] != id {
			t.Fatalf("palette = %v, want %v", a.Palette, want)
		}
	}
}
