package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelnav.ai/internal/sim/pathfind"
)

type Catalogs struct {
	Blocks BlockCatalog
	Agents AgentCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	// info is indexed by palette id.
	info []pathfind.BlockInfo
}

// Block shapes understood by the navigator. GATE behaves like FENCE and
// flowing LIQUID has no override.
const (
	ShapeNone        = ""
	ShapeFence       = "FENCE"
	ShapeGate        = "GATE"
	ShapeStillLiquid = "STILL_LIQUID"
	ShapeLiquid      = "LIQUID"
)

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
	Shape string `json:"shape,omitempty"`
}

type AgentCatalog struct {
	ByID   map[string]AgentDef
	Digest string
}

// AgentDef is a named movement profile clients can reference instead of
// passing footprint and step limits on every request.
type AgentDef struct {
	ID      string  `json:"id"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	MaxUp   int     `json:"max_up"`
	MaxDown int     `json:"max_down"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadAgents(filepath.Join(configDir, "agents.json"), &c.Agents); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, err := shapeOf(d.Shape); err != nil {
			return fmt.Errorf("blocks.json: %s: %w", d.ID, err)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	air, ok := out.Defs["AIR"]
	if !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	if air.Solid {
		return fmt.Errorf("blocks.json: AIR must not be solid")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	if len(ids) > 1<<16 {
		return fmt.Errorf("blocks.json: too many blocks (%d)", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.info = make([]pathfind.BlockInfo, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		d := out.Defs[id]
		shape, _ := shapeOf(d.Shape)
		out.info[i] = pathfind.BlockInfo{Solid: d.Solid, Shape: shape}
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func shapeOf(s string) (pathfind.Shape, error) {
	switch s {
	case ShapeNone, ShapeLiquid:
		return pathfind.ShapeNone, nil
	case ShapeFence, ShapeGate:
		return pathfind.ShapeFence, nil
	case ShapeStillLiquid:
		return pathfind.ShapeStillLiquid, nil
	default:
		return pathfind.ShapeNone, fmt.Errorf("unknown shape %q", s)
	}
}

// Info returns what the navigator needs to know about a palette id. Unknown
// ids are treated as solid.
func (b *BlockCatalog) Info(id uint16) pathfind.BlockInfo {
	if int(id) >= len(b.info) {
		return pathfind.BlockInfo{Solid: true}
	}
	return b.info[id]
}

// MustIndex returns the palette id for a block that is known to exist.
func (b *BlockCatalog) MustIndex(id string) uint16 {
	v, ok := b.Index[id]
	if !ok {
		panic(fmt.Sprintf("catalogs: unknown block %q", id))
	}
	return v
}

func loadAgents(path string, out *AgentCatalog) error {
	out.ByID = map[string]AgentDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Allow missing; requests then carry their own footprint.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []AgentDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("agents.json: %w", err)
	}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("agents.json: empty id")
		}
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("agents.json: %s: footprint must be positive", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
