package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	ChunkSize      []int `yaml:"chunk_size"`
	WorldBoundaryR int   `yaml:"world_boundary_r"`

	WorldGen    WorldGen    `yaml:"world_gen"`
	Pathfinding Pathfinding `yaml:"pathfinding"`
}

type WorldGen struct {
	Seed   int64 `yaml:"seed"`
	FloorY int   `yaml:"floor_y"`

	// Feature densities per 1000 columns.
	WallPermille  int `yaml:"wall_permille"`
	FencePermille int `yaml:"fence_permille"`
	PondPermille  int `yaml:"pond_permille"`
}

type Pathfinding struct {
	StepsPerInvocation    int     `yaml:"steps_per_invocation"`
	DefaultMaxSteps       int     `yaml:"default_max_steps"`
	Heuristic             string  `yaml:"heuristic"`
	HeuristicOnly         bool    `yaml:"heuristic_only"`
	MaxUp                 int     `yaml:"max_up"`
	MaxDown               int     `yaml:"max_down"`
	AgentWidth            float64 `yaml:"agent_width"`
	AgentHeight           float64 `yaml:"agent_height"`
	MaxConcurrentSearches int     `yaml:"max_concurrent_searches"`
	// RetainFinished bounds how many terminal searches stay pollable.
	RetainFinished int  `yaml:"retain_finished"`
	Trace          bool `yaml:"trace"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		ChunkSize:       []int{16, 16, 64},
		WorldBoundaryR:  512,
		WorldGen: WorldGen{
			Seed:          1,
			FloorY:        20,
			WallPermille:  6,
			FencePermille: 4,
			PondPermille:  3,
		},
		Pathfinding: Pathfinding{
			StepsPerInvocation:    5,
			DefaultMaxSteps:       2000,
			Heuristic:             "EUCLIDEAN",
			MaxUp:                 1,
			MaxDown:               1,
			AgentWidth:            0.6,
			AgentHeight:           1.8,
			MaxConcurrentSearches: 8,
			RetainFinished:        1024,
		},
	}
}

// Load reads a tuning file on top of Defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if len(t.ChunkSize) != 3 || t.ChunkSize[0] != 16 || t.ChunkSize[1] != 16 || t.ChunkSize[2] <= 0 {
		return fmt.Errorf("chunk_size must be [16,16,H], got %v", t.ChunkSize)
	}
	if t.WorldBoundaryR <= 0 {
		return fmt.Errorf("world_boundary_r must be positive")
	}
	if t.WorldGen.FloorY < 0 || t.WorldGen.FloorY >= t.ChunkSize[2] {
		return fmt.Errorf("world_gen.floor_y %d outside chunk height %d", t.WorldGen.FloorY, t.ChunkSize[2])
	}
	p := t.Pathfinding
	if p.StepsPerInvocation <= 0 {
		return fmt.Errorf("pathfinding.steps_per_invocation must be positive")
	}
	if p.DefaultMaxSteps <= 0 {
		return fmt.Errorf("pathfinding.default_max_steps must be positive")
	}
	if p.MaxConcurrentSearches <= 0 {
		return fmt.Errorf("pathfinding.max_concurrent_searches must be positive")
	}
	return nil
}

// Height is the world height in blocks.
func (t Tuning) Height() int { return t.ChunkSize[2] }
