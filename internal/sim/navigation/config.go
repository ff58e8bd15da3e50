package navigation

import (
	"fmt"

	"voxelnav.ai/internal/sim/pathfind"
	"voxelnav.ai/internal/sim/tuning"
)

type Config struct {
	StepsPerInvocation int
	DefaultMaxSteps    int
	Heuristic          pathfind.Heuristic
	HeuristicOnly      bool

	Default Footprint

	MaxConcurrent  int
	RetainFinished int
	Trace          bool
}

// Footprint is the agent shape and step limits a search plans for.
type Footprint struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	MaxUp   int     `json:"max_up"`
	MaxDown int     `json:"max_down"`
}

func ConfigFromTuning(p tuning.Pathfinding) (Config, error) {
	h, err := pathfind.ParseHeuristic(p.Heuristic)
	if err != nil {
		return Config{}, fmt.Errorf("pathfinding.heuristic: %w", err)
	}
	return Config{
		StepsPerInvocation: p.StepsPerInvocation,
		DefaultMaxSteps:    p.DefaultMaxSteps,
		Heuristic:          h,
		HeuristicOnly:      p.HeuristicOnly,
		Default: Footprint{
			Width:   p.AgentWidth,
			Height:  p.AgentHeight,
			MaxUp:   p.MaxUp,
			MaxDown: p.MaxDown,
		},
		MaxConcurrent:  p.MaxConcurrentSearches,
		RetainFinished: p.RetainFinished,
		Trace:          p.Trace,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.StepsPerInvocation <= 0 {
		c.StepsPerInvocation = pathfind.DefaultStepsPerInvocation
	}
	if c.DefaultMaxSteps <= 0 {
		c.DefaultMaxSteps = 2000
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.RetainFinished <= 0 {
		c.RetainFinished = 1024
	}
	return c
}
