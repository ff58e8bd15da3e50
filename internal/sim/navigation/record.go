package navigation

import (
	"time"

	"voxelnav.ai/internal/sim/pathfind"
)

// Record is the durable summary of one finished search. It carries the full
// request so a search can be replayed against a snapshot.
type Record struct {
	ID       string `json:"id"`
	WorldRev uint64 `json:"world_rev"`

	Start    [3]int  `json:"start"`
	Goal     [3]int  `json:"goal"`
	MaxSteps int     `json:"max_steps"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	MaxUp    int     `json:"max_up"`
	MaxDown  int     `json:"max_down"`

	Heuristic          string `json:"heuristic"`
	HeuristicOnly      bool   `json:"heuristic_only,omitempty"`
	StepsPerInvocation int    `json:"steps_per_invocation"`

	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	Waypoints   [][3]int `json:"waypoints,omitempty"`
	Cost        int      `json:"cost,omitempty"`
	Steps       int      `json:"steps"`
	Cells       int      `json:"cells"`
	Unavailable int      `json:"unavailable,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time between accepting and finishing the search.
func (r Record) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// PathfindRequest rebuilds the search request the record was made from.
func (r Record) PathfindRequest() pathfind.Request {
	return pathfind.Request{
		Start:    pathfind.FromArray(r.Start),
		Goal:     pathfind.FromArray(r.Goal),
		MaxSteps: r.MaxSteps,
		Width:    r.Width,
		Height:   r.Height,
		MaxUp:    r.MaxUp,
		MaxDown:  r.MaxDown,
	}
}

// PathfindOptions rebuilds the search options, minus any observer.
func (r Record) PathfindOptions() (pathfind.Options, error) {
	h, err := pathfind.ParseHeuristic(r.Heuristic)
	if err != nil {
		return pathfind.Options{}, err
	}
	return pathfind.Options{
		StepsPerInvocation: r.StepsPerInvocation,
		Heuristic:          h,
		HeuristicOnly:      r.HeuristicOnly,
	}, nil
}

// TraceEntry is one search event tagged with its search id.
type TraceEntry struct {
	SearchID string `json:"search_id"`
	Kind     string `json:"kind"`
	Step     int    `json:"step"`
	Pos      [3]int `json:"pos"`
	Solid    bool   `json:"solid,omitempty"`
	G        int    `json:"g,omitempty"`
	F        int    `json:"f,omitempty"`
}

// Recorder receives every finished search. Implementations must not block
// for long; they run on the search's completion path.
type Recorder interface {
	RecordSearch(Record) error
}

// Tracer receives per-cell events when tracing is enabled.
type Tracer interface {
	TraceEvent(TraceEntry) error
}

// MultiTracer fans one trace out to several tracers and returns the first error.
type MultiTracer []Tracer

func (m MultiTracer) TraceEvent(e TraceEntry) error {
	var first error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.TraceEvent(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func toArrays(ps []pathfind.Vec3i) [][3]int {
	if len(ps) == 0 {
		return nil
	}
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = p.Array()
	}
	return out
}
