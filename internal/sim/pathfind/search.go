package pathfind

type Status uint8

const (
	Calculating Status = iota
	PathFound
	PathNotFound
)

func (s Status) String() string {
	switch s {
	case PathFound:
		return "FOUND"
	case PathNotFound:
		return "NOT_FOUND"
	default:
		return "WORKING"
	}
}

// Reason qualifies a terminal status. Every NotFound reason looks the same
// to a caller (no path, no partial result); reasons exist for diagnostics.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonInvalidEndpoint
	ReasonExhausted
	ReasonBudgetExceeded
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidEndpoint:
		return "INVALID_ENDPOINT"
	case ReasonExhausted:
		return "EXHAUSTED"
	case ReasonBudgetExceeded:
		return "BUDGET_EXCEEDED"
	case ReasonCancelled:
		return "CANCELLED"
	default:
		return ""
	}
}

// Request describes one search.
type Request struct {
	Start, Goal Vec3i

	// MaxSteps is the step budget. The search may expand at most
	// MaxSteps × Options.StepsPerInvocation cells.
	MaxSteps int

	// Agent footprint. Accepted for callers; neighbour generation does not
	// vary with it yet.
	Width, Height float64

	// Vertical step limits, clamped to [0, 1].
	MaxUp, MaxDown int
}

type Options struct {
	StepsPerInvocation int
	Heuristic          Heuristic
	// HeuristicOnly orders the frontier by H alone (greedy best-first).
	// Much faster, no optimality guarantee.
	HeuristicOnly bool
	Observer      Observer
}

// DefaultStepsPerInvocation matches the budget multiplier used when Options
// leaves it unset.
const DefaultStepsPerInvocation = 5

// Result is a snapshot of a search's outcome.
type Result struct {
	Status Status
	Reason Reason

	// Waypoints run from the start to the goal, both inclusive. The
	// second-to-last waypoint is the goal-adjacent cell the search reached.
	Waypoints []Vec3i
	// Cost is the fixed-point path cost including the final step onto the goal.
	Cost int

	Steps       int
	Cells       int
	Unavailable int
}

func (r Result) Done() bool { return r.Status != Calculating }

var (
	lateral = [4]Vec3i{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

	diagonals = [4]Vec3i{{X: -1, Z: -1}, {X: -1, Z: 1}, {X: 1, Z: -1}, {X: 1, Z: 1}}

	// goalOffsets are the positions, relative to the goal, from which the
	// goal counts as reached.
	goalOffsets = [5]Vec3i{{Z: 1}, {X: 1}, {X: -1}, {Z: -1}, {Y: -1}}
)

// Search is one A* computation. It is not safe for concurrent use; a Handle
// serializes access when the search runs in the background.
type Search struct {
	req  Request
	opts Options

	oracle *oracle
	cache  *gridCache
	open   openList

	status Status
	reason Reason
	limit  int
	steps  int

	vertical []int

	waypoints   []Vec3i
	cost        int
	cells       int
	unavailable int
}

// NewSearch seeds a search. If the start or goal is solid the search is
// returned already terminal with ReasonInvalidEndpoint and does no further work.
func NewSearch(view WorldView, req Request, opts Options) *Search {
	if opts.StepsPerInvocation <= 0 {
		opts.StepsPerInvocation = DefaultStepsPerInvocation
	}
	s := &Search{
		req:      req,
		opts:     opts,
		oracle:   &oracle{view: view},
		status:   Calculating,
		limit:    req.MaxSteps * opts.StepsPerInvocation,
		vertical: verticalOffsets(req.MaxUp, req.MaxDown),
	}
	s.cache = newGridCache(s.oracle, s.observer())

	if s.cache.solid(req.Start) || s.cache.solid(req.Goal) {
		s.finish(PathNotFound, ReasonInvalidEndpoint)
		return s
	}
	s.relax(s.cache.cell(req.Start), nil, 0)
	return s
}

func verticalOffsets(maxUp, maxDown int) []int {
	up := clamp01(maxUp)
	down := clamp01(maxDown)
	out := make([]int, 0, 3)
	for dy := -down; dy <= up; dy++ {
		out = append(out, dy)
	}
	return out
}

func clamp01(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *Search) observer() func(Event) {
	if s.opts.Observer == nil {
		return nil
	}
	return func(e Event) {
		e.Step = s.steps
		s.opts.Observer(e)
	}
}

func (s *Search) emit(kind EventKind, c *Cell) {
	if s.opts.Observer == nil {
		return
	}
	s.opts.Observer(Event{Kind: kind, Step: s.steps, Pos: c.Pos, Solid: c.Solid, G: c.G, F: c.F})
}

func (s *Search) Request() Request { return s.req }
func (s *Search) Status() Status   { return s.status }
func (s *Search) Reason() Reason   { return s.reason }

// Result returns a copy of the current outcome. While the search is still
// calculating only Steps and Cells are meaningful.
func (s *Search) Result() Result {
	r := Result{
		Status:      s.status,
		Reason:      s.reason,
		Cost:        s.cost,
		Steps:       s.steps,
		Cells:       s.cells,
		Unavailable: s.unavailable,
	}
	if s.cache != nil {
		r.Cells = s.cache.len()
		r.Unavailable = s.oracle.unavailable
	}
	if len(s.waypoints) > 0 {
		r.Waypoints = append([]Vec3i(nil), s.waypoints...)
	}
	return r
}

// Advance runs at most n steps and reports the status afterwards. Reaching
// the step budget without a result finalizes the search as not found; a new
// search is needed to retry with a larger budget.
func (s *Search) Advance(n int) Status {
	for i := 0; i < n && s.status == Calculating; i++ {
		if s.steps >= s.limit {
			s.finish(PathNotFound, ReasonBudgetExceeded)
			break
		}
		s.steps++
		s.stepOnce()
	}
	if s.status == Calculating && s.steps >= s.limit {
		s.finish(PathNotFound, ReasonBudgetExceeded)
	}
	return s.status
}

// Abort finalizes a running search as not found. It is a no-op once the
// search is terminal.
func (s *Search) Abort(reason Reason) {
	if s.status != Calculating {
		return
	}
	s.finish(PathNotFound, reason)
}

func (s *Search) stepOnce() {
	cur := s.open.popBest()
	if cur == nil {
		s.finish(PathNotFound, ReasonExhausted)
		return
	}
	s.emit(EventClosed, cur)

	if s.reachesGoal(cur.Pos) {
		s.waypoints = s.reconstruct(cur)
		s.cost = cur.G + OrthogonalCost
		s.finish(PathFound, ReasonNone)
		return
	}

	for _, dy := range s.vertical {
		for _, d := range lateral {
			s.consider(cur.Pos.Add(Vec3i{X: d.X, Y: dy, Z: d.Z}), cur, OrthogonalCost)
		}
	}

	for _, d := range diagonals {
		cx := cur.Pos.Add(Vec3i{X: d.X})
		cz := cur.Pos.Add(Vec3i{Z: d.Z})
		// No cutting through a solid corner.
		if s.cache.solid(cx) || s.cache.solid(cz) {
			continue
		}
		// No rounding a ledge: both corners need a floor.
		if !s.cache.solid(cx.Down()) || !s.cache.solid(cz.Down()) {
			continue
		}
		s.consider(cur.Pos.Add(d), cur, DiagonalCost)
	}
}

func (s *Search) reachesGoal(p Vec3i) bool {
	for _, off := range goalOffsets {
		if p == s.req.Goal.Add(off) {
			return true
		}
	}
	return false
}

// walkable reports whether an agent can stand at p: open space with a floor
// below and headroom above.
func (s *Search) walkable(p Vec3i) bool {
	return !s.cache.solid(p) && s.cache.solid(p.Down()) && !s.cache.solid(p.Up())
}

func (s *Search) consider(p Vec3i, parent *Cell, delta int) {
	if !s.walkable(p) {
		return
	}
	s.relax(s.cache.cell(p), parent, delta)
}

func (s *Search) relax(c *Cell, parent *Cell, delta int) {
	switch c.Status {
	case Closed:
		return

	case Unvisited:
		c.G = 0
		c.HasParent = parent != nil
		if parent != nil {
			c.Parent = parent.Pos
			c.G = parent.G + delta
		}
		c.H = s.opts.Heuristic.estimate(c.Pos, s.req.Goal)
		c.F = s.priority(c)
		s.open.push(c)
		s.emit(EventOpened, c)

	case Open:
		newG := parent.G + delta
		if newG >= c.G {
			return
		}
		c.G = newG
		c.Parent = parent.Pos
		c.HasParent = true
		c.F = s.priority(c)
		s.open.fix(c)
		s.emit(EventRelaxed, c)
	}
}

func (s *Search) priority(c *Cell) int {
	if s.opts.HeuristicOnly {
		return c.H
	}
	return c.G + c.H
}

// finish records the terminal state and drops the cache and open list.
func (s *Search) finish(status Status, reason Reason) {
	s.status = status
	s.reason = reason
	if s.cache != nil {
		s.cells = s.cache.len()
		s.unavailable = s.oracle.unavailable
		s.cache.release()
		s.cache = nil
	}
	s.open.release()
}
