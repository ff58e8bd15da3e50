package pathfind

type CellStatus uint8

const (
	Unvisited CellStatus = iota
	Open
	Closed
)

func (s CellStatus) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return "UNVISITED"
	}
}

// Cell is the search state of one voxel coordinate. Cells live in the grid
// cache for the lifetime of a single search.
type Cell struct {
	Pos   Vec3i
	Solid bool

	G, H, F int
	Status  CellStatus

	// Parent is a key into the cache, valid only when HasParent is set.
	// Only the seeded start cell has no parent.
	Parent    Vec3i
	HasParent bool

	forced    bool
	heapIndex int
	seq       uint64
}

// gridCache maps coordinates to cells. Each distinct coordinate is resolved
// through the oracle exactly once per search.
type gridCache struct {
	cells  map[Vec3i]*Cell
	oracle *oracle
	notify func(Event)
}

func newGridCache(o *oracle, notify func(Event)) *gridCache {
	return &gridCache{
		cells:  make(map[Vec3i]*Cell, 256),
		oracle: o,
		notify: notify,
	}
}

func (c *gridCache) lookup(p Vec3i) (*Cell, bool) {
	cell, ok := c.cells[p]
	return cell, ok
}

// cell returns the cell for p, creating and resolving it on first use.
// The cell is inserted before the oracle runs so that side effects which
// reach back into the cache (including for p itself) find it.
func (c *gridCache) cell(p Vec3i) *Cell {
	if cell, ok := c.cells[p]; ok {
		return cell
	}
	cell := &Cell{Pos: p, Status: Unvisited, heapIndex: -1}
	c.cells[p] = cell
	solid := c.oracle.isSolid(p, c)
	cell.Solid = cell.forced || solid
	if c.notify != nil {
		c.notify(Event{Kind: EventCached, Pos: p, Solid: cell.Solid})
	}
	return cell
}

// force marks p solid regardless of its own block.
func (c *gridCache) force(p Vec3i) {
	cell := c.cell(p)
	cell.forced = true
	cell.Solid = true
}

// solid reads the settled solidity of p. A coordinate can be forced solid by
// the block below it (fences) or above it (still liquid), so both neighbours
// are resolved before p is read.
func (c *gridCache) solid(p Vec3i) bool {
	c.cell(p.Down())
	c.cell(p.Up())
	return c.cell(p).Solid
}

func (c *gridCache) len() int { return len(c.cells) }

func (c *gridCache) release() { c.cells = nil }
