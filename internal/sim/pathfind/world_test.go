package pathfind

// boxWorld is a bounded test world. Anything outside the box is reported as
// unavailable.
type boxWorld struct {
	min, max Vec3i
	blocks   map[Vec3i]BlockInfo
	queries  map[Vec3i]int
}

func newBoxWorld(min, max Vec3i) *boxWorld {
	return &boxWorld{
		min:     min,
		max:     max,
		blocks:  map[Vec3i]BlockInfo{},
		queries: map[Vec3i]int{},
	}
}

func (w *boxWorld) QueryBlock(p Vec3i) (BlockInfo, bool) {
	w.queries[p]++
	if p.X < w.min.X || p.Y < w.min.Y || p.Z < w.min.Z || p.X > w.max.X || p.Y > w.max.Y || p.Z > w.max.Z {
		return BlockInfo{}, false
	}
	return w.blocks[p], true
}

func (w *boxWorld) set(p Vec3i, info BlockInfo) { w.blocks[p] = info }

func (w *boxWorld) clear(p Vec3i) { delete(w.blocks, p) }

// floor lays solid blocks at y across the whole box.
func (w *boxWorld) floor(y int) *boxWorld {
	for x := w.min.X; x <= w.max.X; x++ {
		for z := w.min.Z; z <= w.max.Z; z++ {
			w.set(Vec3i{X: x, Y: y, Z: z}, BlockInfo{Solid: true})
		}
	}
	return w
}

// column fills x=const across every z in the box for y in [y0, y1].
func (w *boxWorld) column(x, y0, y1 int, info BlockInfo) {
	for z := w.min.Z; z <= w.max.Z; z++ {
		for y := y0; y <= y1; y++ {
			w.set(Vec3i{X: x, Y: y, Z: z}, info)
		}
	}
}

func (w *boxWorld) solidAt(p Vec3i) bool {
	info, ok := w.QueryBlock(p)
	return !ok || info.Solid
}

func flatWorld() *boxWorld {
	return newBoxWorld(Vec3i{X: -8, Y: -1, Z: -8}, Vec3i{X: 16, Y: 4, Z: 8}).floor(-1)
}

func runToEnd(s *Search) Result {
	for s.Advance(64) == Calculating {
	}
	return s.Result()
}

func req(start, goal Vec3i) Request {
	return Request{Start: start, Goal: goal, MaxSteps: 10000, Width: 0.6, Height: 1.8, MaxUp: 1, MaxDown: 1}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
