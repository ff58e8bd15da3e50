package pathfind

import "container/heap"

// cellHeap orders open cells by ascending F. Equal F pops in insertion
// order so that replays of the same search are deterministic; callers must
// not rely on any particular tie order.
type cellHeap []*Cell

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(i, j int) bool {
	if h[i].F != h[j].F {
		return h[i].F < h[j].F
	}
	return h[i].seq < h[j].seq
}
func (h cellHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *cellHeap) Push(x any) {
	c := x.(*Cell)
	c.heapIndex = len(*h)
	*h = append(*h, c)
}

func (h *cellHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.heapIndex = -1
	*h = old[:n-1]
	return c
}

// openList is the frontier plus the closed-set bookkeeping carried on each
// cell's Status.
type openList struct {
	h   cellHeap
	seq uint64
}

func (l *openList) push(c *Cell) {
	c.Status = Open
	l.seq++
	c.seq = l.seq
	heap.Push(&l.h, c)
}

// popBest removes the cheapest open cell and closes it. It returns nil once
// the frontier is exhausted.
func (l *openList) popBest() *Cell {
	if len(l.h) == 0 {
		return nil
	}
	c := heap.Pop(&l.h).(*Cell)
	c.Status = Closed
	return c
}

// fix restores heap order after c's F decreased.
func (l *openList) fix(c *Cell) {
	if c.heapIndex < 0 {
		return
	}
	heap.Fix(&l.h, c.heapIndex)
}

func (l *openList) len() int { return len(l.h) }

func (l *openList) release() { l.h = nil }
