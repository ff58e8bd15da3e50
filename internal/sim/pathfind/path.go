package pathfind

// reconstruct walks parent links from the goal-adjacent cell back to the
// start and returns waypoints from start to goal. The goal itself is
// appended after the reached cell.
func (s *Search) reconstruct(last *Cell) []Vec3i {
	rev := backtrack(s.cache, last)
	out := make([]Vec3i, 0, len(rev)+1)
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	if len(out) == 0 || out[len(out)-1] != s.req.Goal {
		out = append(out, s.req.Goal)
	}
	return out
}

// backtrack collects locations in goal-to-start order. The walk ends at the
// only parentless cell, the seeded start.
func backtrack(cache *gridCache, last *Cell) []Vec3i {
	var rev []Vec3i
	for c := last; c != nil; {
		rev = append(rev, c.Pos)
		if !c.HasParent {
			break
		}
		next, ok := cache.lookup(c.Parent)
		if !ok {
			break
		}
		c = next
	}
	return rev
}
