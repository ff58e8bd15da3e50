// Package pathfind implements a budgeted, resumable A* search over a sparse
// voxel grid.
//
// A Search owns a lazily populated cell cache and an open list. Solidity is
// resolved on demand through a WorldView, so only the coordinates the search
// touches are ever queried. Costs are fixed-point integers scaled by 10: an
// orthogonal move costs 10 and a diagonal move costs 14.
//
// A Search is single-writer. Advance drives it synchronously (e.g. a few
// steps per simulation tick); Go runs it on a background goroutine and
// returns a Handle that can be polled without blocking and cancelled.
package pathfind
