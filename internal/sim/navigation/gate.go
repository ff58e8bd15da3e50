package navigation

import (
	"context"
	"log"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// slots bounds concurrently computing searches. A search that finds no free
// slot is deferred rather than refused.
type slots struct {
	sem      *semaphore.Weighted
	size     int64
	running  atomic.Int64
	deferred atomic.Int64
	logger   *log.Logger
}

func newSlots(n int, logger *log.Logger) *slots {
	return &slots{sem: semaphore.NewWeighted(int64(n)), size: int64(n), logger: logger}
}

// gateFor binds a search id for diagnostics.
func (s *slots) gateFor(id string) slotGate { return slotGate{s: s, id: id} }

type slotGate struct {
	s  *slots
	id string
}

func (g slotGate) Acquire(ctx context.Context) error {
	s := g.s
	if s.sem.TryAcquire(1) {
		s.running.Add(1)
		return nil
	}
	n := s.deferred.Add(1)
	if s.logger != nil {
		s.logger.Printf("search %s deferred: %d/%d slots busy, %d waiting", g.id, s.size, s.size, n)
	}
	err := s.sem.Acquire(ctx, 1)
	s.deferred.Add(-1)
	if err != nil {
		return err
	}
	s.running.Add(1)
	return nil
}

func (g slotGate) Release() {
	g.s.running.Add(-1)
	g.s.sem.Release(1)
}
