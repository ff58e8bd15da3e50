package pathfind

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Gate limits how many searches compute at once. Acquire may block until a
// slot frees up; it returns an error only when ctx ends first.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Handle is a search running on its own goroutine. The goroutine owns the
// search state; callers only observe the published result.
type Handle struct {
	search *Search

	cancel context.CancelFunc
	done   chan struct{}

	steps atomic.Int64

	mu     sync.Mutex
	result Result
}

// Go starts s in the background. A search that is already terminal (for
// example an invalid endpoint) gets a completed handle and no goroutine.
// gate may be nil.
func Go(ctx context.Context, s *Search, gate Gate) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		search: s,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if s.Status() != Calculating {
		h.publish(s.Result())
		cancel()
		return h
	}
	go h.run(ctx, gate)
	return h
}

func (h *Handle) run(ctx context.Context, gate Gate) {
	s := h.search
	defer func() {
		h.publish(s.Result())
		h.cancel()
	}()

	if gate != nil {
		if err := gate.Acquire(ctx); err != nil {
			s.Abort(ReasonCancelled)
			return
		}
		defer gate.Release()
	}

	batch := s.opts.StepsPerInvocation
	for s.Status() == Calculating {
		select {
		case <-ctx.Done():
			s.Abort(ReasonCancelled)
			return
		default:
		}
		s.Advance(1)
		n := h.steps.Add(1)
		if n%int64(batch) == 0 {
			runtime.Gosched()
		}
	}
}

func (h *Handle) publish(r Result) {
	h.mu.Lock()
	h.result = r
	h.mu.Unlock()
	close(h.done)
}

// Request returns the parameters the search was started with.
func (h *Handle) Request() Request { return h.search.req }

// Done is closed once the search is terminal.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Poll never blocks. While the search runs it returns a Calculating result
// carrying the steps taken so far. Once terminal it returns the same result
// on every call.
func (h *Handle) Poll() Result {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		r := h.result
		if len(r.Waypoints) > 0 {
			r.Waypoints = append([]Vec3i(nil), r.Waypoints...)
		}
		return r
	default:
		return Result{Status: Calculating, Steps: int(h.steps.Load())}
	}
}

// Wait blocks until the search is terminal or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.Poll(), nil
	case <-ctx.Done():
		return Result{Status: Calculating, Steps: int(h.steps.Load())}, ctx.Err()
	}
}

// Cancel stops the search at its next step boundary and waits for the
// goroutine to finish, so the search state is released before it returns.
// Cancelling a finished search is a no-op.
func (h *Handle) Cancel() Result {
	h.cancel()
	<-h.done
	return h.Poll()
}
