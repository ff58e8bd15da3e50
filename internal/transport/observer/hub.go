package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/navigation"
)

// Hub fans finished searches and trace events out to observer sessions.
// It is a navigation.Recorder and a navigation.Tracer; delivery never blocks
// the search, so a slow session loses messages instead.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber

	dropped atomic.Uint64
}

type subscriber struct {
	out      chan []byte
	searchID string
	traces   bool
}

var (
	_ navigation.Recorder = (*Hub)(nil)
	_ navigation.Tracer   = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

func (h *Hub) RecordSearch(r navigation.Record) error {
	return h.publish(r.ID, false, observerproto.SearchDoneMsg{
		Type:            observerproto.TypeSearchDone,
		ProtocolVersion: observerproto.Version,
		SearchID:        r.ID,
		Start:           r.Start,
		Goal:            r.Goal,
		Status:          r.Status,
		Reason:          r.Reason,
		Waypoints:       r.Waypoints,
		Cost:            r.Cost,
		Steps:           r.Steps,
		Cells:           r.Cells,
		DurationMS:      float64(r.Duration().Microseconds()) / 1000,
	})
}

func (h *Hub) TraceEvent(e navigation.TraceEntry) error {
	return h.publish(e.SearchID, true, observerproto.TraceMsg{
		Type:            observerproto.TypeTrace,
		ProtocolVersion: observerproto.Version,
		SearchID:        e.SearchID,
		Kind:            e.Kind,
		Step:            e.Step,
		Pos:             e.Pos,
		Solid:           e.Solid,
		G:               e.G,
		F:               e.F,
	})
}

// publish encodes v at most once, and only when some session wants it.
func (h *Hub) publish(searchID string, trace bool, v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b []byte
	for _, s := range h.subs {
		if s.searchID != "" && s.searchID != searchID {
			continue
		}
		if trace && !s.traces {
			continue
		}
		if b == nil {
			var err error
			if b, err = json.Marshal(v); err != nil {
				return err
			}
		}
		select {
		case s.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) join(id string, sub observerproto.SubscribeMsg, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = &subscriber{out: out, searchID: sub.SearchID, traces: sub.Traces}
}

func (h *Hub) update(id string, sub observerproto.SubscribeMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		s.searchID = sub.SearchID
		s.traces = sub.Traces
	}
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Sessions is the number of connected observers.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts messages discarded because a session's queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
