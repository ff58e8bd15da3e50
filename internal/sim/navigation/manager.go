package navigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxelnav.ai/internal/sim/pathfind"
)

var (
	ErrUnknownSearch = errors.New("unknown search")
	ErrClosed        = errors.New("navigation manager closed")
	ErrBadRequest    = errors.New("bad search request")
)

// Request is a search request as clients phrase it. Zero MaxSteps and a nil
// Footprint select the configured defaults.
type Request struct {
	Start, Goal pathfind.Vec3i
	MaxSteps    int
	Footprint   *Footprint
}

// Deps are the manager's collaborators. Every field is optional.
type Deps struct {
	Logger    *log.Logger
	Recorders []Recorder
	Tracer    Tracer
	// Revision reports the world revision a search starts against.
	Revision func() uint64
	Now      func() time.Time
}

// Manager owns every in-flight search. Each search computes on its own
// goroutine; callers start, poll and cancel by id and never block on the
// computation itself.
type Manager struct {
	cfg  Config
	view pathfind.WorldView
	deps Deps

	slots *slots

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	searches map[string]*entry
	finished []string
	closed   bool
}

type entry struct {
	id      string
	req     pathfind.Request
	opts    pathfind.Options
	rev     uint64
	started time.Time
	handle  *pathfind.Handle
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Tracked  int `json:"tracked"`
	Running  int `json:"running"`
	Deferred int `json:"deferred"`
	Slots    int `json:"slots"`
}

func New(cfg Config, view pathfind.WorldView, deps Deps) *Manager {
	cfg = cfg.withDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		view:     view,
		deps:     deps,
		slots:    newSlots(cfg.MaxConcurrent, deps.Logger),
		ctx:      ctx,
		cancel:   cancel,
		searches: map[string]*entry{},
	}
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) resolve(r Request) (pathfind.Request, error) {
	fp := m.cfg.Default
	if r.Footprint != nil {
		fp = *r.Footprint
	}
	if !(fp.Width > 0) || !(fp.Height > 0) || math.IsInf(fp.Width, 0) || math.IsInf(fp.Height, 0) {
		return pathfind.Request{}, fmt.Errorf("%w: footprint must be positive, got %gx%g", ErrBadRequest, fp.Width, fp.Height)
	}
	if fp.MaxUp < 0 || fp.MaxDown < 0 {
		return pathfind.Request{}, fmt.Errorf("%w: negative step limit", ErrBadRequest)
	}
	maxSteps := r.MaxSteps
	if maxSteps == 0 {
		maxSteps = m.cfg.DefaultMaxSteps
	}
	return pathfind.Request{
		Start:    r.Start,
		Goal:     r.Goal,
		MaxSteps: maxSteps,
		Width:    fp.Width,
		Height:   fp.Height,
		MaxUp:    fp.MaxUp,
		MaxDown:  fp.MaxDown,
	}, nil
}

// StartSearch validates r and hands the search to a background goroutine.
// Search outcomes, including invalid endpoints, are reported through Poll;
// only malformed requests and a closed manager return errors.
func (m *Manager) StartSearch(r Request) (string, error) {
	preq, err := m.resolve(r)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	opts := pathfind.Options{
		StepsPerInvocation: m.cfg.StepsPerInvocation,
		Heuristic:          m.cfg.Heuristic,
		HeuristicOnly:      m.cfg.HeuristicOnly,
	}
	if m.cfg.Trace && m.deps.Tracer != nil {
		opts.Observer = m.traceObserver(id)
	}
	e := &entry{
		id:      id,
		req:     preq,
		opts:    opts,
		started: m.deps.Now(),
	}
	if m.deps.Revision != nil {
		e.rev = m.deps.Revision()
	}
	// Endpoint checks happen here, before any goroutine exists.
	s := pathfind.NewSearch(m.view, preq, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	e.handle = pathfind.Go(m.ctx, s, m.slots.gateFor(id))
	m.searches[id] = e

	m.wg.Add(1)
	go m.watch(e)
	return id, nil
}

func (m *Manager) traceObserver(id string) pathfind.Observer {
	tr := m.deps.Tracer
	return func(ev pathfind.Event) {
		_ = tr.TraceEvent(TraceEntry{
			SearchID: id,
			Kind:     ev.Kind.String(),
			Step:     ev.Step,
			Pos:      ev.Pos.Array(),
			Solid:    ev.Solid,
			G:        ev.G,
			F:        ev.F,
		})
	}
}

// watch reports the search once it is terminal and retires old results.
func (m *Manager) watch(e *entry) {
	defer m.wg.Done()
	<-e.handle.Done()
	rec := m.record(e, e.handle.Poll())
	for _, r := range m.deps.Recorders {
		if err := r.RecordSearch(rec); err != nil && m.deps.Logger != nil {
			m.deps.Logger.Printf("search %s: record: %v", e.id, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, e.id)
	for len(m.finished) > m.cfg.RetainFinished {
		delete(m.searches, m.finished[0])
		m.finished = m.finished[1:]
	}
}

func (m *Manager) record(e *entry, res pathfind.Result) Record {
	return Record{
		ID:                 e.id,
		WorldRev:           e.rev,
		Start:              e.req.Start.Array(),
		Goal:               e.req.Goal.Array(),
		MaxSteps:           e.req.MaxSteps,
		Width:              e.req.Width,
		Height:             e.req.Height,
		MaxUp:              e.req.MaxUp,
		MaxDown:            e.req.MaxDown,
		Heuristic:          e.opts.Heuristic.String(),
		HeuristicOnly:      e.opts.HeuristicOnly,
		StepsPerInvocation: e.opts.StepsPerInvocation,
		Status:             res.Status.String(),
		Reason:             res.Reason.String(),
		Waypoints:          toArrays(res.Waypoints),
		Cost:               res.Cost,
		Steps:              res.Steps,
		Cells:              res.Cells,
		Unavailable:        res.Unavailable,
		StartedAt:          e.started,
		FinishedAt:         m.deps.Now(),
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.searches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSearch, id)
	}
	return e, nil
}

// Poll never blocks. A search that is still computing reports Calculating.
func (m *Manager) Poll(id string) (pathfind.Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		return pathfind.Result{}, err
	}
	return e.handle.Poll(), nil
}

// Wait blocks until the search is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (pathfind.Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		return pathfind.Result{}, err
	}
	return e.handle.Wait(ctx)
}

// Cancel stops a search and returns once its state has been released.
// Cancelling a finished search returns its result unchanged.
func (m *Manager) Cancel(id string) (pathfind.Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		return pathfind.Result{}, err
	}
	return e.handle.Cancel(), nil
}

// Request returns the resolved request of a tracked search.
func (m *Manager) Request(id string) (pathfind.Request, error) {
	e, err := m.lookup(id)
	if err != nil {
		return pathfind.Request{}, err
	}
	return e.req, nil
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	tracked := len(m.searches)
	m.mu.Unlock()
	return Stats{
		Tracked:  tracked,
		Running:  int(m.slots.running.Load()),
		Deferred: int(m.slots.deferred.Load()),
		Slots:    int(m.slots.size),
	}
}

// Close cancels every search, waits for all of them to drain and for their
// records to be written. Further StartSearch calls fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
