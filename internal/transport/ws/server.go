package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/pathfind"
)

// Info is the static part of every WELCOME plus the per-session limits.
type Info struct {
	World    protocol.WorldParams
	Revision func() uint64
	Catalogs protocol.CatalogDigests
	Agents   map[string]catalogs.AgentDef

	// MaxInFlight bounds the unfinished searches one session may own.
	MaxInFlight int
}

type Server struct {
	nav  *navigation.Manager
	info Info
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(nav *navigation.Manager, info Info, logger *log.Logger) *Server {
	if info.MaxInFlight <= 0 {
		info.MaxInFlight = 4
	}
	s := &Server{
		nav:  nav,
		info: info,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// session is one connected client and the searches it started.
type session struct {
	id   string
	push bool

	ctx context.Context
	out chan []byte
	wg  sync.WaitGroup

	mu sync.Mutex
	// owned maps search id to the request id that started it.
	owned    map[string]string
	inFlight int
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		s.logf("session %s connected", sess.id)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(sess, msg)
		}

		// Cleanup: searches die with the connection that started them.
		n := s.cancelOwned(sess)
		sess.wg.Wait()
		s.logf("session %s closed (%d searches cancelled)", sess.id, n)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	sess := &session{
		id:    uuid.NewString(),
		push:  hello.Capabilities.PushStatus,
		ctx:   ctx,
		out:   make(chan []byte, maxQ),
		owned: map[string]string{},
	}

	if err := writeJSON(conn, s.welcome(sess.id)); err != nil {
		return nil
	}
	return sess
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	wp := s.info.World
	if s.info.Revision != nil {
		wp.Revision = s.info.Revision()
	}
	cfg := s.nav.Config()
	agents := make([]string, 0, len(s.info.Agents))
	for id := range s.info.Agents {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldParams:     wp,
		Pathfinding: protocol.PathParams{
			StepsPerInvocation: cfg.StepsPerInvocation,
			DefaultMaxSteps:    cfg.DefaultMaxSteps,
			Heuristic:          cfg.Heuristic.String(),
			MaxInFlight:        s.info.MaxInFlight,
		},
		Catalogs: s.info.Catalogs,
		Agents:   agents,
	}
}

func (s *Server) dispatch(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(sess, "", protocol.ErrProtoBadRequest, "malformed message")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.sendError(sess, base.RequestID, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	switch base.Type {
	case protocol.TypeFindPath:
		var m protocol.FindPathMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(sess, base.RequestID, protocol.ErrProtoBadRequest, "malformed FIND_PATH")
			return
		}
		s.findPath(sess, m)
	case protocol.TypePollPath, protocol.TypeCancelPath:
		var m protocol.SearchRefMsg
		if err := json.Unmarshal(msg, &m); err != nil || m.SearchID == "" {
			s.sendError(sess, base.RequestID, protocol.ErrProtoBadRequest, "missing search_id")
			return
		}
		s.searchRef(sess, base.Type, m)
	default:
		s.sendError(sess, base.RequestID, protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

func (s *Server) findPath(sess *session, m protocol.FindPathMsg) {
	if m.RequestID == "" {
		s.sendError(sess, "", protocol.ErrProtoBadRequest, "missing request_id")
		return
	}
	req := navigation.Request{
		Start:    pathfind.FromArray(m.Start),
		Goal:     pathfind.FromArray(m.Goal),
		MaxSteps: m.MaxSteps,
	}
	switch {
	case m.Footprint != nil:
		req.Footprint = &navigation.Footprint{
			Width:   m.Footprint.Width,
			Height:  m.Footprint.Height,
			MaxUp:   m.Footprint.MaxUp,
			MaxDown: m.Footprint.MaxDown,
		}
	case m.Agent != "":
		def, ok := s.info.Agents[m.Agent]
		if !ok {
			s.sendError(sess, m.RequestID, protocol.ErrBadRequest, "unknown agent "+m.Agent)
			return
		}
		req.Footprint = &navigation.Footprint{Width: def.Width, Height: def.Height, MaxUp: def.MaxUp, MaxDown: def.MaxDown}
	}
	if m.MaxSteps < 0 {
		s.sendError(sess, m.RequestID, protocol.ErrBadRequest, "max_steps must not be negative")
		return
	}

	// follow releases the slot once the search is terminal.
	sess.mu.Lock()
	if sess.inFlight >= s.info.MaxInFlight {
		sess.mu.Unlock()
		s.sendError(sess, m.RequestID, protocol.ErrBusy, fmt.Sprintf("%d searches already in flight", s.info.MaxInFlight))
		return
	}
	sess.inFlight++
	sess.mu.Unlock()

	id, err := s.nav.StartSearch(req)
	if err != nil {
		sess.mu.Lock()
		sess.inFlight--
		sess.mu.Unlock()
		code := protocol.ErrInternal
		if errors.Is(err, navigation.ErrBadRequest) {
			code = protocol.ErrBadRequest
		}
		s.sendError(sess, m.RequestID, code, err.Error())
		return
	}

	sess.mu.Lock()
	sess.owned[id] = m.RequestID
	sess.mu.Unlock()

	s.send(sess, protocol.PathAcceptedMsg{
		Type:            protocol.TypePathAccepted,
		ProtocolVersion: protocol.Version,
		RequestID:       m.RequestID,
		SearchID:        id,
	})

	sess.wg.Add(1)
	go s.follow(sess, id, m.RequestID)
}

// follow waits for a search to finish, releases its in-flight slot and
// pushes the final status when the client asked for it.
func (s *Server) follow(sess *session, id, requestID string) {
	defer sess.wg.Done()
	res, err := s.nav.Wait(sess.ctx, id)

	sess.mu.Lock()
	sess.inFlight--
	sess.mu.Unlock()

	if err != nil || !sess.push {
		return
	}
	s.send(sess, statusMsg(id, requestID, res))
}

func (s *Server) searchRef(sess *session, typ string, m protocol.SearchRefMsg) {
	sess.mu.Lock()
	_, ok := sess.owned[m.SearchID]
	sess.mu.Unlock()
	if !ok {
		s.sendError(sess, m.RequestID, protocol.ErrNotFound, "unknown search "+m.SearchID)
		return
	}

	var (
		res pathfind.Result
		err error
	)
	if typ == protocol.TypeCancelPath {
		res, err = s.nav.Cancel(m.SearchID)
	} else {
		res, err = s.nav.Poll(m.SearchID)
	}
	if errors.Is(err, navigation.ErrUnknownSearch) {
		// Retired by the manager.
		sess.mu.Lock()
		delete(sess.owned, m.SearchID)
		sess.mu.Unlock()
		s.sendError(sess, m.RequestID, protocol.ErrNotFound, "unknown search "+m.SearchID)
		return
	}
	if err != nil {
		s.sendError(sess, m.RequestID, protocol.ErrInternal, err.Error())
		return
	}
	s.send(sess, statusMsg(m.SearchID, m.RequestID, res))
}

func (s *Server) cancelOwned(sess *session) int {
	sess.mu.Lock()
	ids := make([]string, 0, len(sess.owned))
	for id := range sess.owned {
		ids = append(ids, id)
	}
	sess.mu.Unlock()

	n := 0
	for _, id := range ids {
		res, err := s.nav.Cancel(id)
		if err == nil && res.Reason == pathfind.ReasonCancelled {
			n++
		}
	}
	return n
}

func statusMsg(searchID, requestID string, res pathfind.Result) protocol.PathStatusMsg {
	m := protocol.PathStatusMsg{
		Type:            protocol.TypePathStatus,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		SearchID:        searchID,
		Status:          res.Status.String(),
		Reason:          res.Reason.String(),
		Cost:            res.Cost,
		Steps:           res.Steps,
	}
	if len(res.Waypoints) > 0 {
		m.Waypoints = make([][3]int, len(res.Waypoints))
		for i, p := range res.Waypoints {
			m.Waypoints[i] = p.Array()
		}
	}
	return m
}

func (s *Server) sendError(sess *session, requestID, code, msg string) {
	s.send(sess, protocol.NewError(requestID, code, msg))
}

// send queues v for the writer. It gives up once the session is gone.
func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logf("session %s: marshal: %v", sess.id, err)
		return
	}
	select {
	case sess.out <- b:
	case <-sess.ctx.Done():
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
