package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/pathfind"
)

var floor = pathfind.WorldViewFunc(func(p pathfind.Vec3i) (pathfind.BlockInfo, bool) {
	return pathfind.BlockInfo{Solid: p.Y < 0}, true
})

// unreachable floats in mid-air; searches toward it run until cancelled.
var unreachable = [3]int{1 << 20, 50, 0}

func startServer(t *testing.T, maxInFlight int) (*navigation.Manager, string) {
	t.Helper()
	m := navigation.New(navigation.Config{
		StepsPerInvocation: 5,
		DefaultMaxSteps:    1000,
		Default:            navigation.Footprint{Width: 0.6, Height: 1.8, MaxUp: 1, MaxDown: 1},
		MaxConcurrent:      4,
	}, floor, navigation.Deps{})
	srv := NewServer(m, Info{
		World:       protocol.WorldParams{ChunkSize: [3]int{16, 16, 64}, Height: 64, Seed: 7},
		Revision:    func() uint64 { return 9 },
		Agents:      map[string]catalogs.AgentDef{"HUMANOID": {ID: "HUMANOID", Width: 0.6, Height: 1.8, MaxUp: 1, MaxDown: 1}},
		MaxInFlight: maxInFlight,
	}, nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		m.Close()
	})
	return m, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string, push bool) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test",
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8, PushStatus: push},
	})
	var w protocol.WelcomeMsg
	recv(t, conn, protocol.TypeWelcome, &w)
	return conn, w
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// recv reads the next message, checks its type and decodes it into out.
func recv(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if base.Type != typ {
		t.Fatalf("expected %s, got %s", typ, b)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func findPath(requestID string, start, goal [3]int) protocol.FindPathMsg {
	return protocol.FindPathMsg{
		Type:            protocol.TypeFindPath,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Start:           start,
		Goal:            goal,
	}
}

func searchRef(typ, requestID, searchID string) protocol.SearchRefMsg {
	return protocol.SearchRefMsg{
		Type:            typ,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		SearchID:        searchID,
	}
}

func TestWelcomeDescribesServer(t *testing.T) {
	_, url := startServer(t, 2)
	_, w := dial(t, url, false)
	if w.SessionID == "" {
		t.Fatalf("missing session id")
	}
	if w.WorldParams.Revision != 9 || w.WorldParams.Seed != 7 {
		t.Fatalf("world params: %+v", w.WorldParams)
	}
	if w.Pathfinding.StepsPerInvocation != 5 || w.Pathfinding.MaxInFlight != 2 || w.Pathfinding.Heuristic != "EUCLIDEAN" {
		t.Fatalf("pathfinding params: %+v", w.Pathfinding)
	}
	if len(w.Agents) != 1 || w.Agents[0] != "HUMANOID" {
		t.Fatalf("agents: %v", w.Agents)
	}
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	_, url := startServer(t, 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	send(t, conn, map[string]any{"type": protocol.TypeHello, "protocol_version": "0.1", "client_name": "old"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}

func TestFindPathPushesStatus(t *testing.T) {
	_, url := startServer(t, 2)
	conn, _ := dial(t, url, true)

	send(t, conn, findPath("R1", [3]int{0, 0, 0}, [3]int{5, 0, 0}))
	var acc protocol.PathAcceptedMsg
	recv(t, conn, protocol.TypePathAccepted, &acc)
	if acc.RequestID != "R1" || acc.SearchID == "" {
		t.Fatalf("accepted: %+v", acc)
	}

	var st protocol.PathStatusMsg
	recv(t, conn, protocol.TypePathStatus, &st)
	if st.Status != protocol.StatusFound || st.SearchID != acc.SearchID || st.RequestID != "R1" {
		t.Fatalf("status: %+v", st)
	}
	if len(st.Waypoints) != 6 || st.Waypoints[5] != [3]int{5, 0, 0} || st.Cost != 50 {
		t.Fatalf("path: %+v", st)
	}

	// A later poll reports the same outcome.
	send(t, conn, searchRef(protocol.TypePollPath, "R2", acc.SearchID))
	var polled protocol.PathStatusMsg
	recv(t, conn, protocol.TypePathStatus, &polled)
	if polled.RequestID != "R2" || polled.Status != st.Status || len(polled.Waypoints) != len(st.Waypoints) {
		t.Fatalf("poll: %+v", polled)
	}
}

func TestFindPathWithAgentProfile(t *testing.T) {
	m, url := startServer(t, 2)
	conn, _ := dial(t, url, false)

	msg := findPath("R1", [3]int{0, 0, 0}, [3]int{3, 0, 0})
	msg.Agent = "HUMANOID"
	send(t, conn, msg)
	var acc protocol.PathAcceptedMsg
	recv(t, conn, protocol.TypePathAccepted, &acc)
	r, err := m.Request(acc.SearchID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if r.Width != 0.6 || r.Height != 1.8 {
		t.Fatalf("agent profile not applied: %+v", r)
	}

	msg = findPath("R2", [3]int{0, 0, 0}, [3]int{3, 0, 0})
	msg.Agent = "GHOST"
	send(t, conn, msg)
	var e protocol.ErrorMsg
	recv(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.ErrBadRequest || e.RequestID != "R2" {
		t.Fatalf("error: %+v", e)
	}
}

func TestRequestErrors(t *testing.T) {
	_, url := startServer(t, 2)
	conn, _ := dial(t, url, false)

	send(t, conn, searchRef(protocol.TypePollPath, "R1", "nope"))
	var e protocol.ErrorMsg
	recv(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.ErrNotFound {
		t.Fatalf("unknown search: %+v", e)
	}

	bad := findPath("R2", [3]int{0, 0, 0}, [3]int{1, 0, 0})
	bad.Footprint = &protocol.Footprint{Width: 0, Height: 1}
	send(t, conn, bad)
	recv(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.ErrBadRequest {
		t.Fatalf("bad footprint: %+v", e)
	}

	send(t, conn, map[string]any{"type": "DANCE", "protocol_version": protocol.Version})
	recv(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown type: %+v", e)
	}
}

func TestBusyThenCancel(t *testing.T) {
	_, url := startServer(t, 1)
	conn, _ := dial(t, url, false)

	long := findPath("R1", [3]int{0, 0, 0}, unreachable)
	long.MaxSteps = 1 << 30
	send(t, conn, long)
	var acc protocol.PathAcceptedMsg
	recv(t, conn, protocol.TypePathAccepted, &acc)

	send(t, conn, findPath("R2", [3]int{0, 0, 0}, [3]int{2, 0, 0}))
	var e protocol.ErrorMsg
	recv(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.ErrBusy || e.RequestID != "R2" {
		t.Fatalf("expected busy, got %+v", e)
	}

	send(t, conn, searchRef(protocol.TypeCancelPath, "R3", acc.SearchID))
	var st protocol.PathStatusMsg
	recv(t, conn, protocol.TypePathStatus, &st)
	if st.Status != protocol.StatusNotFound || st.Reason != "CANCELLED" {
		t.Fatalf("cancel: %+v", st)
	}
}

func TestDisconnectCancelsSearches(t *testing.T) {
	m, url := startServer(t, 1)
	conn, _ := dial(t, url, false)

	long := findPath("R1", [3]int{0, 0, 0}, unreachable)
	long.MaxSteps = 1 << 30
	send(t, conn, long)
	var acc protocol.PathAcceptedMsg
	recv(t, conn, protocol.TypePathAccepted, &acc)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := m.Wait(ctx, acc.SearchID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Reason != pathfind.ReasonCancelled {
		t.Fatalf("expected cancelled search, got %+v", res)
	}
}
