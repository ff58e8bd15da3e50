package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/encoding"
	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

// flatWorld has no surface features: grass at y=3, air from y=4.
func flatWorld(t *testing.T) (*store.ChunkStore, *catalogs.Catalogs) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tu := tuning.Defaults()
	tu.ChunkSize = []int{16, 16, 16}
	tu.WorldGen.FloorY = 4
	tu.WorldGen.WallPermille = 0
	tu.WorldGen.FencePermille = 0
	tu.WorldGen.PondPermille = 0
	tu.WorldBoundaryR = 64
	return store.NewChunkStore(store.NewWorldGen(tu, &cats.Blocks)), cats
}

func TestHubFiltersAndDrops(t *testing.T) {
	h := NewHub()
	a := make(chan []byte, 1)
	b := make(chan []byte, 8)
	h.join("a", observerproto.SubscribeMsg{SearchID: "s1"}, a)
	h.join("b", observerproto.SubscribeMsg{Traces: true}, b)
	if h.Sessions() != 2 {
		t.Fatalf("sessions = %d", h.Sessions())
	}

	_ = h.RecordSearch(navigation.Record{ID: "s1", Status: "FOUND"})
	_ = h.RecordSearch(navigation.Record{ID: "s2", Status: "NOT_FOUND"})
	_ = h.TraceEvent(navigation.TraceEntry{SearchID: "s1", Kind: "OPENED"})
	// a's queue is full by now.
	_ = h.RecordSearch(navigation.Record{ID: "s1", Status: "FOUND"})

	if len(a) != 1 || len(b) != 4 {
		t.Fatalf("queued a=%d b=%d", len(a), len(b))
	}
	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d", h.Dropped())
	}
	var done observerproto.SearchDoneMsg
	if err := json.Unmarshal(<-a, &done); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if done.Type != observerproto.TypeSearchDone || done.SearchID != "s1" || done.Status != "FOUND" {
		t.Fatalf("done: %+v", done)
	}

	h.leave("a")
	h.update("b", observerproto.SubscribeMsg{SearchID: "s9"})
	_ = h.RecordSearch(navigation.Record{ID: "s1"})
	if len(b) != 4 {
		t.Fatalf("filter update ignored: %d", len(b))
	}
}

func TestChunkSurface(t *testing.T) {
	s, cats := flatWorld(t)
	s.EnsureArea(0, 0, 0)

	if _, ok := ChunkSurface(s, &cats.Blocks, store.ChunkKey{CX: 3, CZ: 3}); ok {
		t.Fatalf("unloaded chunk reported a surface")
	}

	s.SetBlock(2, 4, 0, cats.Blocks.MustIndex("STONE"))
	msg, ok := ChunkSurface(s, &cats.Blocks, store.ChunkKey{})
	if !ok {
		t.Fatalf("loaded chunk has no surface")
	}
	ids, err := encoding.DecodeRLE(msg.Blocks, 256)
	if err != nil {
		t.Fatalf("decode blocks: %v", err)
	}
	heights, err := encoding.DecodeRLE(msg.Heights, 256)
	if err != nil {
		t.Fatalf("decode heights: %v", err)
	}
	if len(ids) != 256 || len(heights) != 256 {
		t.Fatalf("columns: %d %d", len(ids), len(heights))
	}
	grass, stone := cats.Blocks.MustIndex("GRASS"), cats.Blocks.MustIndex("STONE")
	if ids[0] != grass || heights[0] != 4 {
		t.Fatalf("column 0: block=%d height=%d", ids[0], heights[0])
	}
	if ids[2] != stone || heights[2] != 5 {
		t.Fatalf("column 2: block=%d height=%d", ids[2], heights[2])
	}
}

func startObserver(t *testing.T) (*Hub, string) {
	t.Helper()
	s, cats := flatWorld(t)
	s.EnsureArea(0, 0, 0)
	hub := NewHub()
	srv := NewServer(hub, World{
		ID:     "test",
		Store:  s,
		Blocks: &cats.Blocks,
		Stats:  func() navigation.Stats { return navigation.Stats{Running: 2} },
	}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/ws", srv.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return hub, hs.URL
}

func TestBootstrap(t *testing.T) {
	_, url := startObserver(t)
	resp, err := http.Get(url + "/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.WorldID != "test" || b.WorldParams.ChunkSize != [3]int{16, 16, 16} || b.Searches.Running != 2 {
		t.Fatalf("bootstrap: %+v", b)
	}
	if len(b.BlockPalette) == 0 || b.BlockPalette[0] != "AIR" {
		t.Fatalf("palette: %v", b.BlockPalette)
	}
}

func TestSubscribeStreamsSurfaceThenSearches(t *testing.T) {
	hub, url := startObserver(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	center := [3]int{3, 0, 3}
	if err := conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Center:          &center,
		ChunkRadius:     1,
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Only chunk (0,0) is loaded.
	var surf observerproto.ChunkSurfaceMsg
	readJSON(t, conn, &surf)
	if surf.Type != observerproto.TypeChunkSurface || surf.CX != 0 || surf.CZ != 0 {
		t.Fatalf("surface: %+v", surf)
	}

	_ = hub.RecordSearch(navigation.Record{ID: "s1", Status: "FOUND", Waypoints: [][3]int{{0, 4, 0}, {1, 4, 0}}, Cost: 10})
	var done observerproto.SearchDoneMsg
	readJSON(t, conn, &done)
	if done.Type != observerproto.TypeSearchDone || done.SearchID != "s1" || len(done.Waypoints) != 2 {
		t.Fatalf("done: %+v", done)
	}
}

func TestSubscribeHandshakeRejectsOtherMessages(t *testing.T) {
	_, url := startObserver(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]any{"type": "HELLO", "protocol_version": observerproto.Version})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(out); err != nil {
		t.Fatalf("read: %v", err)
	}
}
