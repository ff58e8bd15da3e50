package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxelnav.ai/internal/sim/navigation"
	"voxelnav.ai/internal/sim/pathfind"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

func adminMux(wa *worldAdmin) *http.ServeMux {
	mux := http.NewServeMux()
	wa.register(mux)
	return mux
}

func post(t *testing.T, mux *http.ServeMux, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	var out map[string]any
	_ = json.Unmarshal(rw.Body.Bytes(), &out)
	return rw.Code, out
}

func TestFillWhileSearchRuns(t *testing.T) {
	s, cats := testStore(t)
	mux := adminMux(&worldAdmin{store: s, blocks: &cats.Blocks})
	nav := navigation.New(navigation.Config{MaxConcurrent: 1, StepsPerInvocation: 1}, store.View{Store: s, Blocks: &cats.Blocks}, navigation.Deps{Revision: s.Revision})
	defer nav.Close()

	// Surface is y=20 with the default tuning; the spawn area has no features.
	id, err := nav.StartSearch(navigation.Request{
		Start:     pathfind.Vec3i{X: -7, Y: 20, Z: 0},
		Goal:      pathfind.Vec3i{X: 7, Y: 20, Z: 0},
		MaxSteps:  100000,
		Footprint: &navigation.Footprint{Width: 0.6, Height: 1.8, MaxUp: 1, MaxDown: 1},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	rev := s.Revision()
	for i := 0; i < 20; i++ {
		block := "STONE"
		if i%2 == 1 {
			block = "AIR"
		}
		code, out := post(t, mux, "/admin/v1/fill", `{"min":[0,20,-3],"max":[0,21,3],"block":"`+block+`"}`)
		if code != http.StatusOK || out["ok"] != true {
			t.Fatalf("fill %d: %d %v", i, code, out)
		}
	}
	if s.Revision() != rev+20*14 {
		t.Fatalf("revision = %d, want %d", s.Revision(), rev+20*14)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := nav.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !res.Done() {
		t.Fatalf("search not terminal: %+v", res)
	}
	// The wall was removed by the last fill, so a fresh search walks straight.
	id2, _ := nav.StartSearch(navigation.Request{
		Start:     pathfind.Vec3i{X: -2, Y: 20},
		Goal:      pathfind.Vec3i{X: 2, Y: 20},
		Footprint: &navigation.Footprint{Width: 0.6, Height: 1.8, MaxUp: 1, MaxDown: 1},
	})
	if res, err := nav.Wait(ctx, id2); err != nil || res.Status != pathfind.PathFound {
		t.Fatalf("second search: %+v %v", res, err)
	}
}

func TestChunkLoadAndUnload(t *testing.T) {
	s, cats := testStore(t)
	mux := adminMux(&worldAdmin{store: s, blocks: &cats.Blocks})
	before := len(s.LoadedChunkKeys())

	code, out := post(t, mux, "/admin/v1/chunks/load", `{"x":100,"z":0,"radius":0}`)
	if code != http.StatusOK || out["generated"] != float64(1) {
		t.Fatalf("load: %d %v", code, out)
	}
	if _, ok := s.Block(100, 5, 0); !ok {
		t.Fatalf("loaded chunk not readable")
	}

	code, out = post(t, mux, "/admin/v1/chunks/unload", `{"cx":6,"cz":0}`)
	if code != http.StatusOK || out["loaded_chunks"] != float64(before) {
		t.Fatalf("unload: %d %v", code, out)
	}
	if _, ok := s.Block(100, 5, 0); ok {
		t.Fatalf("unloaded chunk still readable")
	}
	if code, _ := post(t, mux, "/admin/v1/chunks/unload", `{"cx":6,"cz":0}`); code != http.StatusBadRequest {
		t.Fatalf("second unload: %d", code)
	}
}

func TestWorldAdminRejects(t *testing.T) {
	s, cats := testStore(t)
	mux := adminMux(&worldAdmin{store: s, blocks: &cats.Blocks})

	cases := []struct {
		name, path, body string
	}{
		{"unknown block", "/admin/v1/fill", `{"min":[0,0,0],"max":[0,0,0],"block":"OBSIDIAN"}`},
		{"box too large", "/admin/v1/fill", `{"min":[0,0,0],"max":[1000,63,1000],"block":"STONE"}`},
		{"unknown field", "/admin/v1/fill", `{"from":[0,0,0],"block":"STONE"}`},
		{"negative radius", "/admin/v1/chunks/load", `{"radius":-1}`},
	}
	for _, tc := range cases {
		if code, out := post(t, mux, tc.path, tc.body); code != http.StatusBadRequest || out["ok"] != false {
			t.Fatalf("%s: %d %v", tc.name, code, out)
		}
	}
	if s.Revision() != 0 {
		t.Fatalf("rejected requests edited the world")
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/fill", strings.NewReader(`{}`))
	req.RemoteAddr = "10.0.0.5:40000"
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("remote fill: %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/chunks/load", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET load: %d", rw.Code)
	}
}
