package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

// maxFillCells bounds one fill so a typo cannot rewrite the whole world.
const maxFillCells = 1 << 20

// maxLoadRadius bounds one load request, in blocks.
const maxLoadRadius = 1024

// worldAdmin edits the live world. Searches keep running while it does; a
// search sees each block change as soon as it is applied.
type worldAdmin struct {
	store  *store.ChunkStore
	blocks *catalogs.BlockCatalog
	log    *log.Logger
}

func (a *worldAdmin) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/fill", adminPost(a.fill))
	mux.HandleFunc("/admin/v1/chunks/load", adminPost(a.load))
	mux.HandleFunc("/admin/v1/chunks/unload", adminPost(a.unload))
}

type fillRequest struct {
	Min   [3]int `json:"min"`
	Max   [3]int `json:"max"`
	Block string `json:"block"`
}

type loadRequest struct {
	X      int `json:"x"`
	Z      int `json:"z"`
	Radius int `json:"radius"`
}

type unloadRequest struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

func (a *worldAdmin) fill(r *http.Request) (map[string]any, error) {
	var req fillRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	b, ok := a.blocks.Index[strings.ToUpper(strings.TrimSpace(req.Block))]
	if !ok {
		return nil, fmt.Errorf("unknown block %q", req.Block)
	}
	lo, hi := req.Min, req.Max
	for i := 0; i < 3; i++ {
		if lo[i] > hi[i] {
			lo[i], hi[i] = hi[i], lo[i]
		}
	}
	cells := int64(hi[0]-lo[0]+1) * int64(hi[1]-lo[1]+1) * int64(hi[2]-lo[2]+1)
	if cells > maxFillCells {
		return nil, fmt.Errorf("box too large: %d cells (max %d)", cells, maxFillCells)
	}
	applied, skipped := a.store.Fill(lo, hi, b)
	rev := a.store.Revision()
	a.printf("admin fill min=%v max=%v block=%s applied=%d skipped=%d revision=%d", lo, hi, a.blocks.Palette[b], applied, skipped, rev)
	return map[string]any{"applied": applied, "skipped": skipped, "revision": rev}, nil
}

func (a *worldAdmin) load(r *http.Request) (map[string]any, error) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.Radius < 0 || req.Radius > maxLoadRadius {
		return nil, fmt.Errorf("radius %d outside 0..%d", req.Radius, maxLoadRadius)
	}
	n := a.store.EnsureArea(req.X, req.Z, req.Radius)
	loaded := len(a.store.LoadedChunkKeys())
	a.printf("admin load x=%d z=%d radius=%d generated=%d loaded=%d", req.X, req.Z, req.Radius, n, loaded)
	return map[string]any{"generated": n, "loaded_chunks": loaded}, nil
}

func (a *worldAdmin) unload(r *http.Request) (map[string]any, error) {
	var req unloadRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if !a.store.Unload(req.CX, req.CZ) {
		return nil, fmt.Errorf("chunk %d,%d is not loaded", req.CX, req.CZ)
	}
	loaded := len(a.store.LoadedChunkKeys())
	a.printf("admin unload cx=%d cz=%d loaded=%d", req.CX, req.CZ, loaded)
	return map[string]any{"loaded_chunks": loaded}, nil
}

func (a *worldAdmin) printf(format string, args ...any) {
	if a.log != nil {
		a.log.Printf(format, args...)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad request body: %w", err)
	}
	return nil
}

// adminPost wraps a loopback-only JSON POST endpoint. Handler errors are the
// caller's fault and map to 400.
func adminPost(fn func(*http.Request) (map[string]any, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		out, err := fn(r)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if out == nil {
			out = map[string]any{}
		}
		out["ok"] = true
		_ = json.NewEncoder(rw).Encode(out)
	}
}
