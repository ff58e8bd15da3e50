package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/catalogs"
	"voxelnav.ai/internal/sim/encoding"
	"voxelnav.ai/internal/sim/navigation"
	genpkg "voxelnav.ai/internal/sim/world/terrain/gen"
	"voxelnav.ai/internal/sim/world/terrain/store"
)

// World is what the observer reads besides the hub.
type World struct {
	ID     string
	Store  *store.ChunkStore
	Blocks *catalogs.BlockCatalog
	Stats  func() navigation.Stats
}

type Server struct {
	hub   *Hub
	world World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(hub *Hub, w World, logger *log.Logger) *Server {
	return &Server{
		hub:   hub,
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		gen := s.world.Store.Gen
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.world.ID,
			Revision:        s.world.Store.Revision(),
			WorldParams: observerproto.WorldParams{
				ChunkSize: [3]int{store.ChunkSide, store.ChunkSide, gen.Height},
				Height:    gen.Height,
				Seed:      gen.Seed,
				BoundaryR: gen.BoundaryR,
			},
			BlockPalette: s.world.Blocks.Palette,
		}
		if s.world.Stats != nil {
			st := s.world.Stats()
			resp.Searches = observerproto.SearchStats{Tracked: st.Tracked, Running: st.Running, Deferred: st.Deferred}
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 4096)
		s.hub.join(sid, sub, out)
		defer s.hub.leave(sid)
		if s.log != nil {
			s.log.Printf("observer %s joined search=%q traces=%v", sid, sub.SearchID, sub.Traces)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		s.sendSurface(ctx, out, sub)

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok {
				continue
			}
			s.hub.update(sid, sub)
			s.sendSurface(ctx, out, sub)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// sendSurface queues the loaded chunks around the subscription's center.
// It never generates terrain.
func (s *Server) sendSurface(ctx context.Context, out chan<- []byte, sub observerproto.SubscribeMsg) {
	if sub.Center == nil {
		return
	}
	loaded := map[store.ChunkKey]bool{}
	for _, k := range s.world.Store.LoadedChunkKeys() {
		loaded[k] = true
	}
	ccx := genpkg.FloorDiv(sub.Center[0], store.ChunkSide)
	ccz := genpkg.FloorDiv(sub.Center[2], store.ChunkSide)
	for dz := -sub.ChunkRadius; dz <= sub.ChunkRadius; dz++ {
		for dx := -sub.ChunkRadius; dx <= sub.ChunkRadius; dx++ {
			k := store.ChunkKey{CX: ccx + dx, CZ: ccz + dz}
			if !loaded[k] {
				continue
			}
			msg, ok := ChunkSurface(s.world.Store, s.world.Blocks, k)
			if !ok {
				continue
			}
			b, err := json.Marshal(msg)
			if err != nil {
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ChunkSurface summarizes one loaded chunk as its top solid blocks and
// surface heights. It reports false if the chunk is unloaded meanwhile.
func ChunkSurface(s *store.ChunkStore, blocks *catalogs.BlockCatalog, k store.ChunkKey) (observerproto.ChunkSurfaceMsg, bool) {
	solid := func(b uint16) bool { return blocks.Info(b).Solid }
	ids := make([]uint16, 0, store.ChunkSide*store.ChunkSide)
	heights := make([]uint16, 0, store.ChunkSide*store.ChunkSide)
	x0, z0 := k.CX*store.ChunkSide, k.CZ*store.ChunkSide
	for lz := 0; lz < store.ChunkSide; lz++ {
		for lx := 0; lx < store.ChunkSide; lx++ {
			x, z := x0+lx, z0+lz
			y := s.SurfaceY(x, z, solid)
			if y < 0 {
				return observerproto.ChunkSurfaceMsg{}, false
			}
			var top uint16
			if y > 0 {
				top, _ = s.Block(x, y-1, z)
			}
			ids = append(ids, top)
			heights = append(heights, uint16(y))
		}
	}
	return observerproto.ChunkSurfaceMsg{
		Type:            observerproto.TypeChunkSurface,
		ProtocolVersion: observerproto.Version,
		CX:              k.CX,
		CZ:              k.CZ,
		Encoding:        "RLE",
		Blocks:          encoding.EncodeRLE(ids),
		Heights:         encoding.EncodeRLE(heights),
	}, true
}

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	sub.SearchID = strings.TrimSpace(sub.SearchID)
	if sub.ChunkRadius < 0 {
		sub.ChunkRadius = 0
	}
	if sub.ChunkRadius > 8 {
		sub.ChunkRadius = 8
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
