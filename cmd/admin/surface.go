package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/encoding"
)

const surfaceColumns = 16 * 16

// surfaceCmd subscribes to a running server's observer stream and prints a
// height map for every loaded chunk around a point.
func surfaceCmd(args []string) {
	fs := flag.NewFlagSet("surface", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	x := fs.Int("x", 0, "center x")
	z := fs.Int("z", 0, "center z")
	radius := fs.Int("radius", 0, "chunk radius (max 8)")
	wait := fs.Duration("timeout", 3*time.Second, "stop reading after this long without a chunk")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/observer/ws"
	u = "ws" + strings.TrimPrefix(u, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	center := [3]int{*x, 0, *z}
	if err := conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Center:          &center,
		ChunkRadius:     *radius,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "subscribe:", err)
		os.Exit(1)
	}

	// Unloaded chunks are never sent, so the stream has no end marker.
	side := 2*(*radius) + 1
	want := side * side
	for got := 0; got < want; {
		_ = conn.SetReadDeadline(time.Now().Add(*wait))
		var msg observerproto.ChunkSurfaceMsg
		if err := conn.ReadJSON(&msg); err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		if msg.Type != observerproto.TypeChunkSurface {
			continue
		}
		heights, _, err := decodeSurface(msg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decode:", err)
			os.Exit(1)
		}
		fmt.Print(renderSurface(msg.CX, msg.CZ, heights))
		got++
	}
}

// decodeSurface unpacks the per-column heights and top blocks of one chunk:
// 16 rows by z, each holding 16 columns by x.
func decodeSurface(m observerproto.ChunkSurfaceMsg) (heights, blocks []uint16, err error) {
	if m.Encoding != "RLE" {
		return nil, nil, fmt.Errorf("unsupported encoding %q", m.Encoding)
	}
	if heights, err = encoding.DecodeRLE(m.Heights, surfaceColumns); err != nil {
		return nil, nil, fmt.Errorf("heights: %w", err)
	}
	if blocks, err = encoding.DecodeRLE(m.Blocks, surfaceColumns); err != nil {
		return nil, nil, fmt.Errorf("blocks: %w", err)
	}
	if len(heights) != surfaceColumns || len(blocks) != surfaceColumns {
		return nil, nil, fmt.Errorf("expected %d columns, got %d heights and %d blocks", surfaceColumns, len(heights), len(blocks))
	}
	return heights, blocks, nil
}

func renderSurface(cx, cz int, heights []uint16) string {
	lo, hi := heights[0], heights[0]
	for _, h := range heights {
		lo, hi = min(lo, h), max(hi, h)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "chunk %d,%d min=%d max=%d\n", cx, cz, lo, hi)
	for row := 0; row < 16; row++ {
		for col := 0; col < 16; col++ {
			fmt.Fprintf(&b, "%3d", heights[row*16+col])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
