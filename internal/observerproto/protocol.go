package observerproto

// Version is the observer protocol version (separate from the search WS protocol).
const Version = "0.1"

// Message types.
const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeTrace        = "TRACE"
	TypeSearchDone   = "SEARCH_DONE"
	TypeChunkSurface = "CHUNK_SURFACE"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// SearchID limits the stream to one search; empty follows every search.
	SearchID string `json:"search_id,omitempty"`
	// Traces asks for per-cell TRACE events in addition to SEARCH_DONE.
	Traces bool `json:"traces,omitempty"`

	// Optional: stream the terrain surface around Center first.
	Center      *[3]int `json:"center,omitempty"`
	ChunkRadius int     `json:"chunk_radius,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Revision        uint64      `json:"revision"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
	Searches        SearchStats `json:"searches"`
}

type WorldParams struct {
	ChunkSize [3]int `json:"chunk_size"`
	Height    int    `json:"height"`
	Seed      int64  `json:"seed"`
	BoundaryR int    `json:"boundary_r"`
}

type SearchStats struct {
	Tracked  int `json:"tracked"`
	Running  int `json:"running"`
	Deferred int `json:"deferred"`
}

// Server -> Client. One cell event of a traced search.
type TraceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SearchID        string `json:"search_id"`
	Kind            string `json:"kind"`
	Step            int    `json:"step"`
	Pos             [3]int `json:"pos"`
	Solid           bool   `json:"solid,omitempty"`
	G               int    `json:"g,omitempty"`
	F               int    `json:"f,omitempty"`
}

// Server -> Client. Sent once per finished search.
type SearchDoneMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SearchID        string   `json:"search_id"`
	Start           [3]int   `json:"start"`
	Goal            [3]int   `json:"goal"`
	Status          string   `json:"status"`
	Reason          string   `json:"reason,omitempty"`
	Waypoints       [][3]int `json:"waypoints,omitempty"`
	Cost            int      `json:"cost"`
	Steps           int      `json:"steps"`
	Cells           int      `json:"cells"`
	DurationMS      float64  `json:"duration_ms"`
}

// Server -> Client. Surface of one 16x16 chunk.
// Blocks holds the top solid block id per column and Heights the first air
// y above it, both iterated z-major (x fastest) and RLE encoded.
// Columns with no solid block report block 0 and height 0.
type ChunkSurfaceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	Encoding        string `json:"encoding"`
	Blocks          string `json:"blocks"`
	Heights         string `json:"heights"`
}
