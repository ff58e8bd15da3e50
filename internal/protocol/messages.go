package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// MaxQueue bounds outbound messages buffered for this client.
	MaxQueue int `json:"max_queue,omitempty"`
	// PushStatus asks the server to send PATH_STATUS unprompted when a
	// search finishes.
	PushStatus bool `json:"push_status,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Pathfinding     PathParams     `json:"pathfinding"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Agents          []string       `json:"agents,omitempty"`
}

type WorldParams struct {
	ChunkSize [3]int `json:"chunk_size"`
	Height    int    `json:"height"`
	BoundaryR int    `json:"boundary_r"`
	Seed      int64  `json:"seed"`
	Revision  uint64 `json:"revision"`
}

type PathParams struct {
	StepsPerInvocation int    `json:"steps_per_invocation"`
	DefaultMaxSteps    int    `json:"default_max_steps"`
	Heuristic          string `json:"heuristic"`
	MaxInFlight        int    `json:"max_in_flight"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	AgentsDigest string    `json:"agents_digest"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// FIND_PATH (client -> server). Agent names a profile from the agent
// catalog; Footprint overrides it. With neither, server defaults apply.
type FindPathMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id"`
	Start           [3]int     `json:"start"`
	Goal            [3]int     `json:"goal"`
	MaxSteps        int        `json:"max_steps,omitempty"`
	Agent           string     `json:"agent,omitempty"`
	Footprint       *Footprint `json:"footprint,omitempty"`
}

type Footprint struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	MaxUp   int     `json:"max_up"`
	MaxDown int     `json:"max_down"`
}

// PATH_ACCEPTED (server -> client)
type PathAcceptedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	SearchID        string `json:"search_id"`
}

// POLL_PATH and CANCEL_PATH (client -> server)
type SearchRefMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	SearchID        string `json:"search_id"`
}

// PATH_STATUS (server -> client)
type PathStatusMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id,omitempty"`
	SearchID        string   `json:"search_id"`
	Status          string   `json:"status"`
	Reason          string   `json:"reason,omitempty"`
	Waypoints       [][3]int `json:"waypoints,omitempty"`
	Cost            int      `json:"cost,omitempty"`
	Steps           int      `json:"steps"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, msg string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         msg,
	}
}
