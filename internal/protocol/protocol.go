package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypeFindPath     = "FIND_PATH"
	TypePathAccepted = "PATH_ACCEPTED"
	TypePollPath     = "POLL_PATH"
	TypeCancelPath   = "CANCEL_PATH"
	TypePathStatus   = "PATH_STATUS"
	TypeError        = "ERROR"
)

// Path status values carried by PATH_STATUS.
const (
	StatusWorking  = "WORKING"
	StatusFound    = "FOUND"
	StatusNotFound = "NOT_FOUND"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
