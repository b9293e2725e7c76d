package statusws

import (
	"time"

	"github.com/tiroq/voxbox/internal/media"
	"github.com/tiroq/voxbox/internal/statemachine"
)

// Message types on the wire.
const (
	TypeState  = "state"
	TypeIntent = "intent"
	TypeError  = "error"
)

// StateEvent is pushed to every client on connect and after every
// transition attempt.
type StateEvent struct {
	Type         string              `json:"type"`
	State        statemachine.State  `json:"state"`
	Handle       media.Kind          `json:"handle"`
	From         statemachine.State  `json:"from,omitempty"`
	Intent       statemachine.Intent `json:"intent,omitempty"`
	Error        string              `json:"error,omitempty"`
	ResetEnabled bool                `json:"reset_enabled"`
	Terminated   bool                `json:"terminated,omitempty"`
	SessionID    string              `json:"session_id,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// IntentMessage is sent by a client to press a button.
type IntentMessage struct {
	Type   string              `json:"type"`
	Intent statemachine.Intent `json:"intent"`
}

// ErrorMessage tells a client its intent was not queued.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
