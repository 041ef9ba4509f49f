package proto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the JSON frame every client message arrives in: one RPC
// method name, a request id the server echoes back in its Response, and a
// method-specific payload.
type Envelope struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers an Envelope by ID. Unsolicited pushes are framed
// separately, with their own fresh id and Method set to the push's name
// (e.g. "update_contacts").
type Response struct {
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequestID mints a transport-level message id: servers stamp one on
// every push, and clients use one per request Envelope. The store itself
// never sees this value; the Receipt the RPC layer hands it carries the
// sender connection and the request_id field of the join request payload.
func NewRequestID() string {
	return uuid.NewString()
}
