package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/view"
)

// Server to client message types.
const (
	TypeSnapshot     = "list.snapshot"
	TypeAlert        = "order.alert"
	TypeActionResult = "action.result"
	TypeActionError  = "action.error"
)

// Client to server message types.
const (
	TypeFilter     = "filter"
	TypeTransition = "transition"
	TypeSeen       = "seen"
)

// Outbound is the envelope of every server message.
type Outbound struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Inbound is a client message. Fields are used depending on Type.
type Inbound struct {
	Type         string       `json:"type"`
	RequestID    string       `json:"request_id,omitempty"`
	Filter       *view.Filter `json:"filter,omitempty"`
	ID           uuid.UUID    `json:"id,omitempty"`
	Status       string       `json:"status,omitempty"`
	CancelReason string       `json:"cancel_reason,omitempty"`
}

type alertData struct {
	ID uuid.UUID `json:"id"`
}

func encode(msg Outbound) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		b, _ = json.Marshal(Outbound{Type: TypeActionError, RequestID: msg.RequestID, Error: "internal server error"})
	}
	return b
}
