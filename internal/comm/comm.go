package comm

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventCheckedIn  = "visitor.checked_in"
	EventCheckedOut = "visitor.checked_out"
	EventReconciled = "gate.reconciled"
)

// Message is the envelope carried on NATS and pushed to websocket clients.
type Message struct {
	Type       string          `json:"type"` // e.g. "visitor.checked_in"
	Data       json.RawMessage `json:"data"`
	SocketId   string          `json:"socketid,omitempty"`
	EventId    string          `json:"event_id"`
	InstanceId string          `json:"instance_id,omitempty"`
	At         time.Time       `json:"at"`
}

func NewMessage(eventType string, data interface{}, instanceId string) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:       eventType,
		Data:       raw,
		EventId:    uuid.New().String(),
		InstanceId: instanceId,
		At:         time.Now(),
	}, nil
}

type CheckedInEvent struct {
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name"`
	CardIDs     []string  `json:"card_ids"`
	EntryGate   string    `json:"entry_gate"`
	At          time.Time `json:"at"`
}

type CheckedOutEvent struct {
	CardIDs        []string  `json:"card_ids"`
	ExitGate       string    `json:"exit_gate"`
	ClosedSessions []string  `json:"closed_sessions"`
	At             time.Time `json:"at"`
}
