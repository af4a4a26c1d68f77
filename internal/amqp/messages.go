package amqp

import (
	"encoding/json"
	"time"

	"cashflow/internal/store"
)

// ChangeMessage announces a committed transaction change to every process
// sharing the exchange. Receivers refresh the owner's live subscriptions.
type ChangeMessage struct {
	Origin        string          `json:"origin"`
	OwnerID       string          `json:"owner_id"`
	TransactionID string          `json:"transaction_id"`
	Op            store.Operation `json:"op"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewChangeMessage creates a message for change published by origin.
func NewChangeMessage(origin string, change store.Change) *ChangeMessage {
	return &ChangeMessage{
		Origin:        origin,
		OwnerID:       change.OwnerID,
		TransactionID: change.TransactionID,
		Op:            change.Op,
		Timestamp:     time.Now(),
	}
}

// Change converts the message back to a store.Change.
func (m *ChangeMessage) Change() store.Change {
	return store.Change{
		OwnerID:       m.OwnerID,
		TransactionID: m.TransactionID,
		Op:            m.Op,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
