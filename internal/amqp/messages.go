package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventPasswordResetRequested EventType = "password.reset_requested"
	EventTransactionCreated     EventType = "transaction.created"
	EventTransactionUpdated     EventType = "transaction.updated"
	EventTransactionDeleted     EventType = "transaction.deleted"
)

// Event is a small domain event. Transaction events carry only ids; the
// consumer fetches the current record from the database.
type Event struct {
	ID            string     `json:"id"`
	Type          EventType  `json:"type"`
	Timestamp     time.Time  `json:"timestamp"`
	UserID        int64      `json:"user_id"`
	TransactionID int64      `json:"transaction_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	ResetToken    string     `json:"reset_token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func newEvent(t EventType, userID int64) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
	}
}

// NewPasswordResetEvent asks the worker to deliver a reset token to the user.
func NewPasswordResetEvent(userID int64, email, name, token string, expiresAt time.Time) *Event {
	e := newEvent(EventPasswordResetRequested, userID)
	e.Email = email
	e.Name = name
	e.ResetToken = token
	exp := expiresAt.UTC()
	e.ExpiresAt = &exp
	return e
}

// NewTransactionEvent reports a change to a transaction.
func NewTransactionEvent(t EventType, userID, transactionID int64) *Event {
	e := newEvent(t, userID)
	e.TransactionID = transactionID
	return e
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and checks that it carries a known type.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventPasswordResetRequested, EventTransactionCreated, EventTransactionUpdated, EventTransactionDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return &e, nil
}
