package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	TypeRegistered = "registration.created"
	TypeCheckedIn  = "checkin.redeemed"
	TypeRejected   = "checkin.rejected"
	TypePurged     = "console.purged"
)

// Event is the payload of every published message.
type Event struct {
	Kind      string    `json:"kind"`
	PersonID  string    `json:"person_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Class     string    `json:"class,omitempty"`
	Barcode   string    `json:"barcode,omitempty"`
	Method    string    `json:"method,omitempty"`
	ScannedBy string    `json:"scanned_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Encode wraps an event in a message of the given type.
func Encode(typ string, ev Event) (Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return Message{Type: typ, Body: body}, nil
}

// Decode reads the event carried by a message.
func Decode(msg Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal %s event: %w", msg.Type, err)
	}
	return ev, nil
}

// Emit encodes and publishes an event. A nil queue drops it.
func Emit(ctx context.Context, q Queue, typ string, ev Event) error {
	if q == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	msg, err := Encode(typ, ev)
	if err != nil {
		return err
	}
	return q.Publish(ctx, msg)
}
