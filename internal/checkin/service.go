// Package checkin redeems tickets at the door.
//
// A ticket moves from issued to redeemed exactly once. The ticket row is
// claimed with a conditional update before anything else is written, so two
// doors scanning the same code at the same moment cannot both succeed. If a
// later write fails the ticket stays consumed and the caller gets a store
// error to resolve by hand.
package checkin

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"eventgate/internal/directory"
	"eventgate/internal/ticket"
)

// Method tags how a person was let in.
type Method string

const (
	MethodBarcode Method = "barcode"
	MethodManual  Method = "manual"
	MethodScan    Method = "scan"
)

// DefaultOperator is recorded when the caller is not identified.
const DefaultOperator = "admin"

// ParseMethod validates a method tag. An empty tag means a barcode scan.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodBarcode, nil
	case MethodBarcode, MethodManual, MethodScan:
		return m, nil
	}
	return "", ticket.Invalid("unknown check-in method %q", s)
}

// Options switch the optional parts of the workflow.
type Options struct {
	// SupportsStaff makes Redeem fall through to staff tickets.
	SupportsStaff bool
}

// Outcome is a successful redemption.
type Outcome struct {
	Success     bool             `json:"success"`
	Kind        string           `json:"kind"`
	Person      directory.Person `json:"person"`
	Barcode     string           `json:"barcode"`
	Method      Method           `json:"method"`
	ScannedBy   string           `json:"scanned_by"`
	CheckedInAt time.Time        `json:"check_in_time"`
}

// Service redeems tickets against a directory store.
type Service struct {
	store directory.Store
	kinds []directory.Kind
	now   func() time.Time
}

// NewService creates a redemption service. Student tickets are always
// searched first.
func NewService(store directory.Store, opts Options) *Service {
	kinds := []directory.Kind{directory.StudentKind}
	if opts.SupportsStaff {
		kinds = append(kinds, directory.StaffKind)
	}
	return &Service{store: store, kinds: kinds, now: func() time.Time { return time.Now().UTC() }}
}

// Redeem checks a person in by barcode. It returns ticket.ErrTicketNotFound
// when no kind holds the code and a *ticket.AlreadyUsedError when the ticket
// was redeemed before.
func (s *Service) Redeem(ctx context.Context, barcode string, method Method, operator string) (Outcome, error) {
	barcode = strings.TrimSpace(barcode)
	if err := ticket.Require(ticket.Field{Name: "barcode", Value: barcode}); err != nil {
		return Outcome{}, err
	}
	if method == "" {
		method = MethodBarcode
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		operator = DefaultOperator
	}

	for _, kind := range s.kinds {
		t, err := s.store.FindTicket(ctx, kind, barcode)
		if err != nil {
			return Outcome{}, fmt.Errorf("find %s ticket: %w", kind.Name, err)
		}
		if t == nil {
			continue
		}
		return s.redeem(ctx, kind, t, method, operator)
	}
	return Outcome{}, fmt.Errorf("%w: %s", ticket.ErrTicketNotFound, barcode)
}

func (s *Service) redeem(ctx context.Context, kind directory.Kind, t *directory.Ticket, method Method, operator string) (Outcome, error) {
	if t.Used {
		return Outcome{}, &ticket.AlreadyUsedError{Barcode: t.Barcode, Person: t.Holder}
	}

	claimed, err := s.store.ClaimTicket(ctx, kind, t.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: claim %s ticket: %w", ticket.ErrStoreWrite, kind.Name, err)
	}
	if !claimed {
		return Outcome{}, &ticket.AlreadyUsedError{Barcode: t.Barcode, Person: t.Holder}
	}

	at := s.now()
	if err := s.store.MarkAttended(ctx, kind, t.OwnerID, at); err != nil {
		log.Printf("checkin: ticket %s consumed but %s %s not marked attended: %v", t.Barcode, kind.Name, t.OwnerID, err)
		return Outcome{}, fmt.Errorf("%w: mark attended: %w", ticket.ErrStoreWrite, err)
	}
	if _, err := s.store.AppendAttendance(ctx, kind, directory.Attendance{
		PersonID:  t.OwnerID,
		Method:    string(method),
		ScannedBy: operator,
		CreatedAt: at,
	}); err != nil {
		log.Printf("checkin: ticket %s consumed but attendance not logged: %v", t.Barcode, err)
		return Outcome{}, fmt.Errorf("%w: append attendance: %w", ticket.ErrStoreWrite, err)
	}

	person := t.Holder
	person.Attended = true
	person.CheckInTime = &at
	return Outcome{
		Success:     true,
		Kind:        kind.Name,
		Person:      person,
		Barcode:     t.Barcode,
		Method:      method,
		ScannedBy:   operator,
		CheckedInAt: at,
	}, nil
}
