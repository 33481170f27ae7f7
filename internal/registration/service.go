// Package registration issues tickets to students and authorized staff.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"eventgate/internal/config"
	"eventgate/internal/directory"
	"eventgate/internal/ticket"
)

// Options switch the optional parts of the workflow.
type Options struct {
	// RequireAuthorization checks students against authorized_students.
	RequireAuthorization bool
	// SupportsStaff enables RegisterStaff.
	SupportsStaff bool
}

// ErrStaffDisabled is returned by RegisterStaff when staff support is off.
var ErrStaffDisabled = errors.New("staff registration disabled")

// Request is a student registration.
type Request struct {
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	ClassName string `json:"className"`
}

// StaffRequest is a staff registration. Exactly one of ClassName and
// Designation is used; ClassName wins when both are set.
type StaffRequest struct {
	Initials    string `json:"initials"`
	Surname     string `json:"surname"`
	ClassName   string `json:"className"`
	Designation string `json:"designation"`
}

// Result is what a successful registration hands back.
type Result struct {
	Person directory.Person `json:"person"`
	Ticket directory.Ticket `json:"ticket"`
}

// Service coordinates class resolution, deduplication and ticket issuance.
type Service struct {
	store directory.Store
	codes *ticket.Generator
	event config.Event
	opts  Options
}

// NewService creates a service backed by a directory store.
func NewService(store directory.Store, codes *ticket.Generator, event config.Event, opts Options) *Service {
	return &Service{store: store, codes: codes, event: event, opts: opts}
}

// Options reports the flags the service was built with.
func (s *Service) Options() Options { return s.opts }

// Register creates a student and their ticket. On any error no student or
// ticket row is left behind; a newly created class may remain.
func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	if err := ticket.Require(
		ticket.Field{Name: "name", Value: req.Name},
		ticket.Field{Name: "surname", Value: req.Surname},
		ticket.Field{Name: "className", Value: req.ClassName},
	); err != nil {
		return Result{}, err
	}
	fullName := ticket.FullName(req.Name, req.Surname)
	className := strings.TrimSpace(req.ClassName)

	if s.opts.RequireAuthorization {
		entry, err := s.store.FindAuthorizedStudent(ctx, fullName, className)
		if err != nil {
			return Result{}, fmt.Errorf("authorization lookup: %w", err)
		}
		if entry == nil {
			return Result{}, fmt.Errorf("%w: %s is not on the list for %s", ticket.ErrNotAuthorized, fullName, className)
		}
	}

	class, err := s.resolveClass(ctx, className)
	if err != nil {
		return Result{}, err
	}

	existing, err := s.store.FindStudent(ctx, fullName, class.ID)
	if err != nil {
		return Result{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	if existing != nil {
		return Result{}, fmt.Errorf("%w: %s in %s", ticket.ErrDuplicateRegistration, fullName, class.Name)
	}

	student, err := s.store.CreateStudent(ctx, directory.Student{
		Code:       s.codes.PersonCode(),
		Name:       fullName,
		ClassID:    class.ID,
		Registered: true,
	})
	if errors.Is(err, directory.ErrStudentExists) {
		return Result{}, fmt.Errorf("%w: %s in %s", ticket.ErrDuplicateRegistration, fullName, class.Name)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: create student: %w", ticket.ErrStoreWrite, err)
	}

	snap := s.eventSnapshot()
	snap.StudentName = fullName
	snap.StudentCode = student.Code
	snap.Class = class.Name

	t, err := s.issue(ctx, directory.StudentKind, student.ID, snap)
	if err != nil {
		if derr := s.store.DeleteStudent(ctx, student.ID); derr != nil {
			log.Printf("registration: could not remove student %s after ticket failure: %v", student.ID, derr)
		}
		return Result{}, err
	}

	return Result{Person: directory.StudentPerson(student, class.Name), Ticket: t}, nil
}

// RegisterStaff issues a ticket to a staff member found on the allow-list.
func (s *Service) RegisterStaff(ctx context.Context, req StaffRequest) (Result, error) {
	if !s.opts.SupportsStaff {
		return Result{}, ErrStaffDisabled
	}
	if err := ticket.Require(
		ticket.Field{Name: "initials", Value: req.Initials},
		ticket.Field{Name: "surname", Value: req.Surname},
	); err != nil {
		return Result{}, err
	}
	q := directory.StaffQuery{
		InitialsSanitized: ticket.SanitizeInitials(req.Initials),
		Surname:           strings.ToUpper(strings.TrimSpace(req.Surname)),
		ClassName:         strings.ToUpper(strings.TrimSpace(req.ClassName)),
		Designation:       strings.ToUpper(strings.TrimSpace(req.Designation)),
	}
	if q.ClassName == "" && q.Designation == "" {
		return Result{}, &ticket.MissingFieldError{Field: "className or designation"}
	}

	member, err := s.store.FindAuthorizedStaff(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("authorization lookup: %w", err)
	}
	if member == nil {
		return Result{}, fmt.Errorf("%w: %s %s", ticket.ErrNotAuthorized, q.InitialsSanitized, q.Surname)
	}

	claimed, err := s.store.ClaimStaffRegistration(ctx, member.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: claim staff registration: %w", ticket.ErrStoreWrite, err)
	}
	if !claimed {
		return Result{}, fmt.Errorf("%w: %s", ticket.ErrDuplicateRegistration, member.DisplayName())
	}
	member.Registered = true

	snap := s.eventSnapshot()
	snap.StaffName = member.DisplayName()
	snap.Class = member.ClassName
	snap.Designation = member.Designation

	t, err := s.issue(ctx, directory.StaffKind, member.ID, snap)
	if err != nil {
		if rerr := s.store.ReleaseStaffRegistration(ctx, member.ID); rerr != nil {
			log.Printf("registration: could not release staff %s after ticket failure: %v", member.ID, rerr)
		}
		return Result{}, err
	}

	return Result{Person: directory.StaffPerson(*member), Ticket: t}, nil
}

// resolveClass finds a class ignoring case or creates it. A concurrent
// creation of the same name is resolved by looking it up again.
func (s *Service) resolveClass(ctx context.Context, name string) (directory.Class, error) {
	class, err := s.store.FindClass(ctx, name)
	if err != nil {
		return directory.Class{}, fmt.Errorf("class lookup: %w", err)
	}
	if class != nil {
		return *class, nil
	}

	created, err := s.store.CreateClass(ctx, name)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, directory.ErrClassExists) {
		if class, ferr := s.store.FindClass(ctx, name); ferr == nil && class != nil {
			return *class, nil
		}
	}
	return directory.Class{}, fmt.Errorf("%w %q: %v", ticket.ErrInvalidClass, name, err)
}

// issue writes a ticket, regenerating the barcode once on a collision.
func (s *Service) issue(ctx context.Context, kind directory.Kind, ownerID string, snap directory.Snapshot) (directory.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		t, err := s.store.CreateTicket(ctx, kind, directory.Ticket{
			OwnerID: ownerID,
			Barcode: s.codes.Next(),
			Data:    snap,
		})
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, directory.ErrBarcodeTaken) {
			return directory.Ticket{}, fmt.Errorf("%w: create %s ticket: %w", ticket.ErrStoreWrite, kind.Name, err)
		}
		log.Printf("registration: barcode collision on %s ticket, regenerating", kind.Name)
		lastErr = fmt.Errorf("%w: %w", ticket.ErrConflict, err)
	}
	return directory.Ticket{}, fmt.Errorf("%w: create %s ticket: %w", ticket.ErrStoreWrite, kind.Name, lastErr)
}

func (s *Service) eventSnapshot() directory.Snapshot {
	return directory.Snapshot{
		EventName:      s.event.Name,
		EventDate:      s.event.Date,
		EventDateLabel: s.event.DateLabel(),
		EventTime:      s.event.Time,
		Venue:          s.event.Venue,
		DressCode:      s.event.DressCode,
		Entertainment:  s.event.Entertainment,
		LogoURL:        s.event.LogoURL,
	}
}
