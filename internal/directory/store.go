// Package directory is the persistence boundary for classes, people, tickets
// and attendance logs. Both workflows receive a single Store; nothing else in
// the service talks to the database.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrBarcodeTaken is returned by CreateTicket when the barcode violates the
// uniqueness constraint of the ticket table.
var ErrBarcodeTaken = errors.New("barcode already taken")

// ErrClassExists is returned by CreateClass when a class with the same name
// (ignoring case) was created concurrently.
var ErrClassExists = errors.New("class already exists")

// ErrStudentExists is returned by CreateStudent when the (name, class) pair
// is already taken.
var ErrStudentExists = errors.New("student already exists")

// ErrNotFound is returned by writes addressed to a row that does not exist.
var ErrNotFound = errors.New("not found")

// Store is the directory capability set. Lookups return (nil, nil) when no
// row matches. Claim* methods are conditional updates and report whether this
// caller performed the transition.
type Store interface {
	Ping(ctx context.Context) error

	FindClass(ctx context.Context, name string) (*Class, error)
	CreateClass(ctx context.Context, name string) (Class, error)

	FindAuthorizedStudent(ctx context.Context, fullName, className string) (*AuthorizedStudent, error)
	FindAuthorizedStaff(ctx context.Context, q StaffQuery) (*StaffMember, error)
	ClaimStaffRegistration(ctx context.Context, staffID string) (bool, error)
	ReleaseStaffRegistration(ctx context.Context, staffID string) error

	FindStudent(ctx context.Context, fullName, classID string) (*Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	DeleteStudent(ctx context.Context, id string) error

	CreateTicket(ctx context.Context, kind Kind, t Ticket) (Ticket, error)
	FindTicket(ctx context.Context, kind Kind, barcode string) (*Ticket, error)
	ClaimTicket(ctx context.Context, kind Kind, ticketID string) (bool, error)

	MarkAttended(ctx context.Context, kind Kind, personID string, at time.Time) error
	AppendAttendance(ctx context.Context, kind Kind, a Attendance) (Attendance, error)

	// Purge removes a person's attendance and tickets. Students are deleted;
	// staff allow-list rows are kept and reset so they can register again.
	Purge(ctx context.Context, kind Kind, personID string) error
}
