package directory

import "time"

// Kind describes where one family of tickets lives. Student and staff tickets
// follow the same redemption rules against different tables.
type Kind struct {
	Name            string
	TicketTable     string
	PersonTable     string
	PersonColumn    string
	AttendanceTable string
}

var (
	StudentKind = Kind{
		Name:            "student",
		TicketTable:     "tickets",
		PersonTable:     "students",
		PersonColumn:    "student_id",
		AttendanceTable: "attendance",
	}
	StaffKind = Kind{
		Name:            "staff",
		TicketTable:     "staff_tickets",
		PersonTable:     "authorized_staff",
		PersonColumn:    "staff_id",
		AttendanceTable: "staff_attendance",
	}
)

// Kinds lists every ticket family. Barcodes are unique across all of them.
var Kinds = []Kind{StudentKind, StaffKind}

// KindByName resolves "student" or "staff".
func KindByName(name string) (Kind, bool) {
	switch name {
	case StudentKind.Name:
		return StudentKind, true
	case StaffKind.Name:
		return StaffKind, true
	}
	return Kind{}, false
}

// Class is a school class such as "12A".
type Class struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Grade *string `json:"grade,omitempty"`
}

// Student is a registered learner.
type Student struct {
	ID          string     `json:"id"`
	Code        string     `json:"student_id"`
	Name        string     `json:"name"`
	ClassID     string     `json:"class_id"`
	Registered  bool       `json:"registered"`
	Attended    bool       `json:"attended"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuthorizedStudent is an allow-list entry for students.
type AuthorizedStudent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
}

// StaffMember is an allow-list entry for staff. The row doubles as the staff
// person record once registered.
type StaffMember struct {
	ID                string     `json:"id"`
	Initials          string     `json:"initials"`
	InitialsSanitized string     `json:"initials_sanitized"`
	Surname           string     `json:"surname"`
	ClassName         string     `json:"class_name,omitempty"`
	Designation       string     `json:"designation,omitempty"`
	Registered        bool       `json:"registered"`
	Attended          bool       `json:"attended"`
	CheckInTime       *time.Time `json:"check_in_time,omitempty"`
}

// DisplayName is how staff names are printed on tickets, e.g. "F SMITH".
func (m StaffMember) DisplayName() string {
	return m.Initials + " " + m.Surname
}

// Role is the class a staff member looks after, or their designation.
func (m StaffMember) Role() string {
	if m.ClassName != "" {
		return m.ClassName
	}
	if m.Designation != "" {
		return m.Designation
	}
	return "STAFF"
}

// StaffQuery selects an allow-list entry. When ClassName is empty the entry
// must have no class and match Designation instead.
type StaffQuery struct {
	InitialsSanitized string
	Surname           string
	ClassName         string
	Designation       string
}

// Snapshot is the display data frozen onto a ticket when it is issued.
type Snapshot struct {
	StudentName    string `json:"student_name,omitempty"`
	StudentCode    string `json:"student_id,omitempty"`
	StaffName      string `json:"staff_name,omitempty"`
	Class          string `json:"class,omitempty"`
	Designation    string `json:"designation,omitempty"`
	EventName      string `json:"event_name,omitempty"`
	EventDate      string `json:"event_date,omitempty"`
	EventDateLabel string `json:"event_date_label,omitempty"`
	EventTime      string `json:"event_time,omitempty"`
	Venue          string `json:"venue,omitempty"`
	DressCode      string `json:"dress_code,omitempty"`
	Entertainment  string `json:"entertainment,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
}

// Ticket is a single-use barcode bound to one person.
type Ticket struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Barcode   string    `json:"barcode"`
	Used      bool      `json:"is_used"`
	Data      Snapshot  `json:"ticket_data"`
	CreatedAt time.Time `json:"created_at"`

	// Holder is filled in by lookups; it is not stored on the ticket row.
	Holder Person `json:"-"`
}

// Attendance is one append-only check-in log entry.
type Attendance struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Method    string    `json:"check_in_method"`
	ScannedBy string    `json:"scanned_by,omitempty"`
	CreatedAt time.Time `json:"check_in_time"`
}

// Person is the caller-facing view of whoever owns a ticket.
type Person struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Code        string     `json:"student_id,omitempty"`
	Name        string     `json:"name"`
	Class       string     `json:"class,omitempty"`
	Designation string     `json:"designation,omitempty"`
	Attended    bool       `json:"attended"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}

// StudentPerson builds the public view of a student.
func StudentPerson(s Student, className string) Person {
	return Person{
		ID:          s.ID,
		Kind:        StudentKind.Name,
		Code:        s.Code,
		Name:        s.Name,
		Class:       className,
		Attended:    s.Attended,
		CheckInTime: s.CheckInTime,
	}
}

// StaffPerson builds the public view of a staff member.
func StaffPerson(m StaffMember) Person {
	return Person{
		ID:          m.ID,
		Kind:        StaffKind.Name,
		Code:        "STAFF-" + m.ID,
		Name:        m.DisplayName(),
		Class:       m.Role(),
		Designation: m.Designation,
		Attended:    m.Attended,
		CheckInTime: m.CheckInTime,
	}
}
