package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Counts is a per-table row count, used by tests and the dev console.
type Counts struct {
	Classes         int
	Students        int
	Tickets         int
	StaffTickets    int
	Attendance      int
	StaffAttendance int
}

// Memory is a mutex-guarded in-process Store for development and tests.
type Memory struct {
	mu sync.Mutex

	classes            map[string]Class
	students           map[string]Student
	authorizedStudents []AuthorizedStudent
	staff              map[string]StaffMember
	tickets            map[string]map[string]Ticket // kind -> id -> ticket
	barcodes           map[string]map[string]string // kind -> barcode -> ticket id
	attendance         map[string][]Attendance      // kind -> log
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		classes:  make(map[string]Class),
		students: make(map[string]Student),
		staff:    make(map[string]StaffMember),
		tickets: map[string]map[string]Ticket{
			StudentKind.Name: {},
			StaffKind.Name:   {},
		},
		barcodes: map[string]map[string]string{
			StudentKind.Name: {},
			StaffKind.Name:   {},
		},
		attendance: make(map[string][]Attendance),
	}
}

// AddAuthorizedStudent seeds the student allow-list.
func (m *Memory) AddAuthorizedStudent(name, className string) AuthorizedStudent {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := AuthorizedStudent{ID: uuid.NewString(), Name: name, ClassName: className}
	m.authorizedStudents = append(m.authorizedStudents, a)
	return a
}

// AddAuthorizedStaff seeds the staff allow-list.
func (m *Memory) AddAuthorizedStaff(s StaffMember) StaffMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.staff[s.ID] = s
	return s
}

// Counts reports the number of rows per table.
func (m *Memory) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counts{
		Classes:         len(m.classes),
		Students:        len(m.students),
		Tickets:         len(m.tickets[StudentKind.Name]),
		StaffTickets:    len(m.tickets[StaffKind.Name]),
		Attendance:      len(m.attendance[StudentKind.Name]),
		StaffAttendance: len(m.attendance[StaffKind.Name]),
	}
}

// Student returns a copy of a student row.
func (m *Memory) Student(id string) (Student, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	return s, ok
}

// Staff returns a copy of a staff allow-list row.
func (m *Memory) Staff(id string) (StaffMember, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	return s, ok
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) FindClass(ctx context.Context, name string) (*Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classes {
		if strings.EqualFold(c.Name, name) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateClass(ctx context.Context, name string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classes {
		if strings.EqualFold(c.Name, name) {
			return Class{}, ErrClassExists
		}
	}
	c := Class{ID: uuid.NewString(), Name: name}
	m.classes[c.ID] = c
	return c, nil
}

func (m *Memory) FindAuthorizedStudent(ctx context.Context, fullName, className string) (*AuthorizedStudent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.authorizedStudents {
		if strings.EqualFold(a.Name, fullName) && strings.EqualFold(a.ClassName, className) {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindAuthorizedStaff(ctx context.Context, q StaffQuery) (*StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staff {
		if !strings.EqualFold(s.Surname, q.Surname) || !strings.EqualFold(s.InitialsSanitized, q.InitialsSanitized) {
			continue
		}
		if q.ClassName != "" {
			if !strings.EqualFold(s.ClassName, q.ClassName) {
				continue
			}
		} else if s.ClassName != "" || !strings.EqualFold(s.Designation, q.Designation) {
			continue
		}
		s := s
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) ClaimStaffRegistration(ctx context.Context, staffID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[staffID]
	if !ok {
		return false, ErrNotFound
	}
	if s.Registered {
		return false, nil
	}
	s.Registered = true
	m.staff[staffID] = s
	return true, nil
}

func (m *Memory) ReleaseStaffRegistration(ctx context.Context, staffID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[staffID]
	if !ok {
		return ErrNotFound
	}
	s.Registered = false
	m.staff[staffID] = s
	return nil
}

func (m *Memory) FindStudent(ctx context.Context, fullName, classID string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Name == fullName && s.ClassID == classID {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateStudent(ctx context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[s.ClassID]; !ok {
		return Student{}, ErrNotFound
	}
	for _, existing := range m.students {
		if existing.Name == s.Name && existing.ClassID == s.ClassID {
			return Student{}, ErrStudentExists
		}
	}
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	m.students[s.ID] = s
	return s, nil
}

func (m *Memory) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

func (m *Memory) CreateTicket(ctx context.Context, kind Kind, t Ticket) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range Kinds {
		if _, taken := m.barcodes[k.Name][t.Barcode]; taken {
			return Ticket{}, ErrBarcodeTaken
		}
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	t.Holder = Person{}
	m.tickets[kind.Name][t.ID] = t
	m.barcodes[kind.Name][t.Barcode] = t.ID
	return t, nil
}

func (m *Memory) FindTicket(ctx context.Context, kind Kind, barcode string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.barcodes[kind.Name][barcode]
	if !ok {
		return nil, nil
	}
	t := m.tickets[kind.Name][id]
	t.Holder = m.holderLocked(kind, t.OwnerID)
	return &t, nil
}

func (m *Memory) holderLocked(kind Kind, personID string) Person {
	if kind.Name == StaffKind.Name {
		return StaffPerson(m.staff[personID])
	}
	s := m.students[personID]
	return StudentPerson(s, m.classes[s.ClassID].Name)
}

func (m *Memory) ClaimTicket(ctx context.Context, kind Kind, ticketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[kind.Name][ticketID]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	m.tickets[kind.Name][ticketID] = t
	return true, nil
}

func (m *Memory) MarkAttended(ctx context.Context, kind Kind, personID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind.Name == StaffKind.Name {
		s, ok := m.staff[personID]
		if !ok {
			return ErrNotFound
		}
		s.Attended, s.CheckInTime = true, &at
		m.staff[personID] = s
		return nil
	}
	s, ok := m.students[personID]
	if !ok {
		return ErrNotFound
	}
	s.Attended, s.CheckInTime = true, &at
	m.students[personID] = s
	return nil
}

func (m *Memory) AppendAttendance(ctx context.Context, kind Kind, a Attendance) (Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.attendance[kind.Name] = append(m.attendance[kind.Name], a)
	return a, nil
}

func (m *Memory) Purge(ctx context.Context, kind Kind, personID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.attendance[kind.Name][:0]
	for _, a := range m.attendance[kind.Name] {
		if a.PersonID != personID {
			kept = append(kept, a)
		}
	}
	m.attendance[kind.Name] = kept

	for id, t := range m.tickets[kind.Name] {
		if t.OwnerID == personID {
			delete(m.barcodes[kind.Name], t.Barcode)
			delete(m.tickets[kind.Name], id)
		}
	}

	if kind.Name == StaffKind.Name {
		if s, ok := m.staff[personID]; ok {
			s.Registered, s.Attended, s.CheckInTime = false, false, nil
			m.staff[personID] = s
		}
		return nil
	}
	delete(m.students, personID)
	return nil
}
