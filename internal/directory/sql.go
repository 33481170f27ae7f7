package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists the directory in Postgres or SQLite. Queries only use
// syntax both engines accept; placeholders are numbered in order of first use
// so SQLite binds them positionally.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) FindClass(ctx context.Context, name string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, grade FROM classes
		WHERE LOWER(name) = LOWER($1)
		LIMIT 1
	`, name)
	var (
		c     Class
		grade sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &grade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if grade.Valid {
		c.Grade = &grade.String
	}
	return &c, nil
}

func (r *Repository) CreateClass(ctx context.Context, name string) (Class, error) {
	c := Class{ID: uuid.NewString(), Name: name}
	_, err := r.db.ExecContext(ctx, `INSERT INTO classes (id, name) VALUES ($1, $2)`, c.ID, c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return Class{}, ErrClassExists
		}
		return Class{}, err
	}
	return c, nil
}

func (r *Repository) FindAuthorizedStudent(ctx context.Context, fullName, className string) (*AuthorizedStudent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, class_name FROM authorized_students
		WHERE LOWER(name) = LOWER($1) AND LOWER(class_name) = LOWER($2)
		LIMIT 1
	`, fullName, className)
	var a AuthorizedStudent
	if err := row.Scan(&a.ID, &a.Name, &a.ClassName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

const staffColumns = `id, initials, initials_sanitized, surname, class_name, designation, registered, attended, check_in_time`

func (r *Repository) FindAuthorizedStaff(ctx context.Context, q StaffQuery) (*StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM authorized_staff
		WHERE UPPER(surname) = UPPER($1) AND UPPER(initials_sanitized) = UPPER($2)`
	args := []any{q.Surname, q.InitialsSanitized}
	if q.ClassName != "" {
		query += ` AND UPPER(class_name) = UPPER($3)`
		args = append(args, q.ClassName)
	} else {
		query += ` AND class_name IS NULL AND UPPER(designation) = UPPER($3)`
		args = append(args, q.Designation)
	}
	query += ` LIMIT 1`

	m, err := scanStaff(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func scanStaff(row *sql.Row) (StaffMember, error) {
	var (
		m                      StaffMember
		className, designation sql.NullString
		checkIn                sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Initials, &m.InitialsSanitized, &m.Surname, &className, &designation, &m.Registered, &m.Attended, &checkIn)
	if err != nil {
		return StaffMember{}, err
	}
	m.ClassName, m.Designation = className.String, designation.String
	if checkIn.Valid {
		m.CheckInTime = &checkIn.Time
	}
	return m, nil
}

// SeedAuthorizedStudent adds an allow-list entry for a student.
func (r *Repository) SeedAuthorizedStudent(ctx context.Context, name, className string) (AuthorizedStudent, error) {
	a := AuthorizedStudent{ID: uuid.NewString(), Name: name, ClassName: className}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorized_students (id, name, class_name) VALUES ($1, $2, $3)
	`, a.ID, a.Name, a.ClassName)
	return a, err
}

// SeedAuthorizedStaff adds an allow-list entry for a staff member.
func (r *Repository) SeedAuthorizedStaff(ctx context.Context, m StaffMember) (StaffMember, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorized_staff (id, initials, initials_sanitized, surname, class_name, designation, registered, attended)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE)
	`, m.ID, m.Initials, m.InitialsSanitized, m.Surname, nullString(m.ClassName), nullString(m.Designation))
	return m, err
}

func (r *Repository) ClaimStaffRegistration(ctx context.Context, staffID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorized_staff SET registered = TRUE
		WHERE id = $1 AND registered = FALSE
	`, staffID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *Repository) ReleaseStaffRegistration(ctx context.Context, staffID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE authorized_staff SET registered = FALSE WHERE id = $1`, staffID)
	return err
}

func (r *Repository) FindStudent(ctx context.Context, fullName, classID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_code, name, class_id, registered, attended, check_in_time, created_at
		FROM students
		WHERE name = $1 AND class_id = $2
		LIMIT 1
	`, fullName, classID)
	var (
		s       Student
		checkIn sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.ClassID, &s.Registered, &s.Attended, &checkIn, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if checkIn.Valid {
		s.CheckInTime = &checkIn.Time
	}
	return &s, nil
}

func (r *Repository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, student_code, name, class_id, registered, attended, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Code, s.Name, s.ClassID, s.Registered, s.Attended, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Student{}, ErrStudentExists
		}
		return Student{}, err
	}
	return s, nil
}

func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	return err
}

func (r *Repository) CreateTicket(ctx context.Context, kind Kind, t Ticket) (Ticket, error) {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return Ticket{}, fmt.Errorf("encode ticket data: %w", err)
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	t.Holder = Person{}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Ticket{}, err
	}
	defer tx.Rollback()

	// each table only indexes its own barcodes
	for _, k := range Kinds {
		var one int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE barcode = $1`, k.TicketTable), t.Barcode).Scan(&one)
		if err == nil {
			return Ticket{}, ErrBarcodeTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, fmt.Errorf("check barcode in %s: %w", k.TicketTable, err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, %s, barcode, used, ticket_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, kind.TicketTable, kind.PersonColumn)
	if _, err := tx.ExecContext(ctx, query, t.ID, t.OwnerID, t.Barcode, t.Used, data, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Ticket{}, ErrBarcodeTaken
		}
		return Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

func (r *Repository) FindTicket(ctx context.Context, kind Kind, barcode string) (*Ticket, error) {
	var (
		t       Ticket
		data    []byte
		checkIn sql.NullTime
	)
	switch kind.Name {
	case StaffKind.Name:
		var className, designation sql.NullString
		var m StaffMember
		row := r.db.QueryRowContext(ctx, `
			SELECT t.id, t.staff_id, t.barcode, t.used, t.ticket_data, t.created_at,
			       a.initials, a.surname, a.class_name, a.designation, a.attended, a.check_in_time
			FROM staff_tickets t
			JOIN authorized_staff a ON a.id = t.staff_id
			WHERE t.barcode = $1
		`, barcode)
		err := row.Scan(&t.ID, &t.OwnerID, &t.Barcode, &t.Used, &data, &t.CreatedAt,
			&m.Initials, &m.Surname, &className, &designation, &m.Attended, &checkIn)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		m.ID, m.ClassName, m.Designation = t.OwnerID, className.String, designation.String
		if checkIn.Valid {
			m.CheckInTime = &checkIn.Time
		}
		t.Holder = StaffPerson(m)
	default:
		var s Student
		var className string
		row := r.db.QueryRowContext(ctx, `
			SELECT t.id, t.student_id, t.barcode, t.used, t.ticket_data, t.created_at,
			       s.student_code, s.name, s.attended, s.check_in_time, COALESCE(c.name, '')
			FROM tickets t
			JOIN students s ON s.id = t.student_id
			LEFT JOIN classes c ON c.id = s.class_id
			WHERE t.barcode = $1
		`, barcode)
		err := row.Scan(&t.ID, &t.OwnerID, &t.Barcode, &t.Used, &data, &t.CreatedAt,
			&s.Code, &s.Name, &s.Attended, &checkIn, &className)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		s.ID = t.OwnerID
		if checkIn.Valid {
			s.CheckInTime = &checkIn.Time
		}
		t.Holder = StudentPerson(s, className)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.Data); err != nil {
			return nil, fmt.Errorf("decode ticket data: %w", err)
		}
	}
	return &t, nil
}

func (r *Repository) ClaimTicket(ctx context.Context, kind Kind, ticketID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`, kind.TicketTable), ticketID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *Repository) MarkAttended(ctx context.Context, kind Kind, personID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET attended = TRUE, check_in_time = $1
		WHERE id = $2
	`, kind.PersonTable), at, personID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AppendAttendance(ctx context.Context, kind Kind, a Attendance) (Attendance, error) {
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, check_in_method, scanned_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, kind.AttendanceTable, kind.PersonColumn), a.ID, a.PersonID, a.Method, nullString(a.ScannedBy), a.CreatedAt)
	if err != nil {
		return Attendance{}, err
	}
	return a, nil
}

func (r *Repository) Purge(ctx context.Context, kind Kind, personID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, kind.AttendanceTable, kind.PersonColumn),
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, kind.TicketTable, kind.PersonColumn),
	}
	if kind.Name == StaffKind.Name {
		stmts = append(stmts, `UPDATE authorized_staff SET registered = FALSE, attended = FALSE, check_in_time = NULL WHERE id = $1`)
	} else {
		stmts = append(stmts, `DELETE FROM students WHERE id = $1`)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, personID); err != nil {
			return fmt.Errorf("purge %s %s: %w", kind.Name, personID, err)
		}
	}
	return tx.Commit()
}

// Counts reports the number of rows per table.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	targets := []struct {
		table string
		dst   *int
	}{
		{"classes", &c.Classes},
		{"students", &c.Students},
		{"tickets", &c.Tickets},
		{"staff_tickets", &c.StaffTickets},
		{"attendance", &c.Attendance},
		{"staff_attendance", &c.StaffAttendance},
	}
	for _, tg := range targets {
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tg.table).Scan(tg.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation recognises Postgres SQLSTATE 23505 and SQLite's
// "UNIQUE constraint failed" error without importing the cgo driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
