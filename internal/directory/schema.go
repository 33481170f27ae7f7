package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialects understood by Repository and Migrate. The values match the
// database/sql driver names.
const (
	Postgres = "pgx"
	SQLite   = "sqlite3"
)

// Migrate creates the directory tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	ts, js := "TIMESTAMPTZ", "JSONB"
	switch dialect {
	case Postgres:
	case SQLite:
		ts, js = "DATETIME", "TEXT"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	r := strings.NewReplacer("{ts}", ts, "{json}", js)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL,
		grade  TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_classes_name ON classes (LOWER(name))`,

	`CREATE TABLE IF NOT EXISTS students (
		id             TEXT PRIMARY KEY,
		student_code   TEXT NOT NULL,
		name           TEXT NOT NULL,
		class_id       TEXT NOT NULL REFERENCES classes(id),
		registered     BOOLEAN NOT NULL DEFAULT FALSE,
		attended       BOOLEAN NOT NULL DEFAULT FALSE,
		check_in_time  {ts},
		created_at     {ts} NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_students_name_class ON students (name, class_id)`,

	`CREATE TABLE IF NOT EXISTS authorized_students (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		class_name  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id           TEXT PRIMARY KEY,
		student_id   TEXT NOT NULL REFERENCES students(id),
		barcode      TEXT NOT NULL UNIQUE,
		used         BOOLEAN NOT NULL DEFAULT FALSE,
		ticket_data  {json},
		created_at   {ts} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attendance (
		id               TEXT PRIMARY KEY,
		student_id       TEXT NOT NULL REFERENCES students(id),
		check_in_method  TEXT NOT NULL,
		scanned_by       TEXT,
		created_at       {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance(student_id)`,

	`CREATE TABLE IF NOT EXISTS authorized_staff (
		id                  TEXT PRIMARY KEY,
		initials            TEXT NOT NULL,
		initials_sanitized  TEXT NOT NULL,
		surname             TEXT NOT NULL,
		class_name          TEXT,
		designation         TEXT,
		registered          BOOLEAN NOT NULL DEFAULT FALSE,
		attended            BOOLEAN NOT NULL DEFAULT FALSE,
		check_in_time       {ts}
	)`,

	`CREATE TABLE IF NOT EXISTS staff_tickets (
		id           TEXT PRIMARY KEY,
		staff_id     TEXT NOT NULL REFERENCES authorized_staff(id),
		barcode      TEXT NOT NULL UNIQUE,
		used         BOOLEAN NOT NULL DEFAULT FALSE,
		ticket_data  {json},
		created_at   {ts} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS staff_attendance (
		id               TEXT PRIMARY KEY,
		staff_id         TEXT NOT NULL REFERENCES authorized_staff(id),
		check_in_method  TEXT NOT NULL,
		scanned_by       TEXT,
		created_at       {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_staff_attendance_staff ON staff_attendance(staff_id)`,
}
