//go:build cgo

package directory

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*Repository)(nil)

func sqliteHarness(t *testing.T) harness {
	t.Helper()
	db, err := sql.Open(SQLite, filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db, SQLite))
	repo := NewRepository(db)
	return harness{
		store: repo,
		seedStaff: func(t *testing.T, m StaffMember) StaffMember {
			seeded, err := repo.SeedAuthorizedStaff(context.Background(), m)
			require.NoError(t, err)
			return seeded
		},
		counts: func(t *testing.T) Counts {
			c, err := repo.Counts(context.Background())
			require.NoError(t, err)
			return c
		},
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, sqliteHarness)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sql.Open(SQLite, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, SQLite))
	require.NoError(t, Migrate(ctx, db, SQLite))
	assert.Error(t, Migrate(ctx, db, "oracle"))
}

func TestAuthorizedStudentLookup(t *testing.T) {
	h := sqliteHarness(t)
	repo := h.store.(*Repository)
	ctx := context.Background()

	_, err := repo.SeedAuthorizedStudent(ctx, "Thandi Mkhize", "12A")
	require.NoError(t, err)

	found, err := repo.FindAuthorizedStudent(ctx, "THANDI MKHIZE", "12a")
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := repo.FindAuthorizedStudent(ctx, "Thandi Mkhize", "11B")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
}
