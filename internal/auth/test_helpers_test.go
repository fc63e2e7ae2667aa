package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/device-console/internal/infrastructure/database"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
	"github.com/nerrad567/device-console/migrations"
)

// testSecret meets MinSecretLength.
const testSecret = "test-secret-key-at-least-32-chars!"

// testDB opens a temporary SQLite database with the embedded schema applied.
// It is closed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// seedTestUser inserts an account with the given password and returns it.
func seedTestUser(t *testing.T, db *sql.DB, username, password string) *User {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{Username: username, PasswordHash: hash}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// testGuard builds a Guard over db with a controllable clock.
func testGuard(t *testing.T, db *sql.DB, now *time.Time) *Guard {
	t.Helper()

	g, err := NewGuard(NewUserRepository(db), NewSessionRepository(db),
		GuardConfig{Secret: testSecret, TTL: time.Hour}, logging.Discard())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	if now != nil {
		g.now = func() time.Time { return *now }
	}
	return g
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
