package audit

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

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	entries := []*AuditLog{
		{Action: ActionRegister, EntityType: EntityUser, EntityID: "1", UserID: 1, Username: "alice", Source: "console", CreatedAt: base},
		{Action: ActionLogin, EntityType: EntitySession, UserID: 1, Username: "alice", Source: "console", CreatedAt: base.Add(time.Second)},
		{Action: ActionCreate, EntityType: EntityDevice, EntityID: "7", UserID: 1, Source: "console",
			Details: map[string]any{"name": "sensor1"}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Create() should generate an ID")
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 || len(result.Logs) != 3 {
		t.Fatalf("List() total = %d len = %d, want 3/3", result.Total, len(result.Logs))
	}
	if result.Logs[0].Action != ActionCreate {
		t.Errorf("newest entry action = %q, want %q", result.Logs[0].Action, ActionCreate)
	}
	if result.Logs[0].Details["name"] != "sensor1" {
		t.Errorf("Details = %v, want name=sensor1", result.Logs[0].Details)
	}
	if result.Logs[2].Username != "alice" || result.Logs[2].UserID != 1 {
		t.Errorf("oldest entry = %+v, want alice/1", result.Logs[2])
	}
	if result.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", result.Limit, defaultLimit)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i, action := range []string{ActionCreate, ActionUpdate, ActionCreate, ActionDelete} {
		e := &AuditLog{Action: action, EntityType: EntityDevice, EntityID: string(rune('1' + i)), Source: "console"}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
		total  int
	}{
		{"by action", Filter{Action: ActionCreate}, 2, 2},
		{"by entity id", Filter{EntityID: "2"}, 1, 1},
		{"by type", Filter{EntityType: EntityDevice}, 4, 4},
		{"no match", Filter{EntityType: EntityUser}, 0, 0},
		{"paged", Filter{Limit: 2, Offset: 3}, 1, 4},
		{"limit clamped", Filter{Limit: 10_000}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(result.Logs) != tt.want || result.Total != tt.total {
				t.Errorf("List() len = %d total = %d, want %d/%d", len(result.Logs), result.Total, tt.want, tt.total)
			}
			if result.Limit > maxLimit {
				t.Errorf("Limit = %d exceeds max", result.Limit)
			}
		})
	}
}

func TestRecorder_WritesAndDrains(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	rec := NewRecorder(repo, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for i := 0; i < 5; i++ {
		rec.Record(&AuditLog{Action: ActionLogin, EntityType: EntitySession, Source: "console"})
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5 after drain", result.Total)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(&AuditLog{Action: ActionLogin})
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	rec := NewRecorder(repo, logging.Discard())

	// Run is not started, so the buffer fills and further entries are dropped.
	for i := 0; i < recorderBuffer+10; i++ {
		rec.Record(&AuditLog{Action: ActionLogin, EntityType: EntitySession, Source: "console"})
	}
	if got := len(rec.ch); got != recorderBuffer {
		t.Errorf("queued = %d, want %d", got, recorderBuffer)
	}
}
