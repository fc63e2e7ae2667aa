package database

import (
	"context"
	"errors"
	"testing"
)

func setupTxTable(t *testing.T) *DB {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.ExecContext(context.Background(),
		"CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}
	return db
}

func countTxRows(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM tx_test").Scan(&n); err != nil {
		t.Fatalf("COUNT error = %v", err)
	}
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupTxTable(t)

	err := WithTx(context.Background(), db.DB, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "ok")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if n := countTxRows(t, db); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := setupTxTable(t)
	errBoom := errors.New("boom")

	err := WithTx(context.Background(), db.DB, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "fail"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx() error = %v, want %v", err, errBoom)
	}
	if n := countTxRows(t, db); n != 0 {
		t.Errorf("rows = %d, want 0 after rollback", n)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupTxTable(t)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to be rethrown")
			}
		}()
		_ = WithTx(context.Background(), db.DB, func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "panic"); err != nil {
				t.Fatalf("INSERT error = %v", err)
			}
			panic("kaboom")
		})
	}()

	if n := countTxRows(t, db); n != 0 {
		t.Errorf("rows = %d, want 0 after panic", n)
	}
}

func TestWithTx_CancelledContext(t *testing.T) {
	db := setupTxTable(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := WithTx(ctx, db.DB, func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("WithTx() with cancelled context should fail")
	}
	if called {
		t.Error("fn should not run when the transaction cannot start")
	}
}
