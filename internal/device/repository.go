package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/device-console/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// List returns every device ordered by id.
	List(ctx context.Context) ([]Device, error)

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// Create inserts a device and assigns its ID.
	Create(ctx context.Context, device *Device) error

	// Update overwrites name, type and secret digest.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device. Deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of devices.
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `SELECT id, name, type, secret_hash, created_at, updated_at FROM devices`

// List returns a snapshot of all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectDevice+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// Create validates and inserts a device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO devices (name, type, secret_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			device.Name, device.Type, device.SecretHash,
			now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		device.ID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

// Update validates and overwrites an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE devices SET name = ?, type = ?, secret_hash = ?, updated_at = ? WHERE id = ?`,
			device.Name, device.Type, device.SecretHash, now.Format(time.RFC3339), device.ID,
		)
		if err != nil {
			return fmt.Errorf("updating device: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return ErrDeviceNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	device.UpdatedAt = now
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// Count returns the number of devices.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.Name, &d.Type, &d.SecretHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &d, nil
}
