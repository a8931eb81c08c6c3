package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Upsert inserts a device or replaces an existing row with the same ID.
	Upsert(ctx context.Context, device *Device) error

	// UpdateStatus updates only the presence status of a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// UpdateHeartbeat marks the device online with the given heartbeat time.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateHeartbeat(ctx context.Context, id string, at time.Time) error
}

// HitRepository persists hit events from target devices.
type HitRepository interface {
	// AppendHit inserts a hit event.
	AppendHit(ctx context.Context, hit *HitEvent) error

	// ListHitsByMatch retrieves all hits recorded for a match, oldest first.
	ListHitsByMatch(ctx context.Context, matchID string) ([]HitEvent, error)
}

// LogRepository persists device lifecycle and fault records.
type LogRepository interface {
	// AppendLog inserts a device log entry.
	AppendLog(ctx context.Context, entry *Log) error

	// ListLogsByDevice retrieves the most recent log entries for a device.
	ListLogsByDevice(ctx context.Context, deviceID string, limit int) ([]Log, error)
}

// SQLiteRepository implements Repository, HitRepository and LogRepository
// using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, type, status, firmware_version, ip_address,
	location, last_heartbeat, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Upsert inserts a device or replaces an existing row with the same ID.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, name, type, status, firmware_version,
			ip_address, location, last_heartbeat, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			status = excluded.status,
			firmware_version = excluded.firmware_version,
			ip_address = excluded.ip_address,
			location = excluded.location,
			last_heartbeat = excluded.last_heartbeat,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Type,
		string(device.Status),
		device.FirmwareVersion,
		device.IPAddress,
		device.Location,
		formatNullableTime(device.LastHeartbeat),
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// UpdateStatus updates only the presence status of a device.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRow(result)
}

// UpdateHeartbeat marks the device online with the given heartbeat time.
func (r *SQLiteRepository) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		string(StatusOnline),
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device heartbeat: %w", err)
	}
	return requireRow(result)
}

// AppendHit inserts a hit event.
func (r *SQLiteRepository) AppendHit(ctx context.Context, hit *HitEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hit_events (id, device_id, match_id, player_id, score,
			hit_zone, hit_position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hit.ID,
		hit.DeviceID,
		hit.MatchID,
		hit.PlayerID,
		hit.Score,
		hit.HitZone,
		hit.HitPosition,
		hit.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting hit event: %w", err)
	}
	return nil
}

// ListHitsByMatch retrieves all hits recorded for a match, oldest first.
func (r *SQLiteRepository) ListHitsByMatch(ctx context.Context, matchID string) ([]HitEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, match_id, player_id, score, hit_zone,
			hit_position, created_at
		FROM hit_events
		WHERE match_id = ?
		ORDER BY created_at, id`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying hit events: %w", err)
	}
	defer rows.Close()

	var hits []HitEvent
	for rows.Next() {
		var h HitEvent
		var createdAt string
		if err := rows.Scan(&h.ID, &h.DeviceID, &h.MatchID, &h.PlayerID,
			&h.Score, &h.HitZone, &h.HitPosition, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning hit event: %w", err)
		}
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// AppendLog inserts a device log entry.
func (r *SQLiteRepository) AppendLog(ctx context.Context, entry *Log) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_logs (device_id, level, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.DeviceID,
		string(entry.Level),
		entry.Event,
		entry.Detail,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device log: %w", err)
	}
	return nil
}

// ListLogsByDevice retrieves the most recent log entries for a device.
func (r *SQLiteRepository) ListLogsByDevice(ctx context.Context, deviceID string, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, level, event, detail, created_at
		FROM device_logs
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		var level, createdAt string
		if err := rows.Scan(&l.ID, &l.DeviceID, &level, &l.Event, &l.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device log: %w", err)
		}
		l.Level = LogLevel(level)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row in deviceColumns order.
func scanDevice(row scanner) (*Device, error) {
	var d Device
	var status string
	var lastHeartbeat sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Type,
		&status,
		&d.FirmwareVersion,
		&d.IPAddress,
		&d.Location,
		&lastHeartbeat,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	if lastHeartbeat.Valid && lastHeartbeat.String != "" {
		if t, err := time.Parse(time.RFC3339, lastHeartbeat.String); err == nil {
			d.LastHeartbeat = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &d, nil
}

// formatNullableTime renders an optional timestamp for storage.
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// requireRow converts a zero-row update into ErrDeviceNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
