package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence operations for platform devices.
type Repository interface {
	Create(ctx context.Context, d *Device) (*Device, error)
	GetByID(ctx context.Context, id int) (*Device, error)
	GetByAddress(ctx context.Context, coordinatorID int, address string) (*Device, error)
	List(ctx context.Context) ([]*Device, error)
	ListByCoordinator(ctx context.Context, coordinatorID int) ([]*Device, error)
	Update(ctx context.Context, d *Device) (*Device, error)
	Delete(ctx context.Context, id int) error

	// RekeyAddress moves a device record to a new address, keeping its
	// platform id and every other column intact.
	RekeyAddress(ctx context.Context, coordinatorID int, oldAddress, newAddress string) error

	// UpdateStates applies a batch of state writes to a single device.
	// Keys not present in the batch are left untouched.
	UpdateStates(ctx context.Context, id int, updates []StateUpdate) error

	SetErrorState(ctx context.Context, id int, reason string) error
	SetStateImage(ctx context.Context, id int, image StateImage) error
	SetLastSeen(ctx context.Context, id int, seen time.Time) error

	GroupMembers(ctx context.Context, groupID int) ([]int, error)
	ReplaceGroupMembers(ctx context.Context, groupID int, memberIDs []int) error
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, coordinator_id, address, name, type, model, vendor,
	config, states, enabled, error_state, state_image, last_seen, created_at, updated_at`

// rowScanner abstracts sql.Row and sql.Rows for scanDeviceRow.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new device and returns it with its assigned id.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) (*Device, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	configJSON, statesJSON, err := marshalDeviceJSON(d)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (coordinator_id, address, name, type, model, vendor,
			config, states, enabled, error_state, state_image, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.CoordinatorID, d.Address, d.Name, string(d.Type), d.Model, d.Vendor,
		configJSON, statesJSON, boolToInt(d.Enabled), d.ErrorState, string(d.StateImage),
		nullableTime(d.LastSeen), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: coordinator %d address %q", ErrDeviceExists, d.CoordinatorID, d.Address)
		}
		return nil, fmt.Errorf("insert device: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert device id: %w", err)
	}
	return r.GetByID(ctx, int(id))
}

// GetByID fetches one device by platform id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDeviceRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrDeviceNotFound, id)
	}
	return d, err
}

// GetByAddress fetches one device by its mesh address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, coordinatorID int, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE coordinator_id = ? AND address = ?`,
		coordinatorID, address)
	d, err := scanDeviceRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: coordinator %d address %q", ErrDeviceNotFound, coordinatorID, address)
	}
	return d, err
}

// List returns every device ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Device, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
}

// ListByCoordinator returns every device belonging to one coordinator.
func (r *SQLiteRepository) ListByCoordinator(ctx context.Context, coordinatorID int) ([]*Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE coordinator_id = ? ORDER BY id`, coordinatorID)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]*Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Update rewrites every mutable column of a device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) (*Device, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	configJSON, statesJSON, err := marshalDeviceJSON(d)
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET coordinator_id = ?, address = ?, name = ?, type = ?, model = ?, vendor = ?,
			config = ?, states = ?, enabled = ?, error_state = ?, state_image = ?,
			last_seen = ?, updated_at = ?
		WHERE id = ?`,
		d.CoordinatorID, d.Address, d.Name, string(d.Type), d.Model, d.Vendor,
		configJSON, statesJSON, boolToInt(d.Enabled), d.ErrorState, string(d.StateImage),
		nullableTime(d.LastSeen), time.Now().UTC().Format(time.RFC3339Nano), d.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: coordinator %d address %q", ErrDeviceExists, d.CoordinatorID, d.Address)
		}
		return nil, fmt.Errorf("update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrDeviceNotFound, d.ID)
	}
	return r.GetByID(ctx, d.ID)
}

// Delete removes a device. Group membership rows cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrDeviceNotFound, id)
	}
	return nil
}

// RekeyAddress moves a device to a new address atomically.
func (r *SQLiteRepository) RekeyAddress(ctx context.Context, coordinatorID int, oldAddress, newAddress string) error {
	if newAddress == "" {
		return ErrInvalidAddress
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET address = ?, updated_at = ?
		WHERE coordinator_id = ? AND address = ?`,
		newAddress, time.Now().UTC().Format(time.RFC3339Nano), coordinatorID, oldAddress,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: coordinator %d address %q", ErrDeviceExists, coordinatorID, newAddress)
		}
		return fmt.Errorf("rekey device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: coordinator %d address %q", ErrDeviceNotFound, coordinatorID, oldAddress)
	}
	return nil
}

// UpdateStates merges a batch of state writes into the stored state
// map using a JSON patch, leaving untouched keys in place.
func (r *SQLiteRepository) UpdateStates(ctx context.Context, id int, updates []StateUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	patch := make(map[string]State, len(updates))
	for _, u := range updates {
		patch[u.Key] = State{Value: u.Value, UI: u.UI}
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal state patch: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET states = json_patch(COALESCE(states, '{}'), ?), updated_at = ?
		WHERE id = ?`,
		string(patchJSON), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update device states: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrDeviceNotFound, id)
	}
	return nil
}

// SetErrorState records an error condition. An empty reason clears it.
func (r *SQLiteRepository) SetErrorState(ctx context.Context, id int, reason string) error {
	return r.setColumn(ctx, id, "error_state", reason)
}

// SetStateImage records the UI image selector for a device.
func (r *SQLiteRepository) SetStateImage(ctx context.Context, id int, image StateImage) error {
	return r.setColumn(ctx, id, "state_image", string(image))
}

// SetLastSeen records the most recent report time for a device.
func (r *SQLiteRepository) SetLastSeen(ctx context.Context, id int, seen time.Time) error {
	return r.setColumn(ctx, id, "last_seen", seen.UTC().Format(time.RFC3339Nano))
}

func (r *SQLiteRepository) setColumn(ctx context.Context, id int, column, value string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update device %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrDeviceNotFound, id)
	}
	return nil
}

// GroupMembers returns the member ids of a group device, ordered by id.
func (r *SQLiteRepository) GroupMembers(ctx context.Context, groupID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id FROM group_members WHERE group_id = ? ORDER BY member_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ReplaceGroupMembers swaps a group's membership wholesale inside one
// transaction.
func (r *SQLiteRepository) ReplaceGroupMembers(ctx context.Context, groupID int, memberIDs []int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("clear group members: %w", err)
	}
	for _, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, member_id) VALUES (?, ?)`,
			groupID, memberID); err != nil {
			return fmt.Errorf("insert group member %d: %w", memberID, err)
		}
	}
	return tx.Commit()
}

func marshalDeviceJSON(d *Device) (configJSON, statesJSON string, err error) {
	cfg, err := json.Marshal(d.Config)
	if err != nil {
		return "", "", fmt.Errorf("marshal device config: %w", err)
	}
	states := d.States
	if states == nil {
		states = States{}
	}
	st, err := json.Marshal(states)
	if err != nil {
		return "", "", fmt.Errorf("marshal device states: %w", err)
	}
	return string(cfg), string(st), nil
}

func scanDeviceRow(row rowScanner) (*Device, error) {
	var (
		d          Device
		typ        string
		image      string
		configJSON string
		statesJSON string
		lastSeen   sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&d.ID, &d.CoordinatorID, &d.Address, &d.Name, &typ, &d.Model, &d.Vendor,
		&configJSON, &statesJSON, &d.Enabled, &d.ErrorState, &image, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Type = Archetype(typ)
	d.StateImage = StateImage(image)

	if err := json.Unmarshal([]byte(configJSON), &d.Config); err != nil {
		return nil, fmt.Errorf("unmarshal device config: %w", err)
	}
	if err := json.Unmarshal([]byte(statesJSON), &d.States); err != nil {
		return nil, fmt.Errorf("unmarshal device states: %w", err)
	}

	if lastSeen.Valid && lastSeen.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		d.LastSeen = &t
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
