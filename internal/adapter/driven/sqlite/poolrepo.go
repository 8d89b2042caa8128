package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PoolStateStore = (*PoolRepo)(nil)

// PoolRepo is the SQLite implementation of the PoolStateStore port. The pool
// is stored as one singleton pool_state row plus one credentials row per
// record; Save rewrites both inside a single transaction.
type PoolRepo struct {
	db *DB
}

// NewPoolRepo creates a new PoolRepo backed by the given DB.
func NewPoolRepo(db *DB) *PoolRepo {
	return &PoolRepo{db: db}
}

// Load reads the whole pool document. An empty database yields model.NewPoolState().
func (r *PoolRepo) Load(ctx context.Context) (model.PoolState, error) {
	state := model.NewPoolState()

	const stateQuery = `SELECT current_index, last_rotation_at, last_health_check_at, fallback_enabled, fallback_usage_count
		FROM pool_state WHERE id = 1`

	var lastRotation, lastHealthCheck sql.NullString
	var fallbackEnabled int
	err := r.db.Reader.QueryRowContext(ctx, stateQuery).Scan(
		&state.CurrentIndex,
		&lastRotation,
		&lastHealthCheck,
		&fallbackEnabled,
		&state.FallbackUsageCount,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Nothing saved yet; keep defaults.
	case err != nil:
		return model.PoolState{}, fmt.Errorf("load pool state: %w", err)
	default:
		state.FallbackEnabled = fallbackEnabled != 0
		if state.LastRotationAt, err = parseNullTime(lastRotation); err != nil {
			return model.PoolState{}, fmt.Errorf("parse last_rotation_at: %w", err)
		}
		if state.LastHealthCheckAt, err = parseNullTime(lastHealthCheck); err != nil {
			return model.PoolState{}, fmt.Errorf("parse last_health_check_at: %w", err)
		}
	}

	creds, err := r.loadCredentials(ctx)
	if err != nil {
		return model.PoolState{}, err
	}
	state.Credentials = creds

	return state, nil
}

func (r *PoolRepo) loadCredentials(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT id, location, display_name, uploaded_at, last_checked_at, status,
		failure_count, success_count, last_error, priority
		FROM credentials ORDER BY position`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		var c model.Credential
		var uploadedAt string
		var lastChecked, lastError sql.NullString
		var status string

		if err := rows.Scan(&c.ID, &c.Location, &c.DisplayName, &uploadedAt, &lastChecked, &status,
			&c.FailureCount, &c.SuccessCount, &lastError, &c.Priority); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}

		c.Status = model.CredentialStatus(status)
		if !c.Status.Valid() {
			return nil, fmt.Errorf("credential %q has unknown status %q", c.ID, status)
		}
		c.LastError = lastError.String

		if c.UploadedAt, err = parseTime(uploadedAt); err != nil {
			return nil, fmt.Errorf("parse uploaded_at for credential %q: %w", c.ID, err)
		}
		if c.LastCheckedAt, err = parseNullTime(lastChecked); err != nil {
			return nil, fmt.Errorf("parse last_checked_at for credential %q: %w", c.ID, err)
		}

		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Save replaces the persisted document with state in one transaction.
func (r *PoolRepo) Save(ctx context.Context, state model.PoolState) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsertState = `INSERT INTO pool_state (id, current_index, last_rotation_at, last_health_check_at, fallback_enabled, fallback_usage_count)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_index = excluded.current_index,
			last_rotation_at = excluded.last_rotation_at,
			last_health_check_at = excluded.last_health_check_at,
			fallback_enabled = excluded.fallback_enabled,
			fallback_usage_count = excluded.fallback_usage_count`

	if _, err := tx.ExecContext(ctx, upsertState,
		state.CurrentIndex,
		formatNullTime(state.LastRotationAt),
		formatNullTime(state.LastHealthCheckAt),
		boolToInt(state.FallbackEnabled),
		state.FallbackUsageCount,
	); err != nil {
		return fmt.Errorf("save pool state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	const insertCredential = `INSERT INTO credentials (id, position, location, display_name, uploaded_at, last_checked_at,
		status, failure_count, success_count, last_error, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, insertCredential)
	if err != nil {
		return fmt.Errorf("prepare credential insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range state.Credentials {
		var lastError sql.NullString
		if c.LastError != "" {
			lastError = sql.NullString{String: c.LastError, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID,
			i,
			c.Location,
			c.DisplayName,
			formatTime(c.UploadedAt),
			formatNullTime(c.LastCheckedAt),
			string(c.Status),
			c.FailureCount,
			c.SuccessCount,
			lastError,
			c.Priority,
		); err != nil {
			return fmt.Errorf("save credential %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseTime parses timestamps written by formatTime, and the SQLite
// CURRENT_TIMESTAMP layout for rows edited by hand.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
