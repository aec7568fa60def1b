// Package audit stores the commands received on device control topics in
// the command_audit table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command outcomes.
const (
	OutcomeRelayed = "relayed"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Entry is one audited command.
type Entry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	HubID     string    `json:"hub_id"`
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	DeviceID string // optional
	Outcome  string // optional
	Limit    int    // default 50, max 500
}

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout is fixed width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Repository defines the command audit operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	switch e.Outcome {
	case OutcomeRelayed, OutcomeInvalid, OutcomeFailed:
	default:
		return fmt.Errorf("invalid audit outcome %q", e.Outcome)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, device_id, hub_id, topic, payload, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.HubID, e.Topic, e.Payload, e.Outcome,
		nullableString(e.Error),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command audit entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns matching entries, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, device_id, hub_id, topic, payload, outcome, error, created_at FROM command_audit %s ORDER BY created_at DESC, rowid DESC LIMIT ?",
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command audit: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.HubID, &e.Topic, &e.Payload,
			&e.Outcome, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command audit entry: %w", err)
		}
		e.Error = errText.String
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command audit: %w", err)
	}
	return entries, nil
}
