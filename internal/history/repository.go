package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/robojar-core/internal/device"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrInvalidRetention is returned by Prune for a non-positive duration.
var ErrInvalidRetention = errors.New("history: retention must be positive")

// Entry is one mirrored transition.
type Entry struct {
	ID        string       `json:"id"`
	Device    string       `json:"device"`
	Kind      device.Kind  `json:"kind"`
	From      device.State `json:"from"`
	To        device.State `json:"to"`
	CreatedAt time.Time    `json:"created_at"`
}

// Repository stores and retrieves transition history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record stores an applied transition. Other outcomes are ignored.
	Record(ctx context.Context, tr device.Transition) error

	// List returns recent entries for a device, newest first. An empty
	// device name lists every device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceName: Device name, e.g. "Valve 1", or "" for all
	//   - limit: Maximum entries (default 50, max 200)
	List(ctx context.Context, deviceName string, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the transitions table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository using db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts tr when its outcome is applied.
func (r *SQLiteRepository) Record(ctx context.Context, tr device.Transition) error {
	if !tr.Changed() {
		return nil
	}
	if tr.Device == "" {
		return fmt.Errorf("history: device name is required")
	}

	at := tr.At
	if at.IsZero() {
		at = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transitions (id, device, kind, from_state, to_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		tr.Device,
		string(tr.Kind),
		string(tr.From),
		string(tr.To),
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// List returns recent entries ordered by created_at DESC.
func (r *SQLiteRepository) List(ctx context.Context, deviceName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query := `SELECT id, device, kind, from_state, to_state, created_at FROM transitions`
	args := []any{}
	if deviceName != "" {
		query += ` WHERE device = ?`
		args = append(args, deviceName)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                      Entry
			kind, from, to, stamp string
		)
		if err := rows.Scan(&e.ID, &e.Device, &kind, &from, &to, &stamp); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		e.Kind, e.From, e.To = device.Kind(kind), device.State(from), device.State(to)

		e.CreatedAt, err = time.Parse(timeLayout, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return entries, nil
}

// Prune deletes entries created before now-olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := r.db.ExecContext(ctx, "DELETE FROM transitions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting transitions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
