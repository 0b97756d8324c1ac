package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
)

// PingRepo provides append and count access to the ping_events table.
// Rows are never updated.
type PingRepo struct {
	db *sql.DB
}

// NewPingRepo returns a PingRepo bound to the provided database.
func NewPingRepo(db *sql.DB) *PingRepo { return &PingRepo{db: db} }

// Append records one ping.
func (r *PingRepo) Append(ctx context.Context, e model.PingEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ping_events (id, slot_id, holder_id, used_at, message_ref) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SlotID, e.HolderID, e.UsedAt.UTC(), e.MessageRef)
	return wrap("append ping event", err)
}

// CountSince counts the slot's pings strictly after since.
func (r *PingRepo) CountSince(ctx context.Context, slotID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ping_events WHERE slot_id = ? AND used_at > ?`,
		slotID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, wrap("count ping events", err)
	}
	return n, nil
}

// CountAllSince counts every ping at or after since, across all slots.
func (r *PingRepo) CountAllSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ping_events WHERE used_at >= ?`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, wrap("count ping events", err)
	}
	return n, nil
}
