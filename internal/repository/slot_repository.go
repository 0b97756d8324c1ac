package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
)

// SlotRepo provides data access to the slots table.  A slot row carries
// active_holder_id, which equals holder_id while the slot is active and
// is NULL otherwise.  The unique key on that column is what makes "one
// active slot per holder" hold even across processes.  All timestamps
// are stored in UTC.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a SlotRepo bound to the provided database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = `id, holder_id, tier, resource_ref, original_label, grant_ref,
	expires_at, active, created_at, deactivated_at, revoke_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (model.Slot, error) {
	var (
		s             model.Slot
		expiresAt     sql.NullTime
		deactivatedAt sql.NullTime
		reason        string
	)
	err := row.Scan(&s.ID, &s.HolderID, &s.Tier, &s.ResourceRef, &s.OriginalLabel, &s.GrantRef,
		&expiresAt, &s.Active, &s.CreatedAt, &deactivatedAt, &reason)
	if err != nil {
		return model.Slot{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		s.ExpiresAt = &t
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time.UTC()
		s.DeactivatedAt = &t
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.RevokeReason = model.RevokeReason(reason)
	return s, nil
}

func (r *SlotRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()
	var slots []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return slots, nil
}

// GetByID fetches a slot regardless of its state.
func (r *SlotRepo) GetByID(ctx context.Context, id string) (model.Slot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = ? LIMIT 1`, id))
	if err != nil {
		return model.Slot{}, wrap("get slot", err)
	}
	return s, nil
}

// GetActiveByHolder fetches the holder's active slot.
func (r *SlotRepo) GetActiveByHolder(ctx context.Context, holderID string) (model.Slot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE active_holder_id = ? LIMIT 1`, holderID))
	if err != nil {
		return model.Slot{}, wrap("get active slot", err)
	}
	return s, nil
}

// ListActive returns every active slot, oldest first.
func (r *SlotRepo) ListActive(ctx context.Context) ([]model.Slot, error) {
	return r.list(ctx, "list active slots",
		`SELECT `+slotColumns+` FROM slots WHERE active = 1 ORDER BY created_at`)
}

// ListExpired returns active slots whose expires_at is at or before now.
// Lifetime slots (NULL expires_at) are never returned.
func (r *SlotRepo) ListExpired(ctx context.Context, now time.Time) ([]model.Slot, error) {
	return r.list(ctx, "list expired slots",
		`SELECT `+slotColumns+` FROM slots
		 WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY expires_at`, now.UTC())
}

// Create inserts a new active slot.  Inside one transaction it locks the
// holder row, checks for an existing active slot, and inserts.  The
// unique key on active_holder_id backs the check up if another writer
// bypasses the lock.  The holder row must already exist.
func (r *SlotRepo) Create(ctx context.Context, s model.Slot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("create slot", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM holders WHERE id = ? FOR UPDATE`, s.HolderID).Scan(&locked); err != nil {
		return wrap("create slot", err)
	}
	var active int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE active_holder_id = ?`, s.HolderID).Scan(&active); err != nil {
		return wrap("create slot", err)
	}
	if active > 0 {
		return ErrActiveSlotExists
	}

	var expiresAt any
	if s.ExpiresAt != nil {
		expiresAt = s.ExpiresAt.UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO slots (id, holder_id, tier, resource_ref, original_label, grant_ref,
		                    expires_at, active, active_holder_id, created_at, revoke_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, '')`,
		s.ID, s.HolderID, s.Tier, s.ResourceRef, s.OriginalLabel, s.GrantRef,
		expiresAt, s.HolderID, s.CreatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrActiveSlotExists
		}
		return wrap("create slot", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("create slot", err)
	}
	committed = true
	return nil
}

// Deactivate flips an active slot to inactive.  It reports false when the
// slot was already inactive, so repeated revokes change nothing.
func (r *SlotRepo) Deactivate(ctx context.Context, id string, reason model.RevokeReason, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE slots SET active = 0, active_holder_id = NULL, deactivated_at = ?, revoke_reason = ?
		 WHERE id = ? AND active = 1`,
		at.UTC(), string(reason), id)
	if err != nil {
		return false, wrap("deactivate slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("deactivate slot", err)
	}
	return n > 0, nil
}

// Delete physically removes a slot row.  Ping events that referenced it
// are kept; they only point at the slot for diagnostics.
func (r *SlotRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return wrap("delete slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("delete slot", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns the total number of slots, the number of active ones,
// and the number of active slots expiring in (now, now+within].
func (r *SlotRepo) Counts(ctx context.Context, now time.Time, within time.Duration) (total, active, expiring int, err error) {
	now = now.UTC()
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(active), 0),
		        COALESCE(SUM(CASE WHEN active = 1 AND expires_at IS NOT NULL
		                           AND expires_at > ? AND expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM slots`,
		now, now.Add(within)).Scan(&total, &active, &expiring)
	if err != nil {
		return 0, 0, 0, wrap("count slots", err)
	}
	return total, active, expiring, nil
}
