package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
)

// HolderRepo provides data access to the holders table.
type HolderRepo struct {
	db *sql.DB
}

// NewHolderRepo returns a HolderRepo bound to the provided database.
func NewHolderRepo(db *sql.DB) *HolderRepo { return &HolderRepo{db: db} }

// GetByID fetches a holder by its platform identity.
func (r *HolderRepo) GetByID(ctx context.Context, id string) (model.Holder, error) {
	var h model.Holder
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, avatar_url, created_at, updated_at FROM holders WHERE id = ? LIMIT 1`,
		id).Scan(&h.ID, &h.DisplayName, &h.AvatarURL, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return model.Holder{}, wrap("get holder", err)
	}
	return h, nil
}

// Upsert inserts the holder or refreshes its display name and avatar.
// Empty values never overwrite what was observed earlier.
func (r *HolderRepo) Upsert(ctx context.Context, h model.Holder) error {
	at := h.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO holders (id, display_name, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   display_name = IF(VALUES(display_name) = '', display_name, VALUES(display_name)),
		   avatar_url   = IF(VALUES(avatar_url) = '', avatar_url, VALUES(avatar_url)),
		   updated_at   = VALUES(updated_at)`,
		h.ID, h.DisplayName, h.AvatarURL, at, at)
	return wrap("upsert holder", err)
}
