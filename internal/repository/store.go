package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
)

// SQLStore bundles the MySQL repositories behind the entitlement store
// contract used by the lifecycle engine.
type SQLStore struct {
	Holders *HolderRepo
	Slots   *SlotRepo
	Pings   *PingRepo
}

// NewSQLStore builds a SQLStore over one connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("nil database passed to NewSQLStore")
	}
	return &SQLStore{
		Holders: NewHolderRepo(db),
		Slots:   NewSlotRepo(db),
		Pings:   NewPingRepo(db),
	}
}

func (s *SQLStore) GetHolder(ctx context.Context, id string) (model.Holder, error) {
	return s.Holders.GetByID(ctx, id)
}

func (s *SQLStore) UpsertHolder(ctx context.Context, h model.Holder) error {
	return s.Holders.Upsert(ctx, h)
}

func (s *SQLStore) GetSlot(ctx context.Context, id string) (model.Slot, error) {
	return s.Slots.GetByID(ctx, id)
}

func (s *SQLStore) GetActiveSlotByHolder(ctx context.Context, holderID string) (model.Slot, error) {
	return s.Slots.GetActiveByHolder(ctx, holderID)
}

func (s *SQLStore) GetAllActiveSlots(ctx context.Context) ([]model.Slot, error) {
	return s.Slots.ListActive(ctx)
}

func (s *SQLStore) GetExpiredSlots(ctx context.Context, now time.Time) ([]model.Slot, error) {
	return s.Slots.ListExpired(ctx, now)
}

func (s *SQLStore) CreateSlot(ctx context.Context, slot model.Slot) error {
	return s.Slots.Create(ctx, slot)
}

func (s *SQLStore) DeactivateSlot(ctx context.Context, id string, reason model.RevokeReason, at time.Time) (bool, error) {
	return s.Slots.Deactivate(ctx, id, reason, at)
}

func (s *SQLStore) DeleteSlot(ctx context.Context, id string) error {
	return s.Slots.Delete(ctx, id)
}

func (s *SQLStore) AppendPingEvent(ctx context.Context, e model.PingEvent) error {
	return s.Pings.Append(ctx, e)
}

func (s *SQLStore) CountPingEvents(ctx context.Context, slotID string, since time.Time) (int, error) {
	return s.Pings.CountSince(ctx, slotID, since)
}

// SlotStats aggregates slot and ping counts.  "Today" is the current UTC
// calendar day.
func (s *SQLStore) SlotStats(ctx context.Context, now time.Time, within time.Duration) (model.SlotStats, error) {
	total, active, expiring, err := s.Slots.Counts(ctx, now, within)
	if err != nil {
		return model.SlotStats{}, err
	}
	pings, err := s.Pings.CountAllSince(ctx, StartOfDay(now))
	if err != nil {
		return model.SlotStats{}, err
	}
	return model.SlotStats{
		TotalSlots:     total,
		ActiveSlots:    active,
		ExpiringSoon:   expiring,
		TodayPingCount: pings,
	}, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
