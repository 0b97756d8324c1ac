package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
)

// MemoryStore is an in-process entitlement store.  It is used by tests
// and by single-node deployments that accept losing state on restart.
// One mutex guards all maps, which gives CreateSlot its atomic
// check-then-create.
type MemoryStore struct {
	mu      sync.RWMutex
	holders map[string]model.Holder
	slots   map[string]model.Slot
	active  map[string]string // holder id -> active slot id
	pings   []model.PingEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		holders: make(map[string]model.Holder),
		slots:   make(map[string]model.Slot),
		active:  make(map[string]string),
	}
}

func (m *MemoryStore) GetHolder(_ context.Context, id string) (model.Holder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[id]
	if !ok {
		return model.Holder{}, ErrNotFound
	}
	return h, nil
}

func (m *MemoryStore) UpsertHolder(_ context.Context, h model.Holder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := h.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	cur, ok := m.holders[h.ID]
	if !ok {
		h.CreatedAt, h.UpdatedAt = at, at
		m.holders[h.ID] = h
		return nil
	}
	if h.DisplayName != "" {
		cur.DisplayName = h.DisplayName
	}
	if h.AvatarURL != "" {
		cur.AvatarURL = h.AvatarURL
	}
	cur.UpdatedAt = at
	m.holders[h.ID] = cur
	return nil
}

func (m *MemoryStore) GetSlot(_ context.Context, id string) (model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return model.Slot{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetActiveSlotByHolder(_ context.Context, holderID string) (model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[holderID]
	if !ok {
		return model.Slot{}, ErrNotFound
	}
	return m.slots[id], nil
}

func (m *MemoryStore) GetAllActiveSlots(_ context.Context) ([]model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Slot, 0, len(m.active))
	for _, id := range m.active {
		out = append(out, m.slots[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetExpiredSlots(_ context.Context, now time.Time) ([]model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Slot
	for _, id := range m.active {
		s := m.slots[id]
		if s.ExpiredAt(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (m *MemoryStore) CreateSlot(_ context.Context, s model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holders[s.HolderID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.active[s.HolderID]; ok {
		return ErrActiveSlotExists
	}
	s.Active = true
	s.DeactivatedAt = nil
	s.RevokeReason = ""
	m.slots[s.ID] = s
	m.active[s.HolderID] = s.ID
	return nil
}

func (m *MemoryStore) DeactivateSlot(_ context.Context, id string, reason model.RevokeReason, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || !s.Active {
		return false, nil
	}
	at = at.UTC()
	s.Active = false
	s.DeactivatedAt = &at
	s.RevokeReason = reason
	m.slots[id] = s
	delete(m.active, s.HolderID)
	return true, nil
}

func (m *MemoryStore) DeleteSlot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrNotFound
	}
	if m.active[s.HolderID] == id {
		delete(m.active, s.HolderID)
	}
	delete(m.slots, id)
	return nil
}

func (m *MemoryStore) AppendPingEvent(_ context.Context, e model.PingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.UsedAt = e.UsedAt.UTC()
	m.pings = append(m.pings, e)
	return nil
}

func (m *MemoryStore) CountPingEvents(_ context.Context, slotID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.pings {
		if e.SlotID == slotID && e.UsedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SlotStats(_ context.Context, now time.Time, within time.Duration) (model.SlotStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	horizon := now.Add(within)
	st := model.SlotStats{TotalSlots: len(m.slots), ActiveSlots: len(m.active)}
	for _, id := range m.active {
		s := m.slots[id]
		if s.ExpiresAt != nil && s.ExpiresAt.After(now) && !s.ExpiresAt.After(horizon) {
			st.ExpiringSoon++
		}
	}
	day := StartOfDay(now)
	for _, e := range m.pings {
		if !e.UsedAt.Before(day) {
			st.TodayPingCount++
		}
	}
	return st, nil
}
