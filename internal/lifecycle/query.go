package lifecycle

import (
	"context"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
	"github.com/Facats/slotwatcherss/internal/tier"
)

// SlotView is a holder's active slot together with its quota usage.
type SlotView struct {
	Slot   model.Slot
	Holder model.Holder
	Tier   tier.Tier
	Quota  Verdict
}

// Query returns the holder's active slot and current window usage.  It
// takes no lock and changes nothing.
func (e *Engine) Query(ctx context.Context, holderID string) (SlotView, error) {
	slot, err := e.store.GetActiveSlotByHolder(ctx, holderID)
	if err != nil {
		if isNotFound(err) {
			return SlotView{}, ErrNoActiveSlot
		}
		return SlotView{}, storeErr("get active slot", err)
	}
	t, err := tier.Lookup(slot.Tier)
	if err != nil {
		return SlotView{}, err
	}
	v, err := e.quota.Evaluate(ctx, slot, e.now())
	if err != nil {
		return SlotView{}, err
	}
	h, err := e.store.GetHolder(ctx, holderID)
	if err != nil && !isNotFound(err) {
		return SlotView{}, storeErr("get holder", err)
	}
	return SlotView{Slot: slot, Holder: h, Tier: t, Quota: v}, nil
}

// ListActive returns every active slot.
func (e *Engine) ListActive(ctx context.Context) ([]model.Slot, error) {
	slots, err := e.store.GetAllActiveSlots(ctx)
	if err != nil {
		return nil, storeErr("list active slots", err)
	}
	return slots, nil
}

// ExpiredSlots returns active slots whose expiry has been reached.
func (e *Engine) ExpiredSlots(ctx context.Context) ([]model.Slot, error) {
	slots, err := e.store.GetExpiredSlots(ctx, e.now())
	if err != nil {
		return nil, storeErr("list expired slots", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot record outright.  An active slot is revoked
// first so the external grant does not outlive the record.
func (e *Engine) DeleteSlot(ctx context.Context, slotID string) error {
	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		if isNotFound(err) {
			return ErrSlotNotFound
		}
		return storeErr("get slot", err)
	}
	if slot.Active {
		if _, err := e.revokeByID(ctx, slotID, model.ReasonManual); err != nil {
			return err
		}
	}
	if err := e.store.DeleteSlot(ctx, slotID); err != nil {
		if isNotFound(err) {
			return ErrSlotNotFound
		}
		return storeErr("delete slot", err)
	}
	e.log.Info().Str("slot_id", slotID).Str("holder_id", slot.HolderID).Msg("slot deleted")
	return nil
}

// Stats summarizes the store.  within bounds the "expiring soon" count.
func (e *Engine) Stats(ctx context.Context, within time.Duration) (model.SlotStats, error) {
	if within <= 0 {
		within = 24 * time.Hour
	}
	st, err := e.store.SlotStats(ctx, e.now(), within)
	if err != nil {
		return model.SlotStats{}, storeErr("slot stats", err)
	}
	return st, nil
}
