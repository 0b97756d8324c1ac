// Package lifecycle is the slot state machine.  Every transition for a
// holder runs under that holder's lock, commits to the store, and only
// then reconciles the external authorization system.  Manual removal,
// quota violation and expiry all end in the same revoke path; the reason
// is recorded but never changes what revoking does.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/lock"
	"github.com/Facats/slotwatcherss/internal/metrics"
	"github.com/Facats/slotwatcherss/internal/model"
	"github.com/Facats/slotwatcherss/internal/queue"
	"github.com/Facats/slotwatcherss/internal/reconcile"
	"github.com/Facats/slotwatcherss/internal/repository"
	"github.com/Facats/slotwatcherss/internal/tier"
)

// Store is the entitlement store contract.  Implementations return
// repository.ErrNotFound for missing rows and
// repository.ErrActiveSlotExists when CreateSlot loses the one-active-slot
// check.
type Store interface {
	GetHolder(ctx context.Context, id string) (model.Holder, error)
	UpsertHolder(ctx context.Context, h model.Holder) error
	GetSlot(ctx context.Context, id string) (model.Slot, error)
	GetActiveSlotByHolder(ctx context.Context, holderID string) (model.Slot, error)
	GetAllActiveSlots(ctx context.Context) ([]model.Slot, error)
	GetExpiredSlots(ctx context.Context, now time.Time) ([]model.Slot, error)
	CreateSlot(ctx context.Context, s model.Slot) error
	DeactivateSlot(ctx context.Context, id string, reason model.RevokeReason, at time.Time) (bool, error)
	DeleteSlot(ctx context.Context, id string) error
	AppendPingEvent(ctx context.Context, e model.PingEvent) error
	CountPingEvents(ctx context.Context, slotID string, since time.Time) (int, error)
	SlotStats(ctx context.Context, now time.Time, within time.Duration) (model.SlotStats, error)
}

// Reconciler applies slot state to the external authorization system.
type Reconciler interface {
	Grant(ctx context.Context, holderID, resourceRef string, t tier.Name) (reconcile.Grant, error)
	Undo(ctx context.Context, holderID, resourceRef string, g reconcile.Grant) reconcile.Report
	Revoke(ctx context.Context, holderID, resourceRef, grantRef, originalLabel string) reconcile.Report
}

// EventSink receives lifecycle events after a transition commits.
type EventSink interface {
	Publish(ctx context.Context, ev queue.SlotEvent) error
}

// Options carry the optional collaborators of an Engine.
type Options struct {
	Locks   lock.Locker          // defaults to an in-process KeyedMutex
	Events  EventSink            // defaults to dropping events
	Metrics *metrics.SlotMetrics // nil disables metrics
	Clock   func() time.Time     // defaults to time.Now
}

// Engine runs slot transitions.
type Engine struct {
	store   Store
	recon   Reconciler
	quota   Evaluator
	locks   lock.Locker
	events  EventSink
	metrics *metrics.SlotMetrics
	clock   func() time.Time
	log     zerolog.Logger
}

// New builds an Engine.  store and recon are required.
func New(store Store, recon Reconciler, opts Options) *Engine {
	if store == nil || recon == nil {
		panic("nil store or reconciler passed to lifecycle.New")
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewKeyedMutex()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:   store,
		recon:   recon,
		quota:   Evaluator{Counter: store},
		locks:   opts.Locks,
		events:  opts.Events,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		log:     log.With().Str("component", "lifecycle").Logger(),
	}
}

func (e *Engine) now() time.Time { return e.clock().UTC() }

// lockHolder serializes transitions for one holder.
func (e *Engine) lockHolder(ctx context.Context, holderID string) (func(), error) {
	unlock, err := e.locks.Lock(ctx, "holder:"+holderID)
	if err != nil {
		return nil, storeErr("lock holder", err)
	}
	return unlock, nil
}

// GrantRequest is the input to Grant.
type GrantRequest struct {
	HolderID    string
	DisplayName string
	AvatarURL   string
	Tier        string
	ResourceRef string
}

// Grant creates an active slot and gives the holder access.  Either both
// happen or neither does: if the external grant fails, no slot is stored,
// and if the slot cannot be stored, the external grant is undone.
// An active slot that is already past its expiry does not block the grant;
// it is expired first, exactly as the sweep would.
func (e *Engine) Grant(ctx context.Context, req GrantRequest) (model.Slot, error) {
	req.HolderID = strings.TrimSpace(req.HolderID)
	req.ResourceRef = strings.TrimSpace(req.ResourceRef)
	if req.HolderID == "" || req.ResourceRef == "" {
		return model.Slot{}, fmt.Errorf("%w: holder id and resource are required", ErrInvalidArgument)
	}
	t, err := tier.Lookup(req.Tier)
	if err != nil {
		return model.Slot{}, err
	}

	unlock, err := e.lockHolder(ctx, req.HolderID)
	if err != nil {
		return model.Slot{}, err
	}
	slot, err := e.grantLocked(ctx, req, t)
	unlock()
	if err != nil {
		return model.Slot{}, err
	}

	e.metrics.SlotGranted(string(t.Name))
	e.log.Info().
		Str("slot_id", slot.ID).
		Str("holder_id", slot.HolderID).
		Str("tier", slot.Tier).
		Str("resource_ref", slot.ResourceRef).
		Msg("slot granted")
	e.publish(ctx, queue.EventGranted, slot, nil)
	return slot, nil
}

func (e *Engine) grantLocked(ctx context.Context, req GrantRequest, t tier.Tier) (model.Slot, error) {
	now := e.now()
	if cur, err := e.store.GetActiveSlotByHolder(ctx, req.HolderID); err == nil {
		if !cur.ExpiredAt(now) {
			return model.Slot{}, ErrDuplicateSlot
		}
		// Past expiry but not yet swept.  Its revoke has to land before the
		// new grant or it would strip the access being granted.
		old, changed, err := e.deactivateLocked(ctx, cur, model.ReasonExpired)
		if err != nil {
			return model.Slot{}, err
		}
		if changed {
			e.finishRevoke(ctx, old)
		}
	} else if !isNotFound(err) {
		return model.Slot{}, storeErr("get active slot", err)
	}

	if err := e.store.UpsertHolder(ctx, model.Holder{
		ID:          req.HolderID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		UpdatedAt:   now,
	}); err != nil {
		return model.Slot{}, storeErr("upsert holder", err)
	}

	g, err := e.recon.Grant(ctx, req.HolderID, req.ResourceRef, t.Name)
	if err != nil {
		e.log.Warn().Err(err).Str("holder_id", req.HolderID).Msg("grant not applied externally; slot not created")
		if !errors.Is(err, ErrAuthorizationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrAuthorizationUnavailable, err)
		}
		return model.Slot{}, err
	}

	slot := model.Slot{
		ID:            uuid.NewString(),
		HolderID:      req.HolderID,
		Tier:          string(t.Name),
		ResourceRef:   req.ResourceRef,
		OriginalLabel: g.OriginalLabel,
		GrantRef:      g.GrantRef,
		ExpiresAt:     t.ExpiresAt(now),
		Active:        true,
		CreatedAt:     now,
	}
	if err := e.store.CreateSlot(ctx, slot); err != nil {
		rep := e.recon.Undo(context.WithoutCancel(ctx), req.HolderID, req.ResourceRef, g)
		if !rep.OK() {
			e.log.Warn().Err(rep.Err()).Str("holder_id", req.HolderID).Msg("undo of external grant incomplete")
		}
		if errors.Is(err, repository.ErrActiveSlotExists) {
			return model.Slot{}, ErrDuplicateSlot
		}
		return model.Slot{}, storeErr("create slot", err)
	}
	return slot, nil
}

// Remove ends the holder's active slot on an operator's request.
func (e *Engine) Remove(ctx context.Context, holderID string) (model.Slot, error) {
	unlock, err := e.lockHolder(ctx, holderID)
	if err != nil {
		return model.Slot{}, err
	}
	slot, err := e.store.GetActiveSlotByHolder(ctx, holderID)
	if err != nil {
		unlock()
		if isNotFound(err) {
			return model.Slot{}, ErrNoActiveSlot
		}
		return model.Slot{}, storeErr("get active slot", err)
	}
	slot, changed, err := e.deactivateLocked(ctx, slot, model.ReasonManual)
	unlock()
	if err != nil {
		return model.Slot{}, err
	}
	if !changed {
		return model.Slot{}, ErrNoActiveSlot
	}
	e.finishRevoke(ctx, slot)
	return slot, nil
}

// RevokeForQuota ends a slot whose holder exceeded the ping quota.
// Revoking an already inactive slot is a no-op; the bool reports whether
// this call performed the transition.
func (e *Engine) RevokeForQuota(ctx context.Context, slotID string) (bool, error) {
	return e.revokeByID(ctx, slotID, model.ReasonQuotaViolation)
}

// Expire ends a slot whose expiry has passed.  Like RevokeForQuota it is
// idempotent.
func (e *Engine) Expire(ctx context.Context, slotID string) (bool, error) {
	return e.revokeByID(ctx, slotID, model.ReasonExpired)
}

func (e *Engine) revokeByID(ctx context.Context, slotID string, reason model.RevokeReason) (bool, error) {
	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, storeErr("get slot", err)
	}
	if !slot.Active {
		return false, nil
	}
	unlock, err := e.lockHolder(ctx, slot.HolderID)
	if err != nil {
		return false, err
	}
	slot, changed, err := e.deactivateLocked(ctx, slot, reason)
	unlock()
	if err != nil || !changed {
		return false, err
	}
	e.finishRevoke(ctx, slot)
	return true, nil
}

// deactivateLocked re-reads the slot under the holder lock and flips it
// inactive.  It reports false when another trigger got there first.
func (e *Engine) deactivateLocked(ctx context.Context, slot model.Slot, reason model.RevokeReason) (model.Slot, bool, error) {
	cur, err := e.store.GetSlot(ctx, slot.ID)
	if err != nil {
		if isNotFound(err) {
			return slot, false, nil
		}
		return slot, false, storeErr("get slot", err)
	}
	if !cur.Active {
		return cur, false, nil
	}
	at := e.now()
	changed, err := e.store.DeactivateSlot(ctx, cur.ID, reason, at)
	if err != nil {
		return cur, false, storeErr("deactivate slot", err)
	}
	if !changed {
		return cur, false, nil
	}
	cur.Active = false
	cur.DeactivatedAt = &at
	cur.RevokeReason = reason
	return cur, true, nil
}

// finishRevoke is the single place where a committed deactivation is
// reflected externally.  It runs outside the holder lock and never fails:
// the store is the source of truth and drift is reported for operators.
func (e *Engine) finishRevoke(ctx context.Context, slot model.Slot) {
	ctx = context.WithoutCancel(ctx)
	rep := e.recon.Revoke(ctx, slot.HolderID, slot.ResourceRef, slot.GrantRef, slot.OriginalLabel)

	e.metrics.SlotRevoked(string(slot.RevokeReason))
	ev := e.log.Info()
	if !rep.OK() {
		ev = e.log.Warn().Err(rep.Err())
	}
	ev.Str("slot_id", slot.ID).
		Str("holder_id", slot.HolderID).
		Str("reason", string(slot.RevokeReason)).
		Bool("reconciled", rep.OK()).
		Msg("slot revoked")

	var errs []string
	for _, f := range rep.Failures {
		errs = append(errs, f.Error())
	}
	e.publish(ctx, queue.EventRevoked, slot, errs)
}

// OnBroadcastAttempt is called before a holder's broadcast ping is let
// through.  DecisionAllowed records the ping.  DecisionOverLimit does not
// record it and revokes the slot; the caller must undo the ping itself.
func (e *Engine) OnBroadcastAttempt(ctx context.Context, holderID, resourceRef, messageRef string) (Verdict, error) {
	unlock, err := e.lockHolder(ctx, holderID)
	if err != nil {
		return Verdict{}, err
	}
	slot, err := e.store.GetActiveSlotByHolder(ctx, holderID)
	if err != nil {
		unlock()
		if isNotFound(err) {
			return Verdict{}, ErrNoActiveSlot
		}
		return Verdict{}, storeErr("get active slot", err)
	}
	if resourceRef != "" && resourceRef != slot.ResourceRef {
		unlock()
		return Verdict{}, ErrNoActiveSlot
	}

	now := e.now()
	// A slot past its expiry is not usable even if no sweep has run yet.
	if slot.ExpiredAt(now) {
		slot, changed, err := e.deactivateLocked(ctx, slot, model.ReasonExpired)
		unlock()
		if err != nil {
			return Verdict{}, err
		}
		if changed {
			e.finishRevoke(ctx, slot)
		}
		return Verdict{}, ErrNoActiveSlot
	}

	v, err := e.quota.Evaluate(ctx, slot, now)
	if err != nil {
		unlock()
		return Verdict{}, err
	}

	if v.Decision == DecisionAllowed {
		err := e.store.AppendPingEvent(ctx, model.PingEvent{
			ID:         uuid.NewString(),
			SlotID:     slot.ID,
			HolderID:   holderID,
			UsedAt:     now,
			MessageRef: messageRef,
		})
		unlock()
		if err != nil {
			return Verdict{}, storeErr("append ping event", err)
		}
		v.Used++
		e.metrics.PingDecision(string(DecisionAllowed))
		return v, nil
	}

	slot, changed, err := e.deactivateLocked(ctx, slot, model.ReasonQuotaViolation)
	unlock()
	if err != nil {
		return Verdict{}, err
	}
	e.metrics.PingDecision(string(DecisionOverLimit))
	e.log.Warn().
		Str("slot_id", slot.ID).
		Str("holder_id", holderID).
		Str("message_ref", messageRef).
		Int("used", v.Used).
		Int("quota", v.Quota).
		Msg("ping quota exceeded")
	if changed {
		e.finishRevoke(ctx, slot)
	}
	return v, nil
}

func (e *Engine) publish(ctx context.Context, typ string, slot model.Slot, reconcileErrs []string) {
	if e.events == nil {
		return
	}
	ev := queue.SlotEvent{
		Type:          typ,
		SlotID:        slot.ID,
		HolderID:      slot.HolderID,
		Tier:          slot.Tier,
		ResourceRef:   slot.ResourceRef,
		Reason:        string(slot.RevokeReason),
		ReconcileErrs: reconcileErrs,
		OccurredAt:    e.now().Format(time.RFC3339),
	}
	if slot.ExpiresAt != nil {
		ev.ExpiresAt = slot.ExpiresAt.Format(time.RFC3339)
	}
	// Events are best-effort; the transition has already committed.
	_ = e.events.Publish(context.WithoutCancel(ctx), ev)
}
