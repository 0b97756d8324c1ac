package model

import "time"

// RevokeReason records which trigger ended a slot.  It is carried for
// observability only; every reason revokes the same way.
type RevokeReason string

const (
	ReasonManual         RevokeReason = "manual"
	ReasonQuotaViolation RevokeReason = "quota_violation"
	ReasonExpired        RevokeReason = "expired"
)

// Slot is one entitlement grant.  While Active is true the holder has
// access to ResourceRef through the external grant GrantRef, and the
// resource carries a marked label.  OriginalLabel is kept so the label
// can be restored when the slot ends.
//
// Fields:
//  ID            – opaque identifier.
//  HolderID      – owning holder.
//  Tier          – catalog tier name.
//  ResourceRef   – channel-like resource the slot grants.
//  OriginalLabel – resource label before the grant relabelled it.
//  GrantRef      – external permission grant (role-like identifier).
//  ExpiresAt     – expiry; nil for lifetime tiers.
//  Active        – false once revoked or expired.
//  CreatedAt     – grant time.
//  DeactivatedAt – time of revocation (nil while active).
//  RevokeReason  – trigger that deactivated the slot (empty while active).
type Slot struct {
	ID            string       // slots.id
	HolderID      string       // slots.holder_id
	Tier          string       // slots.tier
	ResourceRef   string       // slots.resource_ref
	OriginalLabel string       // slots.original_label
	GrantRef      string       // slots.grant_ref
	ExpiresAt     *time.Time   // slots.expires_at (nullable)
	Active        bool         // slots.active
	CreatedAt     time.Time    // slots.created_at
	DeactivatedAt *time.Time   // slots.deactivated_at (nullable)
	RevokeReason  RevokeReason // slots.revoke_reason
}

// ExpiredAt reports whether the slot's expiry has been reached at now.
// Lifetime slots never expire.
func (s Slot) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
