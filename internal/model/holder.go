package model

import "time"

// Holder represents a platform identity that has been granted at least
// one slot.  Holders are created on the first grant and refreshed
// whenever the platform reports a new display name or avatar; they are
// never deleted.
//
// Fields:
//  ID          – external platform identity (unique).
//  DisplayName – last observed display name.
//  AvatarURL   – last observed avatar reference.
//  CreatedAt   – first observation.
//  UpdatedAt   – last re-observation.
type Holder struct {
	ID          string    // holders.id
	DisplayName string    // holders.display_name
	AvatarURL   string    // holders.avatar_url
	CreatedAt   time.Time // holders.created_at
	UpdatedAt   time.Time // holders.updated_at
}
