package model

import "time"

// PingEvent records one permitted use of the broadcast notification.
// Events are append-only and are what the quota window counts.
//
// Fields:
//  ID         – opaque identifier.
//  SlotID     – slot the ping was counted against.
//  HolderID   – holder that sent it.
//  UsedAt     – when the ping was observed.
//  MessageRef – originating message, for diagnostics only.
type PingEvent struct {
	ID         string    // ping_events.id
	SlotID     string    // ping_events.slot_id
	HolderID   string    // ping_events.holder_id
	UsedAt     time.Time // ping_events.used_at
	MessageRef string    // ping_events.message_ref
}
