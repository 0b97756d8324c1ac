// Package queue defines the slot lifecycle messages exchanged over the
// message broker, and the publisher and audit consumer for them.
package queue

// SlotQueueName is the durable queue carrying lifecycle events.
const SlotQueueName = "slot.lifecycle"

// Event types.
const (
	EventGranted = "slot.granted"
	EventRevoked = "slot.revoked"
)

// SlotEvent is published after a slot transition commits.  It carries
// enough for downstream consumers to audit or notify without querying
// the store.
type SlotEvent struct {
	Type          string   `json:"type"`
	SlotID        string   `json:"slot_id"`
	HolderID      string   `json:"holder_id"`
	Tier          string   `json:"tier"`
	ResourceRef   string   `json:"resource_ref"`
	ExpiresAt     string   `json:"expires_at,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	ReconcileErrs []string `json:"reconcile_errors,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}
