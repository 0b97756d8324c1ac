package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLine(t *testing.T) {
	granted := FormatAuditLine(SlotEvent{
		Type: EventGranted, SlotID: "s1", HolderID: "h1", Tier: "tier4", ResourceRef: "c1",
		OccurredAt: "2024-06-01T00:00:00Z",
	})
	assert.Equal(t,
		"[2024-06-01T00:00:00Z] slot.granted | slot_id=s1 | holder_id=h1 | tier=tier4 | resource=c1 | expires_at=never\n",
		granted)

	revoked := FormatAuditLine(SlotEvent{
		Type: EventRevoked, SlotID: "s1", HolderID: "h1", Tier: "tier1", ResourceRef: "c1",
		ExpiresAt: "2024-06-08T00:00:00Z", Reason: "expired",
		ReconcileErrs: []string{"restore label: missing permissions"},
		OccurredAt:    "2024-06-08T00:00:01Z",
	})
	assert.Contains(t, revoked, "| reason=expired")
	assert.Contains(t, revoked, "| reconcile_errors=[restore label: missing permissions]")
}

func TestHandleMessageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "slots.log")
	a := AuditConsumer{LogPath: path}

	for _, typ := range []string{EventGranted, EventRevoked} {
		body, err := json.Marshal(SlotEvent{Type: typ, SlotID: "s1", OccurredAt: "t"})
		require.NoError(t, err)
		require.NoError(t, a.handleMessage(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(string(data)))
	assert.Error(t, a.handleMessage([]byte("{not json")))
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
