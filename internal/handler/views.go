package handler

import (
	"time"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
	"github.com/Facats/slotwatcherss/internal/model"
)

type slotJSON struct {
	ID            string     `json:"id"`
	HolderID      string     `json:"holder_id"`
	Tier          string     `json:"tier"`
	ResourceRef   string     `json:"resource_ref"`
	GrantRef      string     `json:"grant_ref,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	RevokeReason  string     `json:"revoke_reason,omitempty"`
}

func toSlotJSON(s model.Slot) slotJSON {
	return slotJSON{
		ID:            s.ID,
		HolderID:      s.HolderID,
		Tier:          s.Tier,
		ResourceRef:   s.ResourceRef,
		GrantRef:      s.GrantRef,
		ExpiresAt:     s.ExpiresAt,
		Active:        s.Active,
		CreatedAt:     s.CreatedAt,
		DeactivatedAt: s.DeactivatedAt,
		RevokeReason:  string(s.RevokeReason),
	}
}

type quotaJSON struct {
	Used        int       `json:"used"`
	Quota       int       `json:"quota"`
	Remaining   int       `json:"remaining"`
	Window      string    `json:"window"`
	WindowStart time.Time `json:"window_start"`
}

func toQuotaJSON(v lifecycle.Verdict) quotaJSON {
	return quotaJSON{
		Used:        v.Used,
		Quota:       v.Quota,
		Remaining:   v.Remaining(),
		Window:      v.Window.String(),
		WindowStart: v.WindowStart,
	}
}
