package model

// SlotStats is the read-only aggregate served to the dashboard.
type SlotStats struct {
	TotalSlots     int `json:"total_slots"`
	ActiveSlots    int `json:"active_slots"`
	ExpiringSoon   int `json:"expiring_soon"`
	TodayPingCount int `json:"today_ping_count"`
}
