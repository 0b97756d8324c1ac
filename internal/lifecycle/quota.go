package lifecycle

import (
	"context"
	"time"

	"github.com/Facats/slotwatcherss/internal/model"
	"github.com/Facats/slotwatcherss/internal/tier"
)

// Decision is the quota evaluator's answer to a broadcast attempt.
type Decision string

const (
	DecisionAllowed   Decision = "allowed"
	DecisionOverLimit Decision = "over_limit"
)

// Verdict explains a Decision.
type Verdict struct {
	Decision    Decision      `json:"decision"`
	Used        int           `json:"used"`
	Quota       int           `json:"quota"`
	Window      time.Duration `json:"-"`
	WindowStart time.Time     `json:"window_start"`
}

// Remaining is how many pings are left in the current window.
func (v Verdict) Remaining() int {
	if v.Used >= v.Quota {
		return 0
	}
	return v.Quota - v.Used
}

// PingCounter is the part of the store the evaluator reads.
type PingCounter interface {
	CountPingEvents(ctx context.Context, slotID string, since time.Time) (int, error)
}

// Evaluator applies a tier's sliding-window quota.  It counts the exact
// pings in the trailing window (now-W, now]; there are no fixed buckets,
// so a window never resets early at a boundary.  It only reads.
type Evaluator struct {
	Counter PingCounter
}

// Evaluate decides whether one more ping fits in the slot's window.
// The attempt being evaluated is not counted; the caller records it only
// when the decision is DecisionAllowed.
func (ev Evaluator) Evaluate(ctx context.Context, slot model.Slot, now time.Time) (Verdict, error) {
	if !slot.Active {
		return Verdict{}, ErrNoActiveSlot
	}
	t, err := tier.Lookup(slot.Tier)
	if err != nil {
		return Verdict{}, err
	}
	start := now.Add(-t.Window)
	used, err := ev.Counter.CountPingEvents(ctx, slot.ID, start)
	if err != nil {
		return Verdict{}, storeErr("count ping events", err)
	}
	v := Verdict{
		Decision:    DecisionAllowed,
		Used:        used,
		Quota:       t.Quota,
		Window:      t.Window,
		WindowStart: start,
	}
	if used >= t.Quota {
		v.Decision = DecisionOverLimit
	}
	return v, nil
}
