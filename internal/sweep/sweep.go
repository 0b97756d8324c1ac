// Package sweep periodically expires slots whose time is up.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/logging"
	"github.com/Facats/slotwatcherss/internal/metrics"
	"github.com/Facats/slotwatcherss/internal/model"
)

// Engine is the part of the lifecycle engine a sweep drives.
type Engine interface {
	ExpiredSlots(ctx context.Context) ([]model.Slot, error)
	Expire(ctx context.Context, slotID string) (bool, error)
}

// Result summarizes one sweep.
type Result struct {
	Expired int
	Skipped int // already inactive when reached
	Failed  int
	Errors  []error
	Busy    bool // another sweep was in flight; nothing was done
}

// Err joins the per-slot failures.
func (r Result) Err() error { return errors.Join(r.Errors...) }

// Sweeper owns the scheduled sweep.  At most one sweep runs at a time,
// whether started by the schedule or by RunOnce.
type Sweeper struct {
	engine   Engine
	cron     *cron.Cron
	schedule string
	metrics  *metrics.SlotMetrics
	log      zerolog.Logger

	running sync.Mutex
}

// New returns a Sweeper that runs every interval once started.
func New(engine Engine, interval time.Duration, m *metrics.SlotMetrics) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := log.With().Str("component", "sweep").Logger()
	return &Sweeper{
		engine:   engine,
		schedule: "@every " + interval.String(),
		metrics:  m,
		log:      l,
		cron: cron.New(cron.WithChain(
			cron.Recover(logging.CronLogger{L: l}),
			cron.SkipIfStillRunning(logging.CronLogger{L: l}),
		), cron.WithLogger(logging.CronLogger{L: l})),
	}
}

// Start schedules the sweep.  It returns an error only for a bad interval.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("expiration sweep started")
	return nil
}

// Stop unschedules the sweep.  The returned context is done once an
// in-flight sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce expires every slot past its expiry.  A failure on one slot is
// recorded and the sweep moves on to the next.  If another sweep is
// already running, RunOnce returns immediately with Busy set.  Once
// started, a sweep is not cancelled by ctx.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	if !s.running.TryLock() {
		s.metrics.SweepRun("busy")
		return Result{Busy: true}
	}
	defer s.running.Unlock()
	ctx = context.WithoutCancel(ctx)

	var res Result
	slots, err := s.engine.ExpiredSlots(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list expired slots")
		s.metrics.SweepRun("error")
		res.Errors = append(res.Errors, err)
		return res
	}

	for _, slot := range slots {
		changed, err := s.engine.Expire(ctx, slot.ID)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("expire %s: %w", slot.ID, err))
			s.log.Warn().Err(err).Str("slot_id", slot.ID).Str("holder_id", slot.HolderID).Msg("expire slot failed")
		case changed:
			res.Expired++
		default:
			res.Skipped++
		}
	}

	outcome := "ok"
	if res.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.SweepRun(outcome)
	if len(slots) > 0 {
		s.log.Info().
			Int("expired", res.Expired).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("sweep finished")
	}
	return res
}
