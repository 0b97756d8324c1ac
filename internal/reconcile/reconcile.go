// Package reconcile keeps the external authorization system in line with
// slot state.  Setting access up is all-or-nothing: any failed step undoes
// the steps before it.  Tearing access down is best-effort: every step is
// attempted, resources that are already gone count as done, and failures
// are reported rather than raised.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/metrics"
	"github.com/Facats/slotwatcherss/internal/tier"
)

// ErrUnavailable means the authorization system could not be reached or
// did not answer within the timeout.
var ErrUnavailable = errors.New("authorization unavailable")

// ErrGone is returned by an Authorizer when the thing being removed no
// longer exists.  Teardown treats it as success.
var ErrGone = errors.New("already gone")

// Authorizer is the external authorization collaborator.  Resources are
// channel-like; grants are role-like.
type Authorizer interface {
	ResourceLabel(ctx context.Context, resourceRef string) (string, error)
	SetResourceLabel(ctx context.Context, resourceRef, label string) error
	AllowHolder(ctx context.Context, resourceRef, holderID string) error
	DisallowHolder(ctx context.Context, resourceRef, holderID string) error
	AssignGrant(ctx context.Context, holderID, grantRef string) error
	RemoveGrant(ctx context.Context, holderID, grantRef string) error
}

// Grant is what a successful setup leaves behind: the external grant that
// was assigned and the label to restore on teardown.
type Grant struct {
	GrantRef      string
	OriginalLabel string
}

// StepError is one failed teardown step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string { return e.Step + ": " + e.Err.Error() }

// Report lists teardown steps that failed.  An empty report means the
// external side is fully reconciled.
type Report struct {
	Failures []StepError
}

// OK reports whether every teardown step succeeded.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Err joins the failures, or returns nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Options configure a Reconciler.
type Options struct {
	// Roles maps a tier to the external grant assigned with it.  A tier
	// with no entry gets resource access only.
	Roles map[tier.Name]string
	// Marker is prefixed to a resource's label while it is granted.
	Marker string
	// Timeout bounds every individual call to the Authorizer.
	Timeout time.Duration
	Metrics *metrics.SlotMetrics
}

// Reconciler drives an Authorizer.
type Reconciler struct {
	auth    Authorizer
	roles   map[tier.Name]string
	marker  string
	timeout time.Duration
	metrics *metrics.SlotMetrics
	log     zerolog.Logger
}

// New builds a Reconciler.
func New(auth Authorizer, opts Options) *Reconciler {
	if auth == nil {
		panic("nil authorizer passed to reconcile.New")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	roles := make(map[tier.Name]string, len(opts.Roles))
	for k, v := range opts.Roles {
		roles[k] = v
	}
	return &Reconciler{
		auth:    auth,
		roles:   roles,
		marker:  opts.Marker,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     log.With().Str("component", "reconcile").Logger(),
	}
}

// call runs one Authorizer step under the per-call timeout.
func (r *Reconciler) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(cctx)
}

// MarkedLabel returns the label applied while a resource is granted.
func (r *Reconciler) MarkedLabel(original string) string {
	if r.marker == "" || strings.HasPrefix(original, r.marker) {
		return original
	}
	return r.marker + original
}

// Grant sets up access for holderID on resourceRef.  On any failure the
// completed steps are undone and an error wrapping ErrUnavailable is
// returned.
func (r *Reconciler) Grant(ctx context.Context, holderID, resourceRef string, t tier.Name) (Grant, error) {
	var label string
	if err := r.call(ctx, func(c context.Context) (err error) {
		label, err = r.auth.ResourceLabel(c, resourceRef)
		return err
	}); err != nil {
		return Grant{}, r.grantFailed("read label", err, nil)
	}
	// A leftover marker means an earlier teardown never restored the
	// label; strip it so the restore target is the real original.
	original := label
	if r.marker != "" {
		original = strings.TrimPrefix(label, r.marker)
	}

	var undo []func(context.Context) error

	if err := r.call(ctx, func(c context.Context) error {
		return r.auth.AllowHolder(c, resourceRef, holderID)
	}); err != nil {
		return Grant{}, r.grantFailed("allow holder", err, undo)
	}
	undo = append(undo, func(c context.Context) error { return r.auth.DisallowHolder(c, resourceRef, holderID) })

	grantRef := r.roles[t]
	if grantRef != "" {
		if err := r.call(ctx, func(c context.Context) error {
			return r.auth.AssignGrant(c, holderID, grantRef)
		}); err != nil {
			return Grant{}, r.grantFailed("assign grant", err, undo)
		}
		undo = append(undo, func(c context.Context) error { return r.auth.RemoveGrant(c, holderID, grantRef) })
	}

	if marked := r.MarkedLabel(original); marked != label {
		if err := r.call(ctx, func(c context.Context) error {
			return r.auth.SetResourceLabel(c, resourceRef, marked)
		}); err != nil {
			return Grant{}, r.grantFailed("relabel", err, undo)
		}
	}

	return Grant{GrantRef: grantRef, OriginalLabel: original}, nil
}

// Undo tears down a grant made by Grant.  It is used when the slot that
// the grant was for could not be stored.
func (r *Reconciler) Undo(ctx context.Context, holderID, resourceRef string, g Grant) Report {
	return r.Revoke(ctx, holderID, resourceRef, g.GrantRef, g.OriginalLabel)
}

func (r *Reconciler) grantFailed(step string, err error, undo []func(context.Context) error) error {
	r.metrics.ReconcileFailed("grant")
	// Roll back on a fresh context: the caller's may be what expired.
	ctx := context.Background()
	for i := len(undo) - 1; i >= 0; i-- {
		if uerr := r.call(ctx, undo[i]); uerr != nil && !errors.Is(uerr, ErrGone) {
			r.log.Warn().Err(uerr).Str("step", step).Msg("rollback of partial grant failed")
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, step, err)
}

// Revoke removes holderID's access to resourceRef, removes grantRef, and
// restores originalLabel.  It never fails; problems are logged and
// returned in the Report.
func (r *Reconciler) Revoke(ctx context.Context, holderID, resourceRef, grantRef, originalLabel string) Report {
	var rep Report
	step := func(name string, fn func(context.Context) error) {
		err := r.call(ctx, fn)
		if err == nil || errors.Is(err, ErrGone) {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		r.metrics.ReconcileFailed("revoke")
		rep.Failures = append(rep.Failures, StepError{Step: name, Err: err})
		r.log.Warn().Err(err).
			Str("step", name).
			Str("holder_id", holderID).
			Str("resource_ref", resourceRef).
			Msg("revoke step failed; external state needs operator attention")
	}

	if grantRef != "" {
		step("remove grant", func(c context.Context) error { return r.auth.RemoveGrant(c, holderID, grantRef) })
	}
	step("disallow holder", func(c context.Context) error { return r.auth.DisallowHolder(c, resourceRef, holderID) })
	if originalLabel != "" {
		step("restore label", func(c context.Context) error {
			return r.auth.SetResourceLabel(c, resourceRef, originalLabel)
		})
	}
	return rep
}
