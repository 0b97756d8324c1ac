package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Facats/slotwatcherss/internal/tier"
)

// fakeAuthorizer records calls and fails the ones listed in failOn.
type fakeAuthorizer struct {
	mu      sync.Mutex
	labels  map[string]string
	allowed map[string]bool
	grants  map[string]bool
	calls   []string
	failOn  map[string]error
	block   map[string]bool
}

func newFake() *fakeAuthorizer {
	return &fakeAuthorizer{
		labels:  map[string]string{"chan-1": "general"},
		allowed: map[string]bool{},
		grants:  map[string]bool{},
		failOn:  map[string]error{},
		block:   map[string]bool{},
	}
}

func (f *fakeAuthorizer) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err, block := f.failOn[op], f.block[op]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeAuthorizer) ResourceLabel(ctx context.Context, res string) (string, error) {
	if err := f.enter(ctx, "label"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labels[res], nil
}

func (f *fakeAuthorizer) SetResourceLabel(ctx context.Context, res, label string) error {
	if err := f.enter(ctx, "relabel"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[res] = label
	return nil
}

func (f *fakeAuthorizer) AllowHolder(ctx context.Context, res, holder string) error {
	if err := f.enter(ctx, "allow"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed[res+"/"+holder] = true
	return nil
}

func (f *fakeAuthorizer) DisallowHolder(ctx context.Context, res, holder string) error {
	if err := f.enter(ctx, "disallow"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allowed[res+"/"+holder] {
		return ErrGone
	}
	delete(f.allowed, res+"/"+holder)
	return nil
}

func (f *fakeAuthorizer) AssignGrant(ctx context.Context, holder, grant string) error {
	if err := f.enter(ctx, "assign"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[holder+"/"+grant] = true
	return nil
}

func (f *fakeAuthorizer) RemoveGrant(ctx context.Context, holder, grant string) error {
	if err := f.enter(ctx, "unassign"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.grants[holder+"/"+grant] {
		return ErrGone
	}
	delete(f.grants, holder+"/"+grant)
	return nil
}

func newReconciler(f *fakeAuthorizer) *Reconciler {
	return New(f, Options{
		Roles:   map[tier.Name]string{tier.Tier1: "role-t1"},
		Marker:  "slot-",
		Timeout: 50 * time.Millisecond,
	})
}

func TestGrantAppliesAccessRoleAndLabel(t *testing.T) {
	f := newFake()
	r := newReconciler(f)

	g, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	require.NoError(t, err)
	assert.Equal(t, Grant{GrantRef: "role-t1", OriginalLabel: "general"}, g)
	assert.True(t, f.allowed["chan-1/h1"])
	assert.True(t, f.grants["h1/role-t1"])
	assert.Equal(t, "slot-general", f.labels["chan-1"])
}

func TestGrantWithoutRoleSkipsAssign(t *testing.T) {
	f := newFake()
	r := newReconciler(f)

	g, err := r.Grant(context.Background(), "h1", "chan-1", tier.Partnered)
	require.NoError(t, err)
	assert.Empty(t, g.GrantRef)
	assert.NotContains(t, f.calls, "assign")
}

func TestGrantStripsStaleMarker(t *testing.T) {
	f := newFake()
	f.labels["chan-1"] = "slot-general"
	r := newReconciler(f)

	g, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	require.NoError(t, err)
	assert.Equal(t, "general", g.OriginalLabel)
	assert.NotContains(t, f.calls, "relabel", "label already marked")
}

func TestGrantRollsBackOnFailure(t *testing.T) {
	f := newFake()
	f.failOn["relabel"] = errors.New("503 service unavailable")
	r := newReconciler(f)

	_, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, f.allowed, "access rolled back")
	assert.Empty(t, f.grants, "role rolled back")
	assert.Equal(t, "general", f.labels["chan-1"])
	assert.Equal(t, []string{"label", "allow", "assign", "relabel", "unassign", "disallow"}, f.calls)
}

func TestGrantTimeoutIsUnavailable(t *testing.T) {
	f := newFake()
	f.block["allow"] = true
	r := newReconciler(f)

	start := time.Now()
	_, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRevokeRestoresEverything(t *testing.T) {
	f := newFake()
	r := newReconciler(f)
	g, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	require.NoError(t, err)

	rep := r.Revoke(context.Background(), "h1", "chan-1", g.GrantRef, g.OriginalLabel)
	assert.True(t, rep.OK())
	assert.NoError(t, rep.Err())
	assert.Empty(t, f.allowed)
	assert.Empty(t, f.grants)
	assert.Equal(t, "general", f.labels["chan-1"])
}

func TestRevokeTreatsAlreadyRevokedAsSuccess(t *testing.T) {
	f := newFake()
	r := newReconciler(f)

	rep := r.Revoke(context.Background(), "h1", "chan-1", "role-t1", "general")
	assert.True(t, rep.OK())
}

func TestRevokeContinuesPastFailures(t *testing.T) {
	f := newFake()
	r := newReconciler(f)
	g, err := r.Grant(context.Background(), "h1", "chan-1", tier.Tier1)
	require.NoError(t, err)
	f.calls = nil
	f.failOn["relabel"] = errors.New("missing permissions")
	f.block["unassign"] = true

	rep := r.Revoke(context.Background(), "h1", "chan-1", g.GrantRef, g.OriginalLabel)
	require.Len(t, rep.Failures, 2)
	assert.Equal(t, "remove grant", rep.Failures[0].Step)
	assert.ErrorIs(t, rep.Failures[0].Err, ErrUnavailable)
	assert.Equal(t, "restore label", rep.Failures[1].Step)
	assert.Empty(t, f.allowed, "access revoke still happened")
	assert.Equal(t, []string{"unassign", "disallow", "relabel"}, f.calls)
	assert.Error(t, rep.Err())
}
