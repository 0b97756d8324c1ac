package tier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownTiers(t *testing.T) {
	cases := []struct {
		name     string
		duration *time.Duration
		window   time.Duration
		quota    int
	}{
		{"tier1", days(7), 72 * time.Hour, 1},
		{"tier2", days(14), 48 * time.Hour, 1},
		{"tier3", days(30), 24 * time.Hour, 1},
		{"tier4", nil, 24 * time.Hour, 1},
		{"partnered", nil, 24 * time.Hour, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lookup(tc.name)
			require.NoError(t, err)
			assert.Equal(t, Name(tc.name), got.Name)
			assert.Equal(t, tc.duration, got.Duration)
			assert.Equal(t, tc.window, got.Window)
			assert.Equal(t, tc.quota, got.Quota)
		})
	}
}

func TestLookupNormalisesName(t *testing.T) {
	got, err := Lookup("  Partnered ")
	require.NoError(t, err)
	assert.Equal(t, Partnered, got.Name)
}

func TestLookupUnknown(t *testing.T) {
	for _, name := range []string{"", "tier5", "gold", "tier 1"} {
		_, err := Lookup(name)
		assert.True(t, errors.Is(err, ErrUnknownTier), "name %q", name)
	}
}

func TestLookupDeterministic(t *testing.T) {
	a, err := Lookup("tier2")
	require.NoError(t, err)
	*a.Duration = time.Minute

	b, err := Lookup("tier2")
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, *b.Duration, "mutating a result must not leak into the catalog")
}

func TestDurationsNonDecreasing(t *testing.T) {
	all := All()
	require.Len(t, all, 5)
	var prev time.Duration
	for _, tr := range all {
		if tr.Duration == nil {
			assert.Contains(t, []Name{Tier4, Partnered}, tr.Name)
			continue
		}
		assert.GreaterOrEqual(t, *tr.Duration, prev, tr.Name)
		prev = *tr.Duration
	}
	assert.Greater(t, MustLookup(Partnered).Quota, MustLookup(Tier4).Quota)
}

func TestExpiresAt(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	exp := MustLookup(Tier1).ExpiresAt(t0)
	require.NotNil(t, exp)
	assert.Equal(t, t0.Add(7*24*time.Hour), *exp)

	assert.Nil(t, MustLookup(Tier4).ExpiresAt(t0))
	assert.Nil(t, MustLookup(Partnered).ExpiresAt(t0))
	assert.True(t, MustLookup(Partnered).Lifetime())
}
