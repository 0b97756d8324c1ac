// Package tier holds the fixed slot tier catalog.  Every duration and
// quota decision made by the lifecycle engine is read from this table,
// so lookups are pure and always return the same answer for the same
// name.  Changing the table is a deployment-time change: bump
// CatalogVersion when editing it.
package tier

import (
	"errors"
	"strings"
	"time"
)

// CatalogVersion identifies the revision of the tier table below.
const CatalogVersion = "2024-06"

// ErrUnknownTier is returned by Lookup when the name is not a catalog tier.
var ErrUnknownTier = errors.New("unknown tier")

// Name is one of the closed set of tier names.
type Name string

const (
	Tier1     Name = "tier1"
	Tier2     Name = "tier2"
	Tier3     Name = "tier3"
	Tier4     Name = "tier4"
	Partnered Name = "partnered"
)

// Tier describes the entitlement granted by a tier.
//
// Fields:
//
//	Name     – catalog name.
//	Duration – how long a slot lasts; nil means lifetime.
//	Window   – length of the trailing ping quota window.
//	Quota    – pings allowed inside any window.
type Tier struct {
	Name     Name
	Duration *time.Duration
	Window   time.Duration
	Quota    int
}

// Lifetime reports whether slots of this tier never expire.
func (t Tier) Lifetime() bool { return t.Duration == nil }

// ExpiresAt returns the expiry for a slot granted at the given time, or
// nil for lifetime tiers.
func (t Tier) ExpiresAt(grantedAt time.Time) *time.Time {
	if t.Duration == nil {
		return nil
	}
	exp := grantedAt.Add(*t.Duration).UTC()
	return &exp
}

const day = 24 * time.Hour

func days(n int) *time.Duration {
	d := time.Duration(n) * day
	return &d
}

// catalog is ordered by privilege.  Durations never decrease along the
// order; tier4 and partnered are both lifetime and differ only in quota.
var catalog = []Tier{
	{Name: Tier1, Duration: days(7), Window: 72 * time.Hour, Quota: 1},
	{Name: Tier2, Duration: days(14), Window: 48 * time.Hour, Quota: 1},
	{Name: Tier3, Duration: days(30), Window: day, Quota: 1},
	{Name: Tier4, Duration: nil, Window: day, Quota: 1},
	{Name: Partnered, Duration: nil, Window: day, Quota: 2},
}

// Lookup resolves a tier by name.  Names are matched case-insensitively
// after trimming whitespace.
func Lookup(name string) (Tier, error) {
	n := Name(strings.ToLower(strings.TrimSpace(name)))
	for _, t := range catalog {
		if t.Name == n {
			return copyTier(t), nil
		}
	}
	return Tier{}, ErrUnknownTier
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name Name) Tier {
	t, err := Lookup(string(name))
	if err != nil {
		panic("tier: " + string(name) + " not in catalog")
	}
	return t
}

// All returns the catalog in privilege order.
func All() []Tier {
	out := make([]Tier, len(catalog))
	for i, t := range catalog {
		out[i] = copyTier(t)
	}
	return out
}

// copyTier detaches the Duration pointer so callers cannot mutate the
// shared table.
func copyTier(t Tier) Tier {
	if t.Duration != nil {
		d := *t.Duration
		t.Duration = &d
	}
	return t
}
