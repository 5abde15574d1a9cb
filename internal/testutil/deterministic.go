package testutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FixedClock returns a preset time from Now. Advance moves it forward.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// SeqIDGenerator produces deterministic ids: id-1, id-2, ...
type SeqIDGenerator struct {
	n atomic.Int64
}

func (g *SeqIDGenerator) New() string {
	return fmt.Sprintf("id-%d", g.n.Add(1))
}

// StaticGroups is a GroupLookup backed by a fixed map, with an optional
// forced error to exercise lookup-failure degradation.
type StaticGroups struct {
	Groups map[string][]string
	Err    error
}

func (s *StaticGroups) GroupsFor(principalID string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Groups[principalID], nil
}
