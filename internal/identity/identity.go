// Package identity varies the outbound client fingerprint and dispatch timing.
//
// Every relayed request gets a User-Agent drawn uniformly from a fixed pool and
// is held back by a delay drawn uniformly from [min, max). Both exist to make
// relayed traffic look less automated to the target; they are not reliability
// mechanisms and can be narrowed or disabled through [identity] in the config.
package identity

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"cors-relay/internal/config"
)

// Identity picks outbound user agents and dispatch delays. It holds no
// mutable state and is safe for concurrent use.
type Identity struct {
	agents []string
	min    time.Duration
	max    time.Duration

	// int64N returns a value in [0, n). Defaults to the runtime's
	// goroutine-safe global generator.
	int64N func(n int64) int64
}

// New creates an Identity from the [identity] config section.
func New(cfg *config.Config) *Identity {
	minD, maxD := cfg.Identity.DelayWindow()
	return newIdentity(cfg.Identity.UserAgents, minD, maxD, rand.Int64N)
}

func newIdentity(agents []string, minD, maxD time.Duration, int64N func(int64) int64) *Identity {
	if len(agents) == 0 {
		agents = config.DefaultUserAgents
	}
	return &Identity{
		agents: slices.Clone(agents),
		min:    minD,
		max:    maxD,
		int64N: int64N,
	}
}

// UserAgents returns a copy of the pool.
func (id *Identity) UserAgents() []string {
	return slices.Clone(id.agents)
}

// UserAgent returns one pool entry chosen uniformly at random.
func (id *Identity) UserAgent() string {
	_, ua := id.Pick()
	return ua
}

// Pick is UserAgent that also reports the pool index it drew.
func (id *Identity) Pick() (int, string) {
	i := int(id.int64N(int64(len(id.agents))))
	return i, id.agents[i]
}

// Delay returns a duration uniformly distributed in [min, max).
// When min == max it returns min.
func (id *Identity) Delay() time.Duration {
	span := id.max - id.min
	if span <= 0 {
		return id.min
	}
	return id.min + time.Duration(id.int64N(int64(span)))
}

// Wait blocks for Delay() and returns the duration slept. It returns early
// with ctx.Err() if the context is done first.
func (id *Identity) Wait(ctx context.Context) (time.Duration, error) {
	d := id.Delay()
	if d <= 0 {
		return 0, ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return d, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
