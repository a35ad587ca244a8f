package task

import (
	"context"
	"math/rand"
	"time"
)

// pacer produces a uniform-random delay in [min,max] before each remote
// call, so back-to-back requests do not form a fixed cadence the remote
// side could rate-limit on.
type pacer struct {
	min time.Duration
	max time.Duration
	rnd *rand.Rand
}

func newPacer(intervalMin, intervalMax int) *pacer {
	return &pacer{
		min: time.Duration(intervalMin) * time.Second,
		max: time.Duration(intervalMax) * time.Second,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // pacing jitter, not crypto
	}
}

func (p *pacer) next() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(p.rnd.Int63n(int64(p.max-p.min)+1))
}

// Wait sleeps for the next paced delay or returns early when ctx is done.
func (p *pacer) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.next())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
