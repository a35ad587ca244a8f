// Package gate provides the process-wide mutual exclusion between the
// transfer engine and the maintenance jobs. Only one of them may touch the
// remote filesystem at a time.
package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Holder names the subsystem requesting the gate.
type Holder string

const (
	HolderTransfer    Holder = "transfer"
	HolderMaintenance Holder = "maintenance"
)

var ErrHeld = errors.New("transfer gate already held")

// Gate is a single-owner lock with a named holder. Acquisition returns a
// Handle whose Release is idempotent, so every exit path can release
// unconditionally.
type Gate struct {
	mu     sync.Mutex
	holder Holder
	held   bool
	freed  chan struct{}
}

func New() *Gate {
	return &Gate{freed: make(chan struct{}, 1)}
}

// Handle releases the gate exactly once; further calls are no-ops.
type Handle struct {
	g    *Gate
	once sync.Once
}

// TryAcquire takes the gate if it is free, otherwise reports the current
// holder via ErrHeld. Used by the maintenance scheduler, which skips a
// trigger instead of waiting.
func (g *Gate) TryAcquire(h Holder) (*Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, ErrHeld
	}
	g.held = true
	g.holder = h
	log.Debug().Str("holder", string(h)).Msg("transfer gate acquired")
	return &Handle{g: g}, nil
}

// Acquire blocks until the gate is free or the context expires.
func (g *Gate) Acquire(ctx context.Context, h Holder) (*Handle, error) {
	for {
		handle, err := g.TryAcquire(h)
		if err == nil {
			return handle, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.freed:
			// retry; another waiter may have won the race
		}
	}
}

// CurrentHolder returns the holder name and whether the gate is held.
func (g *Gate) CurrentHolder() (Holder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder, g.held
}

func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.g.mu.Lock()
		holder := h.g.holder
		h.g.held = false
		h.g.holder = ""
		h.g.mu.Unlock()
		select {
		case h.g.freed <- struct{}{}:
		default:
		}
		log.Debug().Str("holder", string(holder)).Msg("transfer gate released")
	})
}
