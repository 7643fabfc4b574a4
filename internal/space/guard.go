package space

import "go.uber.org/atomic"

// Guard admits at most one holder at a time. A second TryAcquire while the
// first is held fails instead of waiting.
type Guard struct {
	held atomic.Bool
}

func (g *Guard) TryAcquire() bool { return g.held.CompareAndSwap(false, true) }
func (g *Guard) Release()         { g.held.Store(false) }
func (g *Guard) Held() bool       { return g.held.Load() }

// Latch fires once per session and never resets.
type Latch struct {
	fired atomic.Bool
}

// Fire reports true only for the first caller.
func (l *Latch) Fire() bool  { return l.fired.CompareAndSwap(false, true) }
func (l *Latch) Fired() bool { return l.fired.Load() }
