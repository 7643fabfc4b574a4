package space

import (
	"time"

	"github.com/cwrk-planet/spaces/internal/domain"
)

const (
	JoinWindow   = 5 * time.Minute
	EndingSoon   = time.Minute
	progressFull = 100.0
)

// Derived is everything computed from one Space snapshot and one clock read.
type Derived struct {
	Scheduled  bool
	Ended      bool
	CanJoinNow bool
	Remaining  time.Duration
	UntilStart time.Duration
	Progress   float64 // [0,100]
}

// Derive is pure: same space and now give the same result.
func Derive(sp *domain.Space, now time.Time) Derived {
	if sp == nil {
		return Derived{}
	}
	nowMs := now.UnixMilli()

	d := Derived{
		Scheduled:  nowMs < sp.StartedAt,
		Ended:      sp.Ended(),
		Remaining:  time.Duration(sp.StartedAt+sp.Duration-nowMs) * time.Millisecond,
		UntilStart: time.Duration(sp.StartedAt-nowMs) * time.Millisecond,
	}
	d.Progress = progress(d.Remaining, time.Duration(sp.Duration)*time.Millisecond)
	d.CanJoinNow = d.UntilStart <= JoinWindow && !d.Ended
	return d
}

func progress(remaining, duration time.Duration) float64 {
	if duration <= 0 {
		if remaining <= 0 {
			return progressFull
		}
		return 0
	}
	p := progressFull * (1 - float64(remaining)/float64(duration))
	switch {
	case p < 0:
		return 0
	case p > progressFull:
		return progressFull
	}
	return p
}
