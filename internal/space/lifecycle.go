package space

import (
	"context"
)

// LifecycleTimer turns the clock into session events: automatic
// termination, the one-shot "ending soon" notice and the terminal exit.
type LifecycleTimer struct {
	env    *env
	sync   *Synchronizer
	bridge RoomProvisioner

	ending     Guard
	terminated Latch
	endingSoon Latch
}

func newLifecycleTimer(e *env, s *Synchronizer, bridge RoomProvisioner) *LifecycleTimer {
	return &LifecycleTimer{env: e, sync: s, bridge: bridge}
}

// Evaluate runs once per tick against one derived snapshot. It returns true
// when the session reached its terminal state.
func (l *LifecycleTimer) Evaluate(ctx context.Context, st State) bool {
	if st.Space == nil {
		return false
	}

	if st.Remaining < 0 && !st.Ended {
		if !l.terminate(ctx) {
			// следующий тик повторит попытку
			return false
		}
		st.Ended = true
	}

	if st.Ended {
		l.finish(ctx)
		return true
	}

	if st.Remaining >= 0 && st.Remaining < EndingSoon && l.endingSoon.Fire() {
		l.env.update(func(s *State) {
			s.AlertedRemainingTime = true
			s.Message = MsgEndingSoon
		})
		l.env.log.Info("space ending soon", "remaining", st.Remaining)
	}
	return false
}

// terminate ends the space on the backend at most once per session.
func (l *LifecycleTimer) terminate(ctx context.Context) bool {
	if l.terminated.Fired() {
		return true
	}
	if !l.ending.TryAcquire() {
		return false
	}
	defer l.ending.Release()

	callCtx, cancel := l.env.call(ctx)
	defer cancel()
	if err := l.env.backend.EndSpace(callCtx, l.env.spaceID); err != nil {
		l.env.log.Warn("end space failed", "err", err)
		return false
	}
	l.terminated.Fire()
	l.env.log.Info("space time is over, ended")

	l.env.update(func(s *State) { s.Ended = true; s.CanJoinNow = false })
	l.sync.Refresh(ctx)
	return true
}

// markTerminated is used when the host ended the space explicitly.
func (l *LifecycleTimer) markTerminated() { l.terminated.Fire() }

func (l *LifecycleTimer) finish(ctx context.Context) {
	l.env.update(func(s *State) {
		s.Ended = true
		s.CanJoinNow = false
	})
	if l.env.exitWith(ExitEnded, MsgSpaceEnded) {
		detach(ctx, l.env, l.bridge)
	}
}

// detach drops a media room that is attached or still being provisioned.
// It runs after the exit latch fired, so provisioning that completes later
// sees the exit and disconnects by itself.
func detach(ctx context.Context, e *env, bridge RoomProvisioner) {
	if st := e.snapshot(); st.Attached || st.Provisioning {
		disconnect(ctx, e, bridge)
	}
}

// disconnect drops the local media session; failures are only logged.
func disconnect(ctx context.Context, e *env, bridge RoomProvisioner) {
	callCtx, cancel := e.call(ctx)
	defer cancel()
	if err := bridge.Disconnect(callCtx); err != nil {
		e.log.Warn("bridge disconnect failed", "err", err)
	}
	e.update(func(s *State) { s.Attached = false })
}
