package space

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
	"github.com/cwrk-planet/spaces/pkg/logger"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultCallTimeout = 10 * time.Second
)

type Options struct {
	SpaceID     string
	User        domain.User
	Backend     Backend
	Bridge      MediaBridge
	Logger      *slog.Logger
	Interval    time.Duration
	CallTimeout time.Duration
	Now         func() time.Time
}

// Session is one user in one space. It owns the local state and runs the
// tick: fetch, diff, derive, then side effects.
type Session struct {
	env      *env
	bridge   MediaBridge
	interval time.Duration
	tracer   trace.Tracer

	sync       *Synchronizer
	membership *Membership
	requests   *RequestQueue
	lifecycle  *LifecycleTimer
	moderation *Moderation

	tickMu sync.Mutex
}

func New(opts Options) (*Session, error) {
	switch {
	case opts.SpaceID == "":
		return nil, fmt.Errorf("%w: space id is required", errs.ErrInvalidInput)
	case opts.User.ID == "":
		return nil, fmt.Errorf("%w: user id is required", errs.ErrInvalidInput)
	case opts.Backend == nil || opts.Bridge == nil:
		return nil, fmt.Errorf("%w: backend and bridge are required", errs.ErrInvalidInput)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.ForSession(opts.SpaceID, opts.User.ID)
	}

	e := newEnv(opts.SpaceID, opts.User, opts.Backend, log, opts.Now, opts.CallTimeout)
	s := &Session{
		env:      e,
		bridge:   opts.Bridge,
		interval: opts.Interval,
		tracer:   otel.Tracer("github.com/cwrk-planet/spaces/internal/space"),
	}
	s.sync = newSynchronizer(e)
	s.membership = newMembership(e, s.sync, opts.Bridge)
	s.requests = newRequestQueue(e, s.sync)
	s.lifecycle = newLifecycleTimer(e, s.sync, opts.Bridge)
	s.moderation = newModeration(e, s.sync, opts.Bridge)

	e.state.Media = opts.Bridge.Snapshot()
	opts.Bridge.OnUpdate(s.onBridge)

	return s, nil
}

// Run ticks until ctx is cancelled, the session navigates away or Close is
// called. The first tick runs immediately.
func (s *Session) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.env.done:
			return nil
		case <-t.C:
			if !s.env.active.Load() {
				return nil
			}
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass. Errors are logged; nothing escapes.
func (s *Session) Tick(ctx context.Context) {
	if s.env.exited() || !s.env.active.Load() {
		return
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.env.exited() {
		return
	}

	ctx, span := s.tracer.Start(ctx, "space.tick", trace.WithAttributes(
		attribute.String("space.id", s.env.spaceID),
		attribute.String("user.id", s.env.user.ID),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			s.env.log.Error("tick panic", "panic", r)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	if _, err := s.sync.Sync(ctx); err != nil {
		span.RecordError(err)
		if errors.Is(err, errs.ErrNotFound) {
			s.notFound(ctx)
			return
		}
	}

	st := s.env.rederive()
	if st.Space == nil {
		return
	}
	if s.moderation.Observe(ctx, st) {
		return
	}
	if s.lifecycle.Evaluate(ctx, st) {
		return
	}
	s.membership.ResolvePending(ctx, st)
	s.membership.DecideProvisioning(ctx, s.env.snapshot())
}

func (s *Session) notFound(ctx context.Context) {
	if s.env.exitWith(ExitNotFound, MsgSpaceNotFound) {
		detach(ctx, s.env, s.bridge)
	}
}

func (s *Session) onBridge(bs domain.BridgeState) {
	var removed bool
	s.env.update(func(st *State) {
		prev := st.Media
		st.Media = bs.Clone()
		if !bs.Connected && prev.Connected {
			st.Attached = false
		}
		if bs.Restricted && !prev.Restricted {
			st.Message = MsgMutedByHost
		}
		removed = bs.Removed && !prev.Removed
	})
	if removed {
		s.moderation.Removed()
	}
}

// Close stops the tick loop. Provisioning already in flight finishes but
// does not touch the state.
func (s *Session) Close() {
	if s.env.active.CompareAndSwap(true, false) {
		s.env.log.Debug("session closed")
	}
}

// Wait blocks until background provisioning has finished.
func (s *Session) Wait() { s.env.inflight.Wait() }

func (s *Session) State() State { return s.env.snapshot() }

// Updates streams state changes; only the latest value is kept for a slow
// reader. The returned func unsubscribes.
func (s *Session) Updates() (<-chan State, func()) { return s.env.subs.subscribe() }

// Done is closed when the session navigates away.
func (s *Session) Done() <-chan struct{} { return s.env.done }

func (s *Session) HandleJoin(ctx context.Context) (JoinResult, error) {
	return s.membership.HandleJoin(ctx)
}

// HandleLeave waits for a running tick so the tick cannot mistake the
// user's own leave for a removal.
func (s *Session) HandleLeave(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.membership.HandleLeave(ctx)
}

func (s *Session) CheckRequestToSpeak(ctx context.Context) (string, error) {
	return s.membership.CheckRequestToSpeak(ctx)
}

func (s *Session) HandleMuteParticipant(ctx context.Context, id string) error {
	return s.moderation.Mute(ctx, id)
}

func (s *Session) HandleUnmuteParticipant(ctx context.Context, id string) error {
	return s.moderation.Unmute(ctx, id)
}

func (s *Session) HandleRemoveParticipant(ctx context.Context, id string) error {
	return s.moderation.Remove(ctx, id)
}

func (s *Session) HandleBanParticipant(ctx context.Context, id string) error {
	return s.moderation.Ban(ctx, id)
}

func (s *Session) HandleApproveJoin(ctx context.Context, id string) error {
	return s.requests.ApproveJoin(ctx, id)
}

func (s *Session) HandleRejectJoin(ctx context.Context, id string) error {
	return s.requests.RejectJoin(ctx, id)
}

func (s *Session) HandleApproveSpeak(ctx context.Context, id string) error {
	return s.requests.ApproveSpeak(ctx, id)
}

func (s *Session) HandleRejectSpeak(ctx context.Context, id string) error {
	return s.requests.RejectSpeak(ctx, id)
}

// HandleEndSpace ends the space for everyone and leaves.
func (s *Session) HandleEndSpace(ctx context.Context) error {
	if _, err := s.env.requireHost("end space"); err != nil {
		return err
	}
	callCtx, cancel := s.env.call(ctx)
	defer cancel()
	if err := s.env.backend.EndSpace(callCtx, s.env.spaceID); err != nil {
		s.env.log.Warn("end space failed", "err", err)
		return err
	}
	s.lifecycle.markTerminated()
	s.sync.Refresh(ctx)
	s.lifecycle.finish(ctx)
	return nil
}

func (s *Session) WaitingRoom(query string) []domain.JoinRequest {
	return FilteredWaitingRoomList(s.env.snapshot().Space, query)
}

func (s *Session) SpeakRequests(query string) []domain.Participant {
	return FilteredRequestList(s.env.snapshot().Space, query)
}

func (s *Session) ToggleAudio(ctx context.Context) error {
	st := s.env.snapshot()
	switch {
	case !st.Joined:
		s.env.say(MsgNotJoined)
		return errPermission("toggle audio")
	case !st.CanSpeak:
		s.env.say(MsgNotAllowedToSpeak)
		return errPermission("toggle audio")
	// Restricted только сообщает о действии хоста, разрешение даёт запись
	case !st.Media.AudioEnabled && st.Muted:
		s.env.say(MsgMutedByHost)
		return errPermission("toggle audio")
	}
	return s.device(ctx, "toggle audio", s.bridge.ToggleAudio)
}

func (s *Session) ToggleVideo(ctx context.Context) error {
	st := s.env.snapshot()
	switch {
	case !st.Joined:
		s.env.say(MsgNotJoined)
		return errPermission("toggle video")
	case !st.CanSpeak:
		s.env.say(MsgNotAllowedToSpeak)
		return errPermission("toggle video")
	}
	return s.device(ctx, "toggle video", s.bridge.ToggleVideo)
}

func (s *Session) SwitchCamera(ctx context.Context) error {
	return s.device(ctx, "switch camera", s.bridge.SwitchCamera)
}

func (s *Session) SelectCamera(ctx context.Context, deviceID string) error {
	return s.device(ctx, "select camera", func(ctx context.Context) error {
		return s.bridge.SelectCamera(ctx, deviceID)
	})
}

func (s *Session) device(ctx context.Context, op string, call func(context.Context) error) error {
	callCtx, cancel := s.env.call(ctx)
	defer cancel()
	if err := call(callCtx); err != nil {
		err = errBridge(op, err)
		s.env.log.Warn("device action failed", "err", err)
		s.env.say(MsgDeviceActionFailed)
		return err
	}
	return nil
}
