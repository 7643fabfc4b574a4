package space

import (
	"context"

	"github.com/cwrk-planet/spaces/internal/domain"
)

type moderationBridge interface {
	RoomProvisioner
	MemberModerator
}

// Moderation carries out host actions on other participants and evicts the
// local user when the record says so.
type Moderation struct {
	env    *env
	sync   *Synchronizer
	bridge moderationBridge

	evicted    Latch
	seenJoined bool // only touched from the tick
}

func newModeration(e *env, s *Synchronizer, bridge moderationBridge) *Moderation {
	return &Moderation{env: e, sync: s, bridge: bridge}
}

// target checks the caller is host and the target is someone else.
func (m *Moderation) target(op, id string) error {
	sp, err := m.env.requireHost(op)
	if err != nil {
		return err
	}
	if id == "" || sp.IsHost(id) {
		m.env.log.Warn("moderation target rejected", "op", op, "target", id)
		return domain.ErrInvalidTarget
	}
	return nil
}

func (m *Moderation) Mute(ctx context.Context, id string) error {
	if err := m.target("mute", id); err != nil {
		return err
	}
	m.bridgeCall(ctx, "restrict media", id, func(ctx context.Context) error {
		return m.bridge.RestrictMedia(ctx, id, domain.MediaAudio)
	})
	return m.backendCall(ctx, "mute", id, func(ctx context.Context) error {
		return m.env.backend.MuteParticipant(ctx, m.env.spaceID, id, true)
	})
}

func (m *Moderation) Unmute(ctx context.Context, id string) error {
	if err := m.target("unmute", id); err != nil {
		return err
	}
	return m.backendCall(ctx, "unmute", id, func(ctx context.Context) error {
		return m.env.backend.MuteParticipant(ctx, m.env.spaceID, id, false)
	})
}

func (m *Moderation) Remove(ctx context.Context, id string) error {
	if err := m.target("remove", id); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

func (m *Moderation) remove(ctx context.Context, id string) error {
	m.bridgeCall(ctx, "remove member", id, func(ctx context.Context) error {
		return m.bridge.RemoveMember(ctx, id)
	})
	return m.backendCall(ctx, "remove", id, func(ctx context.Context) error {
		return m.env.backend.LeaveSpace(ctx, m.env.spaceID, id)
	})
}

func (m *Moderation) Ban(ctx context.Context, id string) error {
	if err := m.target("ban", id); err != nil {
		return err
	}
	if err := m.remove(ctx, id); err != nil {
		// участника могло уже не быть в комнате, бан всё равно записываем
		m.env.log.Debug("remove before ban failed", "target", id, "err", err)
	}
	return m.backendCall(ctx, "ban", id, func(ctx context.Context) error {
		return m.env.backend.BanParticipant(ctx, m.env.spaceID, id)
	})
}

// bridgeCall failures are logged only; the record stays authoritative.
func (m *Moderation) bridgeCall(ctx context.Context, op, id string, call func(context.Context) error) {
	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := call(callCtx); err != nil {
		m.env.log.Warn("bridge command failed", "op", op, "target", id, "err", errBridge(op, err))
	}
}

func (m *Moderation) backendCall(ctx context.Context, op, id string, call func(context.Context) error) error {
	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := call(callCtx); err != nil {
		m.env.log.Warn(op+" failed", "target", id, "err", err)
		return err
	}
	m.env.log.Info(op, "target", id)
	m.sync.Refresh(ctx)
	return nil
}

// Observe evicts the local user once it shows up as banned or disappears
// from the participants after having joined. It returns true on eviction.
func (m *Moderation) Observe(ctx context.Context, st State) bool {
	if st.Banned {
		m.evict(ctx, ExitBanned, MsgBanned, true)
		return true
	}
	if st.Joined {
		m.seenJoined = true
		return false
	}
	if m.seenJoined && !st.Ended {
		m.evict(ctx, ExitRemoved, MsgRemoved, false)
		return true
	}
	return false
}

// Removed handles a removal reported by the media engine.
func (m *Moderation) Removed() {
	if m.env.exited() || !m.evicted.Fire() {
		return
	}
	m.env.update(func(s *State) { s.Attached = false })
	m.env.exitWith(ExitRemoved, MsgRemoved)
}

func (m *Moderation) evict(ctx context.Context, reason ExitReason, msg string, leave bool) {
	if m.env.exited() || !m.evicted.Fire() {
		return
	}
	if leave {
		callCtx, cancel := m.env.call(ctx)
		if err := m.env.backend.LeaveSpace(callCtx, m.env.spaceID, m.env.user.ID); err != nil {
			m.env.log.Debug("leave after eviction failed", "err", err)
		}
		cancel()
	}
	m.env.log.Warn("evicted from space", "reason", reason)
	if m.env.exitWith(reason, msg) {
		disconnect(ctx, m.env, m.bridge)
	}
}
