package space

import (
	"context"
	"slices"

	"github.com/cwrk-planet/spaces/internal/domain"
)

type JoinOutcome int

const (
	JoinBusy JoinOutcome = iota
	Joined
	JoinPending
	JoinRejected
	JoinBlocked
	JoinAlready
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinBusy:
		return "busy"
	case Joined:
		return "joined"
	case JoinPending:
		return "pending"
	case JoinRejected:
		return "rejected"
	case JoinBlocked:
		return "blocked"
	case JoinAlready:
		return "already"
	default:
		return "unknown"
	}
}

// JoinResult is what HandleJoin tells the UI. Duplicate requests are a
// normal outcome, not an error.
type JoinResult struct {
	Outcome JoinOutcome
	Message string
}

type Provisioning int

const (
	ProvisionSkip Provisioning = iota
	ProvisionWait
	ProvisionCreate
	ProvisionJoin
	ProvisionBusy
)

// Membership decides join, enqueue or block for the local user and who
// creates or attaches to the media room.
type Membership struct {
	env    *env
	sync   *Synchronizer
	bridge RoomProvisioner

	joining    Guard
	pending    Guard
	reconciled Latch
	rejected   Latch
}

func newMembership(e *env, s *Synchronizer, bridge RoomProvisioner) *Membership {
	return &Membership{env: e, sync: s, bridge: bridge}
}

func (m *Membership) HandleJoin(ctx context.Context) (JoinResult, error) {
	if !m.joining.TryAcquire() {
		return JoinResult{Outcome: JoinBusy}, nil
	}
	defer m.joining.Release()

	sp := m.env.snapshot().Space
	if sp == nil {
		m.sync.Refresh(ctx)
		if sp = m.env.snapshot().Space; sp == nil {
			return JoinResult{}, ErrNoSpace
		}
	}
	me := m.env.user

	switch {
	case m.env.snapshot().Ended || sp.Ended():
		return m.result(JoinBlocked, MsgSpaceEnded), nil
	case sp.IsBanned(me.ID):
		return m.result(JoinBlocked, MsgBanned), nil
	case sp.IsParticipant(me.ID):
		return m.result(JoinAlready, MsgAlreadyJoined), nil
	case sp.Full():
		return m.result(JoinBlocked, MsgSpaceFull), nil
	}

	if !sp.AskToJoin || sp.IsHost(me.ID) || sp.IsApproved(me.ID) {
		if err := m.join(ctx, sp); err != nil {
			return JoinResult{}, err
		}
		return m.result(Joined, MsgJoined), nil
	}

	switch {
	case sp.InJoinQueue(me.ID):
		m.env.update(func(st *State) { st.JoinPending = true })
		return m.result(JoinPending, MsgPendingApproval), nil
	case sp.InJoinHistory(me.ID):
		return m.result(JoinRejected, MsgJoinRejected), nil
	}

	queue := append(slices.Clone(sp.AskToJoinQueue), domain.JoinRequest{ID: me.ID, DisplayName: me.DisplayName})
	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := m.env.backend.UpdateSpace(callCtx, m.env.spaceID, domain.Patch{AskToJoinQueue: &queue}); err != nil {
		m.env.log.Warn("enqueue join request failed", "err", err)
		return JoinResult{}, err
	}
	m.env.log.Info("join request enqueued")
	m.env.update(func(st *State) { st.JoinPending = true })
	m.sync.Refresh(ctx)

	return m.result(JoinPending, MsgPendingApproval), nil
}

func (m *Membership) result(o JoinOutcome, msg string) JoinResult {
	m.env.say(msg)
	return JoinResult{Outcome: o, Message: msg}
}

func (m *Membership) join(ctx context.Context, sp *domain.Space) error {
	me := m.env.user
	asSpeaker := !sp.AskToSpeak || sp.IsHost(me.ID)

	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := m.env.backend.JoinSpace(callCtx, m.env.spaceID, me, asSpeaker); err != nil {
		m.env.log.Warn("join space failed", "err", err)
		return err
	}
	m.env.log.Info("joined space", "as_speaker", asSpeaker)
	m.env.update(func(st *State) { st.JoinPending = false })
	m.sync.Refresh(ctx)
	return nil
}

// ResolvePending follows a waiting-room request to its outcome.
func (m *Membership) ResolvePending(ctx context.Context, st State) {
	if !st.JoinPending || st.Space == nil {
		return
	}
	sp := st.Space
	me := m.env.user.ID

	switch {
	case st.Joined:
		m.env.update(func(s *State) {
			s.JoinPending = false
			s.Message = MsgJoined
		})
	case sp.IsApproved(me):
		if sp.Full() || !m.joining.TryAcquire() {
			return
		}
		defer m.joining.Release()
		if err := m.join(ctx, sp); err == nil {
			m.env.say(MsgJoined)
		}
	case sp.InJoinHistory(me):
		m.env.update(func(s *State) { s.JoinPending = false })
		if m.rejected.Fire() {
			m.env.say(MsgJoinRejected)
		}
	}
}

// DecideProvisioning picks create, join or wait for the media room and starts
// the chosen action in the background.
func (m *Membership) DecideProvisioning(ctx context.Context, st State) Provisioning {
	sp := st.Space
	me := m.env.user.ID
	if sp == nil || me == "" || !st.CanJoinNow || st.Ended || st.Attached || !sp.IsParticipant(me) {
		return ProvisionSkip
	}

	decision := ProvisionWait
	switch {
	case sp.IsHost(me) && !sp.Provisioned():
		decision = ProvisionCreate
	case sp.Provisioned():
		decision = ProvisionJoin
	}
	if decision == ProvisionWait {
		return decision
	}

	if !m.pending.TryAcquire() {
		return ProvisionBusy
	}
	m.env.update(func(s *State) { s.Provisioning = true })
	m.env.inflight.Add(1)
	go m.provision(context.WithoutCancel(ctx), decision, sp.RemoteName)

	return decision
}

func (m *Membership) provision(ctx context.Context, decision Provisioning, remote string) {
	defer m.env.inflight.Done()
	defer m.pending.Release()

	callCtx, cancel := m.env.call(ctx)
	defer cancel()

	room := remote
	var err error
	if decision == ProvisionCreate {
		room, err = m.bridge.CreateRoom(callCtx, m.env.spaceID)
	} else {
		err = m.bridge.JoinRoom(callCtx, room)
	}

	if err != nil {
		if !m.env.live() {
			m.env.log.Debug("provisioning failed after teardown", "err", err)
			return
		}
		m.env.log.Warn("media room provisioning failed", "err", errBridge("provision", err))
		m.env.update(func(s *State) { s.Provisioning = false })
		return
	}

	if !m.env.attach(room) {
		// комната пришла после выхода из сессии
		m.env.log.Info("media room obtained after teardown, disconnecting", "room", room)
		dropCtx, dropCancel := m.env.call(ctx)
		defer dropCancel()
		if err := m.bridge.Disconnect(dropCtx); err != nil {
			m.env.log.Debug("late disconnect failed", "err", err)
		}
		return
	}
	m.env.log.Info("attached to media room", "room", room, "created", decision == ProvisionCreate)

	if decision == ProvisionCreate {
		m.reconcileRemoteName(ctx, room)
	}
}

// reconcileRemoteName publishes the created room id, writing only if the
// record disagrees.
func (m *Membership) reconcileRemoteName(ctx context.Context, room string) {
	if m.reconciled.Fired() || !m.env.live() {
		return
	}
	m.sync.Refresh(ctx)
	sp := m.env.snapshot().Space
	switch {
	case !m.env.live() || sp == nil || sp.Ended():
		return
	case sp.RemoteName == room:
		m.reconciled.Fire()
		return
	}

	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := m.env.backend.UpdateSpace(callCtx, m.env.spaceID, domain.Patch{RemoteName: &room}); err != nil {
		m.env.log.Warn("publish room name failed", "err", err)
		return
	}
	m.reconciled.Fire()
	m.sync.Refresh(ctx)
}

// HandleLeave exits the session before the backend sees the leave.
func (m *Membership) HandleLeave(ctx context.Context) {
	first := m.env.exitWith(ExitLeft, MsgLeft)

	callCtx, cancel := m.env.call(ctx)
	if err := m.env.backend.LeaveSpace(callCtx, m.env.spaceID, m.env.user.ID); err != nil {
		m.env.log.Warn("leave space failed", "err", err)
	}
	cancel()

	if first {
		detach(ctx, m.env, m.bridge)
	}
}

func (m *Membership) CheckRequestToSpeak(ctx context.Context) (string, error) {
	sp := m.env.snapshot().Space
	if sp == nil {
		return "", ErrNoSpace
	}
	me := m.env.user.ID

	var msg string
	switch {
	case !sp.IsParticipant(me):
		msg = MsgNotJoined
	case sp.CanSpeak(me):
		msg = MsgCanSpeak
	case sp.IsRejectedSpeaker(me):
		msg = MsgSpeakRejected
	case sp.InSpeakQueue(me):
		msg = MsgSpeakPending
	}
	if msg != "" {
		m.env.say(msg)
		return msg, nil
	}

	callCtx, cancel := m.env.call(ctx)
	defer cancel()
	if err := m.env.backend.RequestToSpeak(callCtx, m.env.spaceID, me); err != nil {
		m.env.log.Warn("request to speak failed", "err", err)
		return "", err
	}
	m.sync.Refresh(ctx)

	msg = MsgSpeakSent
	if !sp.AskToSpeak {
		msg = MsgSpeakGranted
	}
	m.env.say(msg)
	return msg, nil
}
