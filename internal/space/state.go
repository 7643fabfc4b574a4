package space

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cwrk-planet/spaces/internal/domain"
)

// State is the client-side view of one session. Space is shared between
// snapshots and must be treated as read-only.
type State struct {
	Space       *domain.Space
	CurrentUser domain.User

	Scheduled  bool
	Ended      bool
	CanJoinNow bool
	Progress   float64
	Remaining  time.Duration

	CanSpeak    bool
	Muted       bool
	Banned      bool
	Joined      bool
	JoinPending bool

	Attached     bool
	RoomName     string
	Provisioning bool

	AlertedRemainingTime bool
	Message              string

	Media domain.BridgeState

	Exited     bool
	ExitReason ExitReason
}

// env is the per-session handle shared by every controller. It owns State;
// controllers never keep their own copy.
type env struct {
	spaceID string
	user    domain.User
	backend Backend
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu    sync.Mutex
	state State

	active   atomic.Bool
	inflight sync.WaitGroup
	exit     Latch
	done     chan struct{}
	subs     notifier
}

func newEnv(spaceID string, user domain.User, backend Backend, log *slog.Logger, now func() time.Time, timeout time.Duration) *env {
	e := &env{
		spaceID: spaceID,
		user:    user,
		backend: backend,
		log:     log,
		now:     now,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	e.state.CurrentUser = user
	e.active.Store(true)
	return e
}

func (e *env) snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// update mutates State under the lock and publishes the result.
func (e *env) update(fn func(st *State)) {
	e.mu.Lock()
	fn(&e.state)
	st := e.state
	e.mu.Unlock()

	e.subs.publish(st)
}

func (e *env) say(msg string) {
	e.update(func(st *State) { st.Message = msg })
}

// applySpace installs a freshly fetched record and recomputes the pure
// derived fields from it.
func (e *env) applySpace(sp *domain.Space) {
	now := e.now()
	e.update(func(st *State) {
		st.Space = sp
		deriveInto(st, sp, e.user.ID, now)
	})
}

// rederive refreshes the time-dependent fields against the current mirror.
func (e *env) rederive() State {
	now := e.now()
	e.mu.Lock()
	deriveInto(&e.state, e.state.Space, e.user.ID, now)
	st := e.state
	e.mu.Unlock()
	return st
}

func deriveInto(st *State, sp *domain.Space, userID string, now time.Time) {
	if sp == nil {
		return
	}
	d := Derive(sp, now)
	st.Scheduled = d.Scheduled
	st.Ended = st.Ended || d.Ended
	st.CanJoinNow = d.CanJoinNow && !st.Ended
	st.Progress = d.Progress
	st.Remaining = d.Remaining

	p, joined := sp.Participant(userID)
	st.Joined = joined
	st.CanSpeak = sp.CanSpeak(userID)
	st.Muted = joined && p.Muted
	st.Banned = st.Banned || sp.IsBanned(userID)
}

// call bounds one backend or bridge request.
func (e *env) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// exitWith navigates away exactly once and leaves msg for the UI. It
// reports whether this call was the one that ended the session.
func (e *env) exitWith(reason ExitReason, msg string) bool {
	if !e.exit.Fire() {
		return false
	}
	e.update(func(st *State) {
		if msg != "" {
			st.Message = msg
		}
		st.Exited = true
		st.ExitReason = reason
	})
	close(e.done)
	e.log.Info("session exit", "reason", reason)
	return true
}

func (e *env) exited() bool { return e.exit.Fired() }

// live is false once the session exited or was closed.
func (e *env) live() bool { return e.active.Load() && !e.exited() }

// attach records a provisioned room. It refuses when the session is no
// longer live; the check and the write share the state lock.
func (e *env) attach(room string) bool {
	e.mu.Lock()
	if !e.live() {
		e.mu.Unlock()
		return false
	}
	e.state.Provisioning = false
	e.state.Attached = true
	e.state.RoomName = room
	st := e.state
	e.mu.Unlock()

	e.subs.publish(st)
	return true
}

// requireHost returns the mirror when the local user hosts the space.
func (e *env) requireHost(op string) (*domain.Space, error) {
	sp := e.snapshot().Space
	if sp == nil || !sp.IsHost(e.user.ID) {
		e.log.Warn("host-only action ignored", "op", op)
		return nil, errPermission(op)
	}
	return sp, nil
}

// notifier fans State out to subscribers; a slow subscriber only ever sees
// the latest value.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan State
}

func (n *notifier) subscribe() (<-chan State, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan State)
	}
	id := n.next
	n.next++
	ch := make(chan State, 1)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

func (n *notifier) publish(st State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
