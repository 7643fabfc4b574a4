package space

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

// fakeBackend keeps one space in memory and applies the same domain
// mutations the service does.
type fakeBackend struct {
	mu      sync.Mutex
	sp      *domain.Space
	calls   map[string]int
	failEnd int
}

func newFakeBackend(sp *domain.Space) *fakeBackend {
	return &fakeBackend{sp: sp, calls: map[string]int{}}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) space() *domain.Space {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sp.Clone()
}

// mutate changes the stored record the way another client would.
func (f *fakeBackend) mutate(fn func(sp *domain.Space)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.sp)
}

func (f *fakeBackend) do(name, id string, fn func(sp *domain.Space) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.sp == nil || f.sp.ID != id {
		return errs.ErrNotFound
	}
	cp := f.sp.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	f.sp = cp
	return nil
}

func (f *fakeBackend) FetchSpace(_ context.Context, id string) (*domain.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchSpace"]++
	if f.sp == nil || f.sp.ID != id {
		return nil, errs.ErrNotFound
	}
	return f.sp.Clone(), nil
}

func (f *fakeBackend) UpdateSpace(_ context.Context, id string, p domain.Patch) error {
	return f.do("UpdateSpace", id, func(sp *domain.Space) error { return sp.Apply(p) })
}

func (f *fakeBackend) JoinSpace(_ context.Context, id string, u domain.User, asSpeaker bool) error {
	return f.do("JoinSpace", id, func(sp *domain.Space) error { return sp.AddParticipant(u, asSpeaker) })
}

func (f *fakeBackend) LeaveSpace(_ context.Context, id, userID string) error {
	return f.do("LeaveSpace", id, func(sp *domain.Space) error { return sp.RemoveParticipant(userID) })
}

func (f *fakeBackend) RequestToSpeak(_ context.Context, id, userID string) error {
	return f.do("RequestToSpeak", id, func(sp *domain.Space) error { return sp.RequestSpeak(userID) })
}

func (f *fakeBackend) ApproveJoinRequest(_ context.Context, id, userID string, asSpeaker bool) error {
	return f.do("ApproveJoinRequest", id, func(sp *domain.Space) error { return sp.ApproveJoin(userID, asSpeaker) })
}

func (f *fakeBackend) RejectJoinRequest(_ context.Context, id, userID string) error {
	return f.do("RejectJoinRequest", id, func(sp *domain.Space) error { return sp.RejectJoin(userID) })
}

func (f *fakeBackend) ApproveRequest(_ context.Context, id, userID string, _ bool) error {
	return f.do("ApproveRequest", id, func(sp *domain.Space) error { return sp.ApproveSpeak(userID) })
}

func (f *fakeBackend) RejectRequest(_ context.Context, id, userID string) error {
	return f.do("RejectRequest", id, func(sp *domain.Space) error { return sp.RejectSpeak(userID) })
}

func (f *fakeBackend) MuteParticipant(_ context.Context, id, userID string, muted bool) error {
	return f.do("MuteParticipant", id, func(sp *domain.Space) error { return sp.SetMuted(userID, muted) })
}

func (f *fakeBackend) BanParticipant(_ context.Context, id, userID string) error {
	return f.do("BanParticipant", id, func(sp *domain.Space) error { return sp.Ban(userID) })
}

func (f *fakeBackend) EndSpace(_ context.Context, id string) error {
	return f.do("EndSpace", id, func(sp *domain.Space) error {
		if f.failEnd > 0 {
			f.failEnd--
			return errs.ErrUpstream
		}
		sp.End(time.Now())
		return nil
	})
}

type fakeBridge struct {
	mu     sync.Mutex
	calls  map[string]int
	block  chan struct{}
	devErr error
	fn     func(domain.BridgeState)
	state  domain.BridgeState
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{calls: map[string]int{}}
}

func (b *fakeBridge) hit(name string) {
	b.mu.Lock()
	b.calls[name]++
	b.mu.Unlock()
}

func (b *fakeBridge) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *fakeBridge) emit(st domain.BridgeState) {
	b.mu.Lock()
	b.state = st
	fn := b.fn
	b.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (b *fakeBridge) CreateRoom(_ context.Context, spaceID string) (string, error) {
	b.hit("CreateRoom")
	if b.block != nil {
		<-b.block
	}
	return "room-" + spaceID, nil
}

func (b *fakeBridge) JoinRoom(context.Context, string) error { b.hit("JoinRoom"); return nil }
func (b *fakeBridge) Disconnect(context.Context) error       { b.hit("Disconnect"); return nil }

func (b *fakeBridge) RestrictMedia(context.Context, string, domain.MediaKind) error {
	b.hit("RestrictMedia")
	return nil
}

func (b *fakeBridge) RemoveMember(context.Context, string) error { b.hit("RemoveMember"); return nil }

func (b *fakeBridge) ToggleAudio(context.Context) error  { b.hit("ToggleAudio"); return b.devErr }
func (b *fakeBridge) ToggleVideo(context.Context) error  { b.hit("ToggleVideo"); return b.devErr }
func (b *fakeBridge) SwitchCamera(context.Context) error { b.hit("SwitchCamera"); return b.devErr }

func (b *fakeBridge) SelectCamera(context.Context, string) error {
	b.hit("SelectCamera")
	return b.devErr
}

func (b *fakeBridge) Snapshot() domain.BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

func (b *fakeBridge) OnUpdate(fn func(domain.BridgeState)) {
	b.mu.Lock()
	b.fn = fn
	b.mu.Unlock()
}

var errDevice = errors.New("device busy")

// liveSpace started a moment ago and runs for an hour.
func liveSpace() *domain.Space {
	return &domain.Space{
		ID:         "sp1",
		Host:       "host",
		Capacity:   10,
		StartedAt:  time.Now().Add(-time.Minute).UnixMilli(),
		Duration:   int64(time.Hour / time.Millisecond),
		Active:     true,
		AskToJoin:  true,
		AskToSpeak: true,
		RemoteName: domain.RemoteNameNone,
		Participants: []domain.Participant{
			{ID: "host", DisplayName: "Host", Role: domain.RoleHost},
		},
	}
}

func newTestSession(t *testing.T, b *fakeBackend, br *fakeBridge, user domain.User) *Session {
	t.Helper()
	s, err := New(Options{
		SpaceID:     "sp1",
		User:        user,
		Backend:     b,
		Bridge:      br,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Interval:    10 * time.Millisecond,
		CallTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return s
}

var (
	hostUser  = domain.User{ID: "host", DisplayName: "Host"}
	aliceUser = domain.User{ID: "u1", DisplayName: "Alice"}
)
