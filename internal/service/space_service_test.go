package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/memstore"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

var (
	host  = domain.User{ID: "host", DisplayName: "Host"}
	alice = domain.User{ID: "u1", DisplayName: "Alice"}
	bob   = domain.User{ID: "u2", DisplayName: "Bob"}
	carol = domain.User{ID: "u3", DisplayName: "Carol"}
)

func newTestService(t *testing.T, in CreateInput) (*SpaceService, *domain.Space) {
	t.Helper()
	svc := NewSpaceService(memstore.NewSpaceRepository())
	sp, err := svc.CreateSpace(context.Background(), host, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return svc, sp
}

func TestCreateSpace_Defaults(t *testing.T) {
	_, sp := newTestService(t, CreateInput{Title: "  Weekly sync "})

	if sp.Title != "Weekly sync" || sp.Capacity != defaultCapacity || sp.Duration != defaultDuration.Milliseconds() {
		t.Fatalf("unexpected defaults: %+v", sp)
	}
	if sp.RemoteName != domain.RemoteNameNone || !sp.Active || sp.StartedAt == 0 {
		t.Fatalf("unexpected lifecycle fields: %+v", sp)
	}
	if p, ok := sp.Participant("host"); !ok || p.Role != domain.RoleHost {
		t.Fatal("host is not the first participant")
	}
}

func TestCreateSpace_Validation(t *testing.T) {
	svc := NewSpaceService(memstore.NewSpaceRepository())
	ctx := context.Background()

	if _, err := svc.CreateSpace(ctx, domain.User{}, CreateInput{}); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("anonymous create: %v", err)
	}
	if _, err := svc.CreateSpace(ctx, host, CreateInput{Capacity: maxCapacity + 1}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("capacity: %v", err)
	}
	if _, err := svc.CreateSpace(ctx, host, CreateInput{Duration: -1}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("duration: %v", err)
	}
}

func TestGetSpace_NotFound(t *testing.T) {
	svc := NewSpaceService(memstore.NewSpaceRepository())
	_, err := svc.GetSpace(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) || !errors.Is(err, domain.ErrSpaceNotFound) {
		t.Fatalf("expected both sentinels, got %v", err)
	}
}

func TestPatch_SelfEnqueue(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{AskToJoin: true})
	ctx := context.Background()

	q := []domain.JoinRequest{{ID: "u1", DisplayName: "Alice"}}
	got, err := svc.Patch(ctx, alice, sp.ID, domain.Patch{AskToJoinQueue: &q})
	if err != nil {
		t.Fatalf("self enqueue: %v", err)
	}
	if !got.InJoinQueue("u1") {
		t.Fatal("u1 not queued")
	}

	// устаревшая копия очереди без чужих заявок не должна их удалять
	q2 := []domain.JoinRequest{{ID: "u2", DisplayName: "Bob"}}
	got, err = svc.Patch(ctx, bob, sp.ID, domain.Patch{AskToJoinQueue: &q2})
	if err != nil {
		t.Fatalf("stale enqueue: %v", err)
	}
	if len(got.AskToJoinQueue) != 2 {
		t.Fatalf("queue = %+v", got.AskToJoinQueue)
	}

	q3 := []domain.JoinRequest{{ID: "u3"}}
	if _, err := svc.Patch(ctx, alice, sp.ID, domain.Patch{AskToJoinQueue: &q3}); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("enqueue other: %v", err)
	}

	name := "room"
	if _, err := svc.Patch(ctx, alice, sp.ID, domain.Patch{RemoteName: &name}); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("non-host remoteName: %v", err)
	}
	if got, err := svc.Patch(ctx, host, sp.ID, domain.Patch{RemoteName: &name}); err != nil || got.RemoteName != "room" {
		t.Fatalf("host remoteName: %v", err)
	}
	if _, err := svc.Patch(ctx, host, sp.ID, domain.Patch{}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("empty patch: %v", err)
	}
}

func TestPatch_SelfEnqueueWithHandledEntries(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{AskToJoin: true})
	ctx := context.Background()

	for _, u := range []domain.User{bob, carol} {
		q := []domain.JoinRequest{{ID: u.ID, DisplayName: u.DisplayName}}
		if _, err := svc.Patch(ctx, u, sp.ID, domain.Patch{AskToJoinQueue: &q}); err != nil {
			t.Fatalf("enqueue %s: %v", u.ID, err)
		}
	}
	// alice прочитала очередь до решений хоста
	stale, err := svc.GetSpace(ctx, sp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.RejectJoin(ctx, host, sp.ID, bob.ID); err != nil {
		t.Fatalf("reject bob: %v", err)
	}
	if _, err := svc.ApproveJoin(ctx, host, sp.ID, carol.ID, false); err != nil {
		t.Fatalf("approve carol: %v", err)
	}

	q := append(stale.AskToJoinQueue, domain.JoinRequest{ID: alice.ID, DisplayName: alice.DisplayName})
	got, err := svc.Patch(ctx, alice, sp.ID, domain.Patch{AskToJoinQueue: &q})
	if err != nil {
		t.Fatalf("enqueue with stale queue: %v", err)
	}
	if len(got.AskToJoinQueue) != 1 || got.AskToJoinQueue[0].ID != alice.ID {
		t.Fatalf("queue = %+v", got.AskToJoinQueue)
	}
	if !got.InJoinHistory(bob.ID) || !got.IsApproved(carol.ID) {
		t.Fatal("host decisions were undone")
	}
}

func TestJoin_RequiresApproval(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{AskToJoin: true, AskToSpeak: true})
	ctx := context.Background()

	if _, err := svc.Join(ctx, alice, sp.ID, true); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("unapproved join: %v", err)
	}

	q := []domain.JoinRequest{{ID: "u1", DisplayName: "Alice"}}
	if _, err := svc.Patch(ctx, alice, sp.ID, domain.Patch{AskToJoinQueue: &q}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.ApproveJoin(ctx, alice, sp.ID, "u1", false); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("non-host approve: %v", err)
	}
	got, err := svc.ApproveJoin(ctx, host, sp.ID, "u1", true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p, _ := got.Participant("u1"); p.Role != domain.RoleListener {
		t.Fatalf("moderated speaking must admit a listener, got %s", p.Role)
	}
	if _, err := svc.Join(ctx, alice, sp.ID, false); !errors.Is(err, errs.ErrConflict) || !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("second join: %v", err)
	}
}

func TestJoin_CapacityAndBan(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{Capacity: 2})
	ctx := context.Background()

	if _, err := svc.Join(ctx, alice, sp.ID, false); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := svc.Join(ctx, bob, sp.ID, false); !errors.Is(err, domain.ErrSpaceFull) || !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("full: %v", err)
	}
	if _, err := svc.Ban(ctx, host, sp.ID, "u1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := svc.Join(ctx, alice, sp.ID, false); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("banned join: %v", err)
	}
	if _, err := svc.Ban(ctx, host, sp.ID, "host"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("ban host: %v", err)
	}
}

func TestSpeakWorkflow(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{AskToSpeak: true})
	ctx := context.Background()
	_, _ = svc.Join(ctx, alice, sp.ID, true)
	_, _ = svc.Join(ctx, bob, sp.ID, false)

	if _, err := svc.RequestToSpeak(ctx, alice, sp.ID); err != nil {
		t.Fatalf("request alice: %v", err)
	}
	if _, err := svc.RequestToSpeak(ctx, bob, sp.ID); err != nil {
		t.Fatalf("request bob: %v", err)
	}
	if _, err := svc.ApproveSpeak(ctx, host, sp.ID, "u1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := svc.RejectSpeak(ctx, host, sp.ID, "u2")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !got.CanSpeak("u1") || got.CanSpeak("u2") || !got.IsRejectedSpeaker("u2") {
		t.Fatalf("unexpected roles: %+v", got.Participants)
	}
	if _, err := svc.RequestToSpeak(ctx, bob, sp.ID); !errors.Is(err, domain.ErrRequestRejected) {
		t.Fatalf("rejected re-request: %v", err)
	}
}

func TestMuteAndLeave(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{})
	ctx := context.Background()
	_, _ = svc.Join(ctx, alice, sp.ID, false)
	_, _ = svc.Join(ctx, bob, sp.ID, false)

	got, err := svc.Mute(ctx, host, sp.ID, "u1", true)
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	if p, _ := got.Participant("u1"); !p.Muted {
		t.Fatal("not muted")
	}
	if _, err := svc.Mute(ctx, host, sp.ID, "host", true); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("mute host: %v", err)
	}
	if _, err := svc.Leave(ctx, alice, sp.ID, "u2"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("remove other as non-host: %v", err)
	}
	if _, err := svc.Leave(ctx, host, sp.ID, "u2"); err != nil {
		t.Fatalf("host removes bob: %v", err)
	}
	if got, err := svc.Leave(ctx, alice, sp.ID, ""); err != nil || got.IsParticipant("u1") {
		t.Fatalf("self leave: %v", err)
	}
}

func TestEnd(t *testing.T) {
	svc, sp := newTestService(t, CreateInput{})
	ctx := context.Background()
	_, _ = svc.Join(ctx, alice, sp.ID, false)

	if _, err := svc.End(ctx, alice, sp.ID); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("early end by participant: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	got, err := svc.End(ctx, alice, sp.ID)
	if err != nil {
		t.Fatalf("overdue end: %v", err)
	}
	if got.Active || got.EndedAt == 0 {
		t.Fatalf("not ended: %+v", got)
	}
	first := got.EndedAt

	got, err = svc.End(ctx, host, sp.ID)
	if err != nil || got.EndedAt != first {
		t.Fatalf("second end changed endedAt: %v", err)
	}
	if _, err := svc.Join(ctx, bob, sp.ID, false); !errors.Is(err, domain.ErrSpaceEnded) {
		t.Fatalf("join ended: %v", err)
	}
	if _, err := svc.Leave(ctx, alice, sp.ID, ""); err != nil {
		t.Fatalf("leave after end: %v", err)
	}
}
