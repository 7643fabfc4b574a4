package domain

import (
	"errors"
	"testing"
	"time"
)

func newSpace() *Space {
	return &Space{
		ID:         "sp1",
		Host:       "host",
		Capacity:   3,
		StartedAt:  time.Now().UnixMilli(),
		Duration:   int64(time.Hour / time.Millisecond),
		Active:     true,
		AskToJoin:  true,
		AskToSpeak: true,
		RemoteName: RemoteNameNone,
		Participants: []Participant{
			{ID: "host", DisplayName: "Host", Role: RoleHost},
		},
	}
}

func TestSpace_EnqueueJoinIsASet(t *testing.T) {
	sp := newSpace()
	req := JoinRequest{ID: "u1", DisplayName: "Alice"}

	if err := sp.EnqueueJoin(req); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := sp.EnqueueJoin(req); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if len(sp.AskToJoinQueue) != 1 {
		t.Fatalf("expected one queue entry, got %d", len(sp.AskToJoinQueue))
	}
}

func TestSpace_ApproveJoinMovesToApprovedAndParticipants(t *testing.T) {
	sp := newSpace()
	_ = sp.EnqueueJoin(JoinRequest{ID: "u1", DisplayName: "Alice"})

	if err := sp.ApproveJoin("u1", false); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if sp.InJoinQueue("u1") {
		t.Fatal("u1 still queued")
	}
	if !sp.IsApproved("u1") {
		t.Fatal("u1 not approved")
	}
	p, ok := sp.Participant("u1")
	if !ok || p.Role != RoleListener || p.DisplayName != "Alice" {
		t.Fatalf("unexpected participant: %+v ok=%v", p, ok)
	}
	if err := sp.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSpace_RejectJoinBlocksResubmission(t *testing.T) {
	sp := newSpace()
	_ = sp.EnqueueJoin(JoinRequest{ID: "u1"})

	if err := sp.RejectJoin("u1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := sp.EnqueueJoin(JoinRequest{ID: "u1"}); !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected, got %v", err)
	}
	if sp.InJoinQueue("u1") {
		t.Fatal("rejected user re-enqueued")
	}
}

func TestSpace_SpeakRequestFlow(t *testing.T) {
	sp := newSpace()
	_ = sp.AddParticipant(User{ID: "u1", DisplayName: "Alice"}, false)
	_ = sp.AddParticipant(User{ID: "u2", DisplayName: "Bob"}, false)

	if err := sp.RequestSpeak("u1"); err != nil {
		t.Fatalf("request u1: %v", err)
	}
	if p, _ := sp.Participant("u1"); p.Role != RoleRequested {
		t.Fatalf("expected requested role, got %s", p.Role)
	}
	if err := sp.ApproveSpeak("u1"); err != nil {
		t.Fatalf("approve u1: %v", err)
	}
	if !sp.CanSpeak("u1") {
		t.Fatal("u1 should speak after approval")
	}

	_ = sp.RequestSpeak("u2")
	if err := sp.RejectSpeak("u2"); err != nil {
		t.Fatalf("reject u2: %v", err)
	}
	if err := sp.RequestSpeak("u2"); !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected, got %v", err)
	}
	if sp.InSpeakQueue("u2") {
		t.Fatal("rejected speaker re-enqueued")
	}
	if err := sp.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSpace_RequestSpeakWithoutModerationPromotes(t *testing.T) {
	sp := newSpace()
	sp.AskToSpeak = false
	_ = sp.AddParticipant(User{ID: "u1"}, false)

	if err := sp.RequestSpeak("u1"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !sp.CanSpeak("u1") || sp.InSpeakQueue("u1") {
		t.Fatal("expected direct promotion")
	}
}

func TestSpace_AddParticipantGuards(t *testing.T) {
	tests := []struct {
		name string
		prep func(sp *Space)
		want error
	}{
		{"full", func(sp *Space) {
			_ = sp.AddParticipant(User{ID: "a"}, false)
			_ = sp.AddParticipant(User{ID: "b"}, false)
		}, ErrSpaceFull},
		{"banned", func(sp *Space) { sp.Banned = []string{"u1"} }, ErrBanned},
		{"ended", func(sp *Space) { sp.End(time.Now()) }, ErrSpaceEnded},
		{"already", func(sp *Space) { _ = sp.AddParticipant(User{ID: "u1"}, false) }, ErrAlreadyJoined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := newSpace()
			tc.prep(sp)
			if err := sp.AddParticipant(User{ID: "u1"}, false); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSpace_BanRemovesAndRecords(t *testing.T) {
	sp := newSpace()
	_ = sp.AddParticipant(User{ID: "u1"}, true)

	if err := sp.Ban("u1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if sp.IsParticipant("u1") || !sp.IsBanned("u1") {
		t.Fatalf("unexpected state: participants=%v banned=%v", sp.Participants, sp.Banned)
	}
	if err := sp.Ban("host"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for host, got %v", err)
	}
}

func TestSpace_EndKeepsFirstEndedAt(t *testing.T) {
	sp := newSpace()
	first := time.UnixMilli(1_000)
	sp.End(first)
	sp.End(time.UnixMilli(2_000))

	if sp.Active || sp.EndedAt != 1_000 {
		t.Fatalf("unexpected end state: active=%v endedAt=%d", sp.Active, sp.EndedAt)
	}
}

func TestSpace_ApplyRejectsInvariantBreak(t *testing.T) {
	sp := newSpace()
	queue := []JoinRequest{{ID: "u1"}, {ID: "u1"}}
	approved := []string{"u1"}

	err := sp.Apply(Patch{AskToJoinQueue: &queue, ApprovedToJoin: &approved})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestPatch_OnlyJoinQueue(t *testing.T) {
	q := []JoinRequest{{ID: "u1"}}
	name := "room"
	if !(Patch{AskToJoinQueue: &q}).OnlyJoinQueue() {
		t.Fatal("expected only-join-queue patch")
	}
	if (Patch{AskToJoinQueue: &q, RemoteName: &name}).OnlyJoinQueue() {
		t.Fatal("patch with remoteName is not queue-only")
	}
}

func TestSpace_EqualAndClone(t *testing.T) {
	sp := newSpace()
	cp := sp.Clone()
	if !sp.Equal(cp) {
		t.Fatal("clone should be equal")
	}
	cp.Participants[0].Muted = true
	if sp.Equal(cp) || sp.Participants[0].Muted {
		t.Fatal("clone shares participants with original")
	}
}
