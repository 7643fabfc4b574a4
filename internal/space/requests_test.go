package space

import (
	"testing"

	"github.com/cwrk-planet/spaces/internal/domain"
)

func TestFilteredWaitingRoomList(t *testing.T) {
	sp := &domain.Space{AskToJoinQueue: []domain.JoinRequest{
		{ID: "1", DisplayName: "Alice"},
		{ID: "2", DisplayName: "Élodie"},
		{ID: "3", DisplayName: "Bob"},
	}}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"ALI", []string{"1"}},
		{"éLO", []string{"2"}},
		{"o", []string{"2", "3"}},
		{"zzz", nil},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got := FilteredWaitingRoomList(sp, tc.query)
			if len(got) != len(tc.want) {
				t.Fatalf("got %+v, want ids %v", got, tc.want)
			}
			for i, r := range got {
				if r.ID != tc.want[i] {
					t.Fatalf("got %+v, want ids %v", got, tc.want)
				}
			}
		})
	}
	if len(sp.AskToJoinQueue) != 3 {
		t.Fatal("filter mutated the queue")
	}
}

func TestFilteredRequestList(t *testing.T) {
	sp := &domain.Space{
		Participants: []domain.Participant{
			{ID: "1", DisplayName: "Alice", Role: domain.RoleRequested},
			{ID: "2", DisplayName: "Bob", Role: domain.RoleListener},
		},
		AskToSpeakQueue: []string{"1"},
	}

	if got := FilteredRequestList(sp, "alice"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got := FilteredRequestList(sp, "bob"); len(got) != 0 {
		t.Fatalf("listener without request listed: %+v", got)
	}
	if got := FilteredRequestList(nil, ""); got != nil {
		t.Fatalf("nil space: %+v", got)
	}
}
