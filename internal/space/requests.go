package space

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/cwrk-planet/spaces/internal/domain"
)

// RequestQueue is the host side of the join and speak workflows.
type RequestQueue struct {
	env  *env
	sync *Synchronizer
}

func newRequestQueue(e *env, s *Synchronizer) *RequestQueue {
	return &RequestQueue{env: e, sync: s}
}

func (q *RequestQueue) ApproveJoin(ctx context.Context, userID string) error {
	sp, err := q.env.requireHost("approve join")
	if err != nil {
		return err
	}
	if !sp.InJoinQueue(userID) {
		return domain.ErrNoSuchRequest
	}
	return q.persist(ctx, "approve join", userID, func(ctx context.Context) error {
		return q.env.backend.ApproveJoinRequest(ctx, q.env.spaceID, userID, !sp.AskToSpeak)
	})
}

func (q *RequestQueue) RejectJoin(ctx context.Context, userID string) error {
	sp, err := q.env.requireHost("reject join")
	if err != nil {
		return err
	}
	if !sp.InJoinQueue(userID) {
		return domain.ErrNoSuchRequest
	}
	return q.persist(ctx, "reject join", userID, func(ctx context.Context) error {
		return q.env.backend.RejectJoinRequest(ctx, q.env.spaceID, userID)
	})
}

func (q *RequestQueue) ApproveSpeak(ctx context.Context, userID string) error {
	sp, err := q.env.requireHost("approve speak")
	if err != nil {
		return err
	}
	if !sp.InSpeakQueue(userID) {
		return domain.ErrNoSuchRequest
	}
	return q.persist(ctx, "approve speak", userID, func(ctx context.Context) error {
		return q.env.backend.ApproveRequest(ctx, q.env.spaceID, userID, true)
	})
}

func (q *RequestQueue) RejectSpeak(ctx context.Context, userID string) error {
	sp, err := q.env.requireHost("reject speak")
	if err != nil {
		return err
	}
	if !sp.InSpeakQueue(userID) {
		return domain.ErrNoSuchRequest
	}
	return q.persist(ctx, "reject speak", userID, func(ctx context.Context) error {
		return q.env.backend.RejectRequest(ctx, q.env.spaceID, userID)
	})
}

func (q *RequestQueue) persist(ctx context.Context, op, userID string, call func(context.Context) error) error {
	callCtx, cancel := q.env.call(ctx)
	defer cancel()
	if err := call(callCtx); err != nil {
		q.env.log.Warn(op+" failed", "target", userID, "err", err)
		return err
	}
	q.env.log.Info(op, "target", userID)
	q.sync.Refresh(ctx)
	return nil
}

// FilteredWaitingRoomList returns queued join requests whose display name
// contains query, ignoring case.
func FilteredWaitingRoomList(sp *domain.Space, query string) []domain.JoinRequest {
	if sp == nil {
		return nil
	}
	out := make([]domain.JoinRequest, 0, len(sp.AskToJoinQueue))
	for _, r := range sp.AskToJoinQueue {
		if matchName(r.DisplayName, query) {
			out = append(out, r)
		}
	}
	return out
}

// FilteredRequestList returns participants waiting to speak whose display
// name contains query, ignoring case.
func FilteredRequestList(sp *domain.Space, query string) []domain.Participant {
	if sp == nil {
		return nil
	}
	out := make([]domain.Participant, 0, len(sp.AskToSpeakQueue))
	for _, id := range sp.AskToSpeakQueue {
		p, ok := sp.Participant(id)
		if !ok {
			p = domain.Participant{ID: id, Role: domain.RoleRequested}
		}
		if matchName(p.DisplayName, query) {
			out = append(out, p)
		}
	}
	return out
}

// cases.Caser is stateful, so every call folds with its own.
func matchName(name, query string) bool {
	if query == "" {
		return true
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(name), fold.String(query))
}
