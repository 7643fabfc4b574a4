package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

const (
	defaultCapacity = 50
	maxCapacity     = 500
	defaultDuration = time.Hour
	maxDuration     = 24 * time.Hour
)

type SpaceRepository interface {
	Create(ctx context.Context, sp *domain.Space) error
	Get(ctx context.Context, id string) (*domain.Space, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.Space, string, error)
	Update(ctx context.Context, id string, fn func(sp *domain.Space) error) (*domain.Space, error)
}

type CreateInput struct {
	Title      string
	Capacity   int
	StartedAt  int64 // epoch ms, 0 = now
	Duration   int64 // ms, 0 = default
	AskToJoin  bool
	AskToSpeak bool
}

// SpaceService owns every mutation of the space record. Each call is one
// read-modify-write inside the repository transaction.
type SpaceService struct {
	repo SpaceRepository
	now  func() time.Time
}

func NewSpaceService(repo SpaceRepository) *SpaceService {
	return &SpaceService{repo: repo, now: time.Now}
}

// CreateSpace создаёт space; вызывающий становится хостом и первым участником.
func (s *SpaceService) CreateSpace(ctx context.Context, caller domain.User, in CreateInput) (*domain.Space, error) {
	if caller.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	if in.Capacity < 0 || in.Capacity > maxCapacity {
		return nil, fmt.Errorf("%w: capacity must be in [1..%d]", errs.ErrInvalidInput, maxCapacity)
	}
	if in.Duration < 0 || time.Duration(in.Duration)*time.Millisecond > maxDuration {
		return nil, fmt.Errorf("%w: duration must be in (0..%s]", errs.ErrInvalidInput, maxDuration)
	}
	if in.Capacity == 0 {
		in.Capacity = defaultCapacity
	}
	if in.Duration == 0 {
		in.Duration = defaultDuration.Milliseconds()
	}
	now := s.now().UnixMilli()
	if in.StartedAt == 0 {
		in.StartedAt = now
	}

	sp := &domain.Space{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(in.Title),
		Host:       caller.ID,
		Capacity:   in.Capacity,
		StartedAt:  in.StartedAt,
		Duration:   in.Duration,
		Active:     true,
		CreatedAt:  now,
		AskToJoin:  in.AskToJoin,
		AskToSpeak: in.AskToSpeak,
		RemoteName: domain.RemoteNameNone,
		Participants: []domain.Participant{
			{ID: caller.ID, DisplayName: caller.DisplayName, Role: domain.RoleHost},
		},
	}
	if err := s.repo.Create(ctx, sp); err != nil {
		return nil, fmt.Errorf("repo.Create: %w", classify(err))
	}
	slog.Info("space created", "space_id", sp.ID, "host", caller.ID)
	return sp, nil
}

func (s *SpaceService) GetSpace(ctx context.Context, id string) (*domain.Space, error) {
	sp, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return sp, nil
}

// ListSpaces возвращает страницу spaces, новые первыми.
func (s *SpaceService) ListSpaces(ctx context.Context, limit int, cursor string) ([]domain.Space, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	spaces, next, err := s.repo.List(ctx, limit, cursor)
	if err != nil {
		return nil, "", classify(err)
	}
	return spaces, next, nil
}

// Patch applies a membership patch. Any caller may add themselves to the
// join queue; every other patch is host-only.
func (s *SpaceService) Patch(ctx context.Context, caller domain.User, id string, p domain.Patch) (*domain.Space, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", errs.ErrInvalidInput)
	}
	return s.update(ctx, id, func(sp *domain.Space) error {
		if sp.Ended() {
			return domain.ErrSpaceEnded
		}
		if sp.IsHost(caller.ID) {
			return sp.Apply(p)
		}
		if !p.OnlyJoinQueue() {
			return errs.ErrPermissionDenied
		}
		req, err := selfEnqueue(sp, *p.AskToJoinQueue, caller.ID)
		if err != nil {
			return err
		}
		if req == nil {
			return nil
		}
		return sp.EnqueueJoin(*req)
	})
}

// selfEnqueue finds the caller's own new entry in next. The client may hold
// a stale copy of the queue: entries of other users missing from next are
// left alone, and entries the host already handled are ignored.
func selfEnqueue(sp *domain.Space, next []domain.JoinRequest, caller string) (*domain.JoinRequest, error) {
	var added *domain.JoinRequest
	for _, r := range next {
		switch {
		case sp.InJoinQueue(r.ID):
		case r.ID == caller:
			added = &r
		case handled(sp, r.ID):
		default:
			return nil, fmt.Errorf("%w: cannot enqueue another user", errs.ErrPermissionDenied)
		}
	}
	return added, nil
}

// handled reports a join request that already left the queue.
func handled(sp *domain.Space, id string) bool {
	return sp.InJoinHistory(id) || sp.IsApproved(id) || sp.IsParticipant(id) || sp.IsBanned(id)
}

// Join adds the caller. With askToJoin only the host and approved users may
// join directly; speaker seats are granted when speaking is unmoderated.
func (s *SpaceService) Join(ctx context.Context, caller domain.User, id string, asSpeaker bool) (*domain.Space, error) {
	return s.update(ctx, id, func(sp *domain.Space) error {
		switch {
		case sp.Ended():
			return domain.ErrSpaceEnded
		case sp.IsBanned(caller.ID):
			return domain.ErrBanned
		case sp.AskToJoin && !sp.IsHost(caller.ID) && !sp.IsApproved(caller.ID):
			return fmt.Errorf("%w: join requires approval", errs.ErrPermissionDenied)
		}
		if sp.AskToSpeak && !sp.IsHost(caller.ID) {
			asSpeaker = false
		}
		return sp.AddParticipant(caller, asSpeaker)
	})
}

// Leave removes userID. Callers remove themselves; the host may remove
// anyone. Allowed on ended spaces.
func (s *SpaceService) Leave(ctx context.Context, caller domain.User, id, userID string) (*domain.Space, error) {
	if userID == "" {
		userID = caller.ID
	}
	return s.update(ctx, id, func(sp *domain.Space) error {
		if userID != caller.ID && !sp.IsHost(caller.ID) {
			return errs.ErrPermissionDenied
		}
		return sp.RemoveParticipant(userID)
	})
}

func (s *SpaceService) RequestToSpeak(ctx context.Context, caller domain.User, id string) (*domain.Space, error) {
	return s.update(ctx, id, func(sp *domain.Space) error {
		return sp.RequestSpeak(caller.ID)
	})
}

func (s *SpaceService) ApproveJoin(ctx context.Context, caller domain.User, id, userID string, asSpeaker bool) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		return sp.ApproveJoin(userID, asSpeaker && !sp.AskToSpeak)
	})
}

func (s *SpaceService) RejectJoin(ctx context.Context, caller domain.User, id, userID string) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		return sp.RejectJoin(userID)
	})
}

func (s *SpaceService) ApproveSpeak(ctx context.Context, caller domain.User, id, userID string) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		return sp.ApproveSpeak(userID)
	})
}

func (s *SpaceService) RejectSpeak(ctx context.Context, caller domain.User, id, userID string) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		return sp.RejectSpeak(userID)
	})
}

func (s *SpaceService) Mute(ctx context.Context, caller domain.User, id, userID string, muted bool) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		if sp.IsHost(userID) {
			return domain.ErrInvalidTarget
		}
		return sp.SetMuted(userID, muted)
	})
}

func (s *SpaceService) Ban(ctx context.Context, caller domain.User, id, userID string) (*domain.Space, error) {
	return s.hostUpdate(ctx, caller, id, func(sp *domain.Space) error {
		return sp.Ban(userID)
	})
}

// End terminates the space. The host may end it any time; once the
// scheduled time is over any participant's client may end it. Ending an
// ended space is a no-op.
func (s *SpaceService) End(ctx context.Context, caller domain.User, id string) (*domain.Space, error) {
	now := s.now()
	return s.update(ctx, id, func(sp *domain.Space) error {
		if sp.Ended() {
			return nil
		}
		overdue := !now.Before(sp.EndTime())
		if !sp.IsHost(caller.ID) && !overdue {
			return errs.ErrPermissionDenied
		}
		sp.End(now)
		slog.Info("space ended", "space_id", sp.ID, "by", caller.ID, "overdue", overdue)
		return nil
	})
}

func (s *SpaceService) hostUpdate(ctx context.Context, caller domain.User, id string, fn func(sp *domain.Space) error) (*domain.Space, error) {
	return s.update(ctx, id, func(sp *domain.Space) error {
		if !sp.IsHost(caller.ID) {
			return errs.ErrPermissionDenied
		}
		if sp.Ended() {
			return domain.ErrSpaceEnded
		}
		return fn(sp)
	})
}

func (s *SpaceService) update(ctx context.Context, id string, fn func(sp *domain.Space) error) (*domain.Space, error) {
	sp, err := s.repo.Update(ctx, id, func(sp *domain.Space) error {
		if err := fn(sp); err != nil {
			return err
		}
		return sp.Validate()
	})
	if err != nil {
		return nil, classify(err)
	}
	return sp, nil
}
