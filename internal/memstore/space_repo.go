package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/storage"
)

// SpaceRepository keeps spaces in process memory. Update holds the lock for
// the whole read-modify-write, so concurrent mutations serialize.
type SpaceRepository struct {
	mu     sync.Mutex
	spaces map[string]*domain.Space
}

func NewSpaceRepository() *SpaceRepository {
	return &SpaceRepository{spaces: make(map[string]*domain.Space)}
}

func (r *SpaceRepository) Create(_ context.Context, sp *domain.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spaces[sp.ID]; ok {
		return domain.ErrSpaceExists
	}
	r.spaces[sp.ID] = sp.Clone()
	return nil
}

func (r *SpaceRepository) Get(_ context.Context, id string) (*domain.Space, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.spaces[id]
	if !ok {
		return nil, domain.ErrSpaceNotFound
	}
	return sp.Clone(), nil
}

func (r *SpaceRepository) List(_ context.Context, limit int, cursorStr string) ([]domain.Space, string, error) {
	cur, err := storage.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	all := make([]domain.Space, 0, len(r.spaces))
	for _, sp := range r.spaces {
		if cur.After(sp.CreatedAt, sp.ID) {
			all = append(all, *sp.Clone())
		}
	}
	r.mu.Unlock()

	slices.SortFunc(all, func(a, b domain.Space) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	var next string
	if n := len(all); n > 0 {
		next = storage.NextCursor(n, limit, all[n-1].CreatedAt, all[n-1].ID)
	}
	return all, next, nil
}

func (r *SpaceRepository) Update(_ context.Context, id string, fn func(sp *domain.Space) error) (*domain.Space, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.spaces[id]
	if !ok {
		return nil, domain.ErrSpaceNotFound
	}
	cp := sp.Clone()
	if err := fn(cp); err != nil {
		return nil, err
	}
	r.spaces[id] = cp
	return cp.Clone(), nil
}
