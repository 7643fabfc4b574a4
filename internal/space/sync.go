package space

import (
	"context"
	"errors"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

// Synchronizer polls the space record and republishes it when it changes.
type Synchronizer struct {
	env      *env
	fetching Guard
	last     *domain.Space
}

func newSynchronizer(e *env) *Synchronizer {
	return &Synchronizer{env: e}
}

// Sync fetches the record once. It returns changed=false without a request
// when another fetch is still in flight. On failure the mirror is kept.
func (s *Synchronizer) Sync(ctx context.Context) (changed bool, err error) {
	if !s.fetching.TryAcquire() {
		s.env.log.Debug("sync skipped, fetch in flight")
		return false, nil
	}
	defer s.fetching.Release()

	callCtx, cancel := s.env.call(ctx)
	defer cancel()

	sp, err := s.env.backend.FetchSpace(callCtx, s.env.spaceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, err
		}
		s.env.log.Warn("fetch space failed", "err", err)
		return false, err
	}
	if sp == nil {
		return false, errs.ErrNotFound
	}
	if s.last != nil && s.last.Equal(sp) {
		return false, nil
	}

	s.last = sp.Clone()
	s.env.applySpace(sp)
	return true, nil
}

// Refresh is the re-fetch that follows every local mutation.
func (s *Synchronizer) Refresh(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.env.log.Debug("refresh after mutation failed", "err", err)
	}
}
