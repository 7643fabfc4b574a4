package service

import (
	"errors"
	"fmt"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/storage"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

// classify attaches the transport-level sentinel to a domain error while
// keeping the domain error reachable through errors.Is.
func classify(err error) error {
	var kind error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSpaceNotFound):
		kind = errs.ErrNotFound
	case errors.Is(err, domain.ErrBanned):
		kind = errs.ErrPermissionDenied
	case errors.Is(err, domain.ErrSpaceFull),
		errors.Is(err, domain.ErrSpaceEnded),
		errors.Is(err, domain.ErrSpaceExists),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrNotInSpace),
		errors.Is(err, domain.ErrRequestRejected),
		errors.Is(err, domain.ErrNoSuchRequest),
		errors.Is(err, domain.ErrAlreadySpeaker):
		kind = errs.ErrConflict
	case errors.Is(err, domain.ErrInvalidTarget),
		errors.Is(err, domain.ErrInvariant),
		errors.Is(err, storage.ErrInvalidCursor):
		kind = errs.ErrInvalidInput
	default:
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
