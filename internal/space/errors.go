package space

import (
	"errors"
	"fmt"

	"github.com/cwrk-planet/spaces/pkg/errs"
)

var ErrNoSpace = errors.New("space record not loaded yet")

func errPermission(op string) error {
	return fmt.Errorf("%s: %w", op, errs.ErrPermissionDenied)
}

func errBridge(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, errs.ErrBridge, err)
}
