package domain

import "errors"

var (
	ErrSpaceNotFound   = errors.New("space not found")
	ErrSpaceExists     = errors.New("space already exists")
	ErrSpaceFull       = errors.New("space is full")
	ErrSpaceEnded      = errors.New("space has ended")
	ErrAlreadyJoined   = errors.New("user already joined the space")
	ErrNotInSpace      = errors.New("user not in the space")
	ErrBanned          = errors.New("user is banned from the space")
	ErrRequestRejected = errors.New("request was rejected")
	ErrNoSuchRequest   = errors.New("no pending request for user")
	ErrAlreadySpeaker  = errors.New("user can already speak")
	ErrInvalidTarget   = errors.New("invalid moderation target")
	ErrInvariant       = errors.New("space invariant violated")
)
