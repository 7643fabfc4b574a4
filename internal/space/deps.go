package space

import (
	"context"

	"github.com/cwrk-planet/spaces/internal/domain"
)

// Backend is the CRUD-style API over the shared space record. Missing spaces
// are reported as errs.ErrNotFound, transport failures wrap errs.ErrUpstream.
type Backend interface {
	FetchSpace(ctx context.Context, id string) (*domain.Space, error)
	UpdateSpace(ctx context.Context, id string, patch domain.Patch) error
	JoinSpace(ctx context.Context, id string, user domain.User, asSpeaker bool) error
	LeaveSpace(ctx context.Context, id, userID string) error
	RequestToSpeak(ctx context.Context, id, userID string) error
	ApproveJoinRequest(ctx context.Context, id, userID string, asSpeaker bool) error
	RejectJoinRequest(ctx context.Context, id, userID string) error
	ApproveRequest(ctx context.Context, id, userID string, asSpeaker bool) error
	RejectRequest(ctx context.Context, id, userID string) error
	MuteParticipant(ctx context.Context, id, userID string, muted bool) error
	BanParticipant(ctx context.Context, id, userID string) error
	EndSpace(ctx context.Context, id string) error
}

// RoomProvisioner creates or attaches to the real-time media room.
// CreateRoom leaves the caller attached to the room it created.
type RoomProvisioner interface {
	CreateRoom(ctx context.Context, spaceID string) (string, error)
	JoinRoom(ctx context.Context, room string) error
	Disconnect(ctx context.Context) error
}

// MemberModerator acts on other members of the media room.
type MemberModerator interface {
	RestrictMedia(ctx context.Context, targetID string, kind domain.MediaKind) error
	RemoveMember(ctx context.Context, targetID string) error
}

// DeviceControl drives the local capture devices.
type DeviceControl interface {
	ToggleAudio(ctx context.Context) error
	ToggleVideo(ctx context.Context) error
	SwitchCamera(ctx context.Context) error
	SelectCamera(ctx context.Context, deviceID string) error
}

// MediaBridge is the whole media engine surface the session consumes.
type MediaBridge interface {
	RoomProvisioner
	MemberModerator
	DeviceControl

	Snapshot() domain.BridgeState
	OnUpdate(fn func(domain.BridgeState))
}
