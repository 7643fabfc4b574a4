package http

import "github.com/cwrk-planet/spaces/internal/domain"

type CreateSpaceRequest struct {
	Title      string `json:"title"`
	Capacity   int    `json:"capacity"`
	StartedAt  int64  `json:"startedAt"`
	Duration   int64  `json:"duration"`
	AskToJoin  bool   `json:"askToJoin"`
	AskToSpeak bool   `json:"askToSpeak"`
}

type SpacesListResponse struct {
	Items      []domain.Space `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type JoinSpaceRequest struct {
	DisplayName string `json:"displayName"`
	AsSpeaker   bool   `json:"asSpeaker"`
}

type LeaveSpaceRequest struct {
	UserID string `json:"userId"`
}

type ApproveRequest struct {
	AsSpeaker bool `json:"asSpeaker"`
}

type MuteRequest struct {
	Muted bool `json:"muted"`
}
