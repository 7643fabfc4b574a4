package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/service"
	httpmw "github.com/cwrk-planet/spaces/internal/transport/http/middleware"
	"github.com/cwrk-planet/spaces/pkg/errs"
	"github.com/cwrk-planet/spaces/pkg/httputil"
)

type Handler struct {
	spaces *service.SpaceService
}

func NewHandler(spaces *service.SpaceService) *Handler {
	return &Handler{spaces: spaces}
}

// decode reads an optional JSON body; an empty body leaves dst untouched.
func decode(r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return nil
}

func caller(r *http.Request) domain.User {
	u, _ := httpmw.UserFromCtx(r.Context())
	return u
}

// reply writes the space or the error. Mutations answer with the record
// after the change.
func reply(w http.ResponseWriter, r *http.Request, msg string, sp *domain.Space, err error) {
	if err != nil {
		httputil.Error(r.Context(), w, msg, err)
		return
	}
	httputil.OK(w, sp)
}

// POST /spaces
func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req CreateSpaceRequest
	if err := decode(r, &req, false); err != nil {
		httputil.Error(r.Context(), w, "invalid json", err)
		return
	}
	sp, err := h.spaces.CreateSpace(r.Context(), caller(r), service.CreateInput{
		Title:      req.Title,
		Capacity:   req.Capacity,
		StartedAt:  req.StartedAt,
		Duration:   req.Duration,
		AskToJoin:  req.AskToJoin,
		AskToSpeak: req.AskToSpeak,
	})
	if err != nil {
		httputil.Error(r.Context(), w, "create space failed", err)
		return
	}
	httputil.Created(w, sp)
}

// GET /spaces?limit=&cursor=
func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	spaces, next, err := h.spaces.ListSpaces(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		httputil.Error(r.Context(), w, "list spaces failed", err)
		return
	}
	if spaces == nil {
		spaces = []domain.Space{}
	}
	httputil.OK(w, SpacesListResponse{Items: spaces, NextCursor: next})
}

// GET /spaces/{id}
func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.GetSpace(r.Context(), chi.URLParam(r, "id"))
	reply(w, r, "get space failed", sp, err)
}

// PATCH /spaces/{id}
func (h *Handler) PatchSpace(w http.ResponseWriter, r *http.Request) {
	var p domain.Patch
	if err := decode(r, &p, true); err != nil {
		httputil.Error(r.Context(), w, "only membership fields can be patched", err)
		return
	}
	sp, err := h.spaces.Patch(r.Context(), caller(r), chi.URLParam(r, "id"), p)
	reply(w, r, "patch space failed", sp, err)
}

// POST /spaces/{id}/join
func (h *Handler) JoinSpace(w http.ResponseWriter, r *http.Request) {
	var req JoinSpaceRequest
	if err := decode(r, &req, false); err != nil {
		httputil.Error(r.Context(), w, "invalid json", err)
		return
	}
	u := caller(r)
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		u.DisplayName = name
	}
	sp, err := h.spaces.Join(r.Context(), u, chi.URLParam(r, "id"), req.AsSpeaker)
	reply(w, r, "join space failed", sp, err)
}

// POST /spaces/{id}/leave
func (h *Handler) LeaveSpace(w http.ResponseWriter, r *http.Request) {
	var req LeaveSpaceRequest
	if err := decode(r, &req, false); err != nil {
		httputil.Error(r.Context(), w, "invalid json", err)
		return
	}
	sp, err := h.spaces.Leave(r.Context(), caller(r), chi.URLParam(r, "id"), req.UserID)
	reply(w, r, "leave space failed", sp, err)
}

// POST /spaces/{id}/speak
func (h *Handler) RequestToSpeak(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.RequestToSpeak(r.Context(), caller(r), chi.URLParam(r, "id"))
	reply(w, r, "request to speak failed", sp, err)
}

// POST /spaces/{id}/join-requests/{userId}/approve
func (h *Handler) ApproveJoin(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decode(r, &req, false); err != nil {
		httputil.Error(r.Context(), w, "invalid json", err)
		return
	}
	sp, err := h.spaces.ApproveJoin(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"), req.AsSpeaker)
	reply(w, r, "approve join failed", sp, err)
}

// POST /spaces/{id}/join-requests/{userId}/reject
func (h *Handler) RejectJoin(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.RejectJoin(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	reply(w, r, "reject join failed", sp, err)
}

// POST /spaces/{id}/speak-requests/{userId}/approve
func (h *Handler) ApproveSpeak(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.ApproveSpeak(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	reply(w, r, "approve speak failed", sp, err)
}

// POST /spaces/{id}/speak-requests/{userId}/reject
func (h *Handler) RejectSpeak(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.RejectSpeak(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	reply(w, r, "reject speak failed", sp, err)
}

// POST /spaces/{id}/participants/{userId}/mute
func (h *Handler) MuteParticipant(w http.ResponseWriter, r *http.Request) {
	req := MuteRequest{Muted: true}
	if err := decode(r, &req, false); err != nil {
		httputil.Error(r.Context(), w, "invalid json", err)
		return
	}
	sp, err := h.spaces.Mute(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"), req.Muted)
	reply(w, r, "mute failed", sp, err)
}

// POST /spaces/{id}/participants/{userId}/ban
func (h *Handler) BanParticipant(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.Ban(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	reply(w, r, "ban failed", sp, err)
}

// POST /spaces/{id}/end
func (h *Handler) EndSpace(w http.ResponseWriter, r *http.Request) {
	sp, err := h.spaces.End(r.Context(), caller(r), chi.URLParam(r, "id"))
	reply(w, r, "end space failed", sp, err)
}
