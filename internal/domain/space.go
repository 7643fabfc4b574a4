package domain

import (
	"fmt"
	"reflect"
	"slices"
	"time"
)

// RemoteNameNone marks a space whose media room has not been provisioned yet.
const RemoteNameNone = "none"

type Space struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Host      string `json:"host"`
	Capacity  int    `json:"capacity"`
	StartedAt int64  `json:"startedAt"` // epoch ms
	Duration  int64  `json:"duration"`  // ms
	EndedAt   int64  `json:"endedAt"`   // epoch ms, 0 пока идёт
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"createdAt,omitempty"`

	Participants []Participant `json:"participants"`
	Speakers     []string      `json:"speakers"`
	Listeners    []string      `json:"listeners"`
	Banned       []string      `json:"banned"`

	AskToJoin        bool          `json:"askToJoin"`
	AskToJoinQueue   []JoinRequest `json:"askToJoinQueue"`
	AskToJoinHistory []string      `json:"askToJoinHistory"`
	ApprovedToJoin   []string      `json:"approvedToJoin"`

	AskToSpeak       bool     `json:"askToSpeak"`
	AskToSpeakQueue  []string `json:"askToSpeakQueue"`
	RejectedSpeakers []string `json:"rejectedSpeakers"`

	RemoteName string `json:"remoteName"`
}

func (s *Space) Clone() *Space {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = slices.Clone(s.Participants)
	out.Speakers = slices.Clone(s.Speakers)
	out.Listeners = slices.Clone(s.Listeners)
	out.Banned = slices.Clone(s.Banned)
	out.AskToJoinQueue = slices.Clone(s.AskToJoinQueue)
	out.AskToJoinHistory = slices.Clone(s.AskToJoinHistory)
	out.ApprovedToJoin = slices.Clone(s.ApprovedToJoin)
	out.AskToSpeakQueue = slices.Clone(s.AskToSpeakQueue)
	out.RejectedSpeakers = slices.Clone(s.RejectedSpeakers)
	return &out
}

// Equal is a structural comparison used to deduplicate polled records.
func (s *Space) Equal(o *Space) bool {
	if s == nil || o == nil {
		return s == o
	}
	return reflect.DeepEqual(s, o)
}

func (s *Space) StartTime() time.Time { return time.UnixMilli(s.StartedAt) }

func (s *Space) EndTime() time.Time {
	return time.UnixMilli(s.StartedAt + s.Duration)
}

func (s *Space) Ended() bool { return s.EndedAt != 0 || !s.Active }

// Provisioned reports whether remoteName carries a concrete media room id.
func (s *Space) Provisioned() bool {
	return s.RemoteName != "" && s.RemoteName != RemoteNameNone
}

func (s *Space) IsHost(id string) bool { return id != "" && s.Host == id }

func (s *Space) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *Space) IsParticipant(id string) bool {
	_, ok := s.Participant(id)
	return ok
}

func (s *Space) IsBanned(id string) bool          { return slices.Contains(s.Banned, id) }
func (s *Space) IsApproved(id string) bool        { return slices.Contains(s.ApprovedToJoin, id) }
func (s *Space) InJoinHistory(id string) bool     { return slices.Contains(s.AskToJoinHistory, id) }
func (s *Space) InSpeakQueue(id string) bool      { return slices.Contains(s.AskToSpeakQueue, id) }
func (s *Space) IsRejectedSpeaker(id string) bool { return slices.Contains(s.RejectedSpeakers, id) }

func (s *Space) InJoinQueue(id string) bool {
	return slices.ContainsFunc(s.AskToJoinQueue, func(r JoinRequest) bool { return r.ID == id })
}

// CanSpeak reports whether id is the host or a speaker.
func (s *Space) CanSpeak(id string) bool {
	if s.IsHost(id) {
		return true
	}
	p, ok := s.Participant(id)
	if !ok {
		return false
	}
	return p.CanSpeak()
}

func (s *Space) Full() bool {
	return s.Capacity > 0 && len(s.Participants) >= s.Capacity
}

// --- mutations, applied by the backend inside one storage transaction ---

// AddParticipant joins id to the space. The host always joins as host.
func (s *Space) AddParticipant(u User, asSpeaker bool) error {
	switch {
	case s.Ended():
		return ErrSpaceEnded
	case s.IsBanned(u.ID):
		return ErrBanned
	case s.IsParticipant(u.ID):
		return ErrAlreadyJoined
	case s.Full():
		return ErrSpaceFull
	}

	role := RoleListener
	switch {
	case s.IsHost(u.ID):
		role = RoleHost
	case asSpeaker:
		role = RoleSpeaker
	}
	s.Participants = append(s.Participants, Participant{ID: u.ID, DisplayName: u.DisplayName, Role: role})
	switch role {
	case RoleSpeaker:
		s.Speakers = withID(s.Speakers, u.ID)
	case RoleListener:
		s.Listeners = withID(s.Listeners, u.ID)
	}
	s.AskToJoinQueue = withoutRequest(s.AskToJoinQueue, u.ID)
	return nil
}

func (s *Space) RemoveParticipant(id string) error {
	if !s.IsParticipant(id) {
		return ErrNotInSpace
	}
	s.Participants = slices.DeleteFunc(s.Participants, func(p Participant) bool { return p.ID == id })
	s.Speakers = without(s.Speakers, id)
	s.Listeners = without(s.Listeners, id)
	s.AskToSpeakQueue = without(s.AskToSpeakQueue, id)
	return nil
}

// EnqueueJoin puts a join request into the waiting room. Queue membership is
// a set: enqueueing twice is a no-op.
func (s *Space) EnqueueJoin(r JoinRequest) error {
	switch {
	case s.Ended():
		return ErrSpaceEnded
	case s.IsBanned(r.ID):
		return ErrBanned
	case s.IsParticipant(r.ID), s.IsApproved(r.ID):
		return ErrAlreadyJoined
	case s.InJoinHistory(r.ID):
		return ErrRequestRejected
	case s.InJoinQueue(r.ID):
		return nil
	}
	s.AskToJoinQueue = append(s.AskToJoinQueue, r)
	return nil
}

func (s *Space) ApproveJoin(id string, asSpeaker bool) error {
	req, ok := s.joinRequest(id)
	if !ok {
		return ErrNoSuchRequest
	}
	s.AskToJoinQueue = withoutRequest(s.AskToJoinQueue, id)
	s.ApprovedToJoin = withID(s.ApprovedToJoin, id)

	err := s.AddParticipant(User{ID: req.ID, DisplayName: req.DisplayName}, asSpeaker)
	if err != nil && err != ErrAlreadyJoined && err != ErrSpaceFull {
		return err
	}
	// при переполнении пользователь остаётся одобренным и зайдёт сам, когда освободится место
	return nil
}

func (s *Space) RejectJoin(id string) error {
	if !s.InJoinQueue(id) {
		return ErrNoSuchRequest
	}
	s.AskToJoinQueue = withoutRequest(s.AskToJoinQueue, id)
	s.AskToJoinHistory = withID(s.AskToJoinHistory, id)
	return nil
}

// RequestSpeak moves a listener to the speak queue, or straight to speaker
// when speaking is not moderated.
func (s *Space) RequestSpeak(id string) error {
	p, ok := s.Participant(id)
	switch {
	case s.Ended():
		return ErrSpaceEnded
	case !ok:
		return ErrNotInSpace
	case p.CanSpeak():
		return ErrAlreadySpeaker
	case s.IsRejectedSpeaker(id):
		return ErrRequestRejected
	case s.InSpeakQueue(id):
		return nil
	}
	if !s.AskToSpeak {
		s.promote(id)
		return nil
	}
	s.AskToSpeakQueue = append(s.AskToSpeakQueue, id)
	s.setRole(id, RoleRequested)
	return nil
}

func (s *Space) ApproveSpeak(id string) error {
	if !s.InSpeakQueue(id) {
		return ErrNoSuchRequest
	}
	s.AskToSpeakQueue = without(s.AskToSpeakQueue, id)
	s.promote(id)
	return nil
}

// RejectSpeak is terminal for the session: the id stays in rejectedSpeakers.
func (s *Space) RejectSpeak(id string) error {
	if !s.InSpeakQueue(id) {
		return ErrNoSuchRequest
	}
	s.AskToSpeakQueue = without(s.AskToSpeakQueue, id)
	s.RejectedSpeakers = withID(s.RejectedSpeakers, id)
	s.setRole(id, RoleListener)
	return nil
}

func (s *Space) SetMuted(id string, muted bool) error {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			s.Participants[i].Muted = muted
			return nil
		}
	}
	return ErrNotInSpace
}

func (s *Space) Ban(id string) error {
	if s.IsHost(id) || id == "" {
		return ErrInvalidTarget
	}
	_ = s.RemoveParticipant(id)
	s.AskToJoinQueue = withoutRequest(s.AskToJoinQueue, id)
	s.ApprovedToJoin = without(s.ApprovedToJoin, id)
	s.Banned = withID(s.Banned, id)
	return nil
}

// End terminates the space. Calling it on an ended space keeps the first
// endedAt.
func (s *Space) End(now time.Time) {
	s.Active = false
	if s.EndedAt == 0 {
		s.EndedAt = now.UnixMilli()
	}
}

// Validate checks the membership invariants.
func (s *Space) Validate() error {
	if !s.Active && s.EndedAt == 0 {
		return fmt.Errorf("%w: inactive space without endedAt", ErrInvariant)
	}
	for _, r := range s.AskToJoinQueue {
		if s.IsApproved(r.ID) {
			return fmt.Errorf("%w: %s both queued and approved", ErrInvariant, r.ID)
		}
	}
	for _, id := range s.AskToSpeakQueue {
		if s.IsRejectedSpeaker(id) {
			return fmt.Errorf("%w: %s both queued and rejected", ErrInvariant, id)
		}
	}
	for _, p := range s.Participants {
		if p.Role != RoleSpeaker {
			continue
		}
		if s.InSpeakQueue(p.ID) || s.IsRejectedSpeaker(p.ID) {
			return fmt.Errorf("%w: speaker %s still queued or rejected", ErrInvariant, p.ID)
		}
	}
	return nil
}

func (s *Space) joinRequest(id string) (JoinRequest, bool) {
	for _, r := range s.AskToJoinQueue {
		if r.ID == id {
			return r, true
		}
	}
	return JoinRequest{}, false
}

func (s *Space) promote(id string) {
	s.setRole(id, RoleSpeaker)
	s.Speakers = withID(s.Speakers, id)
	s.Listeners = without(s.Listeners, id)
}

func (s *Space) setRole(id string, role Role) {
	for i := range s.Participants {
		if s.Participants[i].ID == id && s.Participants[i].Role != RoleHost {
			s.Participants[i].Role = role
		}
	}
	if role == RoleListener {
		s.Speakers = without(s.Speakers, id)
		s.Listeners = withID(s.Listeners, id)
	}
}

func withID(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func without(list []string, id string) []string {
	return slices.DeleteFunc(list, func(v string) bool { return v == id })
}

func withoutRequest(list []JoinRequest, id string) []JoinRequest {
	return slices.DeleteFunc(list, func(r JoinRequest) bool { return r.ID == id })
}
