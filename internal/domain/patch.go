package domain

// Patch is a partial update of the membership fields of a Space. Scheduling
// fields (startedAt, duration, host, capacity) are not patchable.
type Patch struct {
	Participants     *[]Participant `json:"participants,omitempty"`
	Speakers         *[]string      `json:"speakers,omitempty"`
	Listeners        *[]string      `json:"listeners,omitempty"`
	Banned           *[]string      `json:"banned,omitempty"`
	AskToJoinQueue   *[]JoinRequest `json:"askToJoinQueue,omitempty"`
	AskToJoinHistory *[]string      `json:"askToJoinHistory,omitempty"`
	ApprovedToJoin   *[]string      `json:"approvedToJoin,omitempty"`
	AskToSpeakQueue  *[]string      `json:"askToSpeakQueue,omitempty"`
	RejectedSpeakers *[]string      `json:"rejectedSpeakers,omitempty"`
	RemoteName       *string        `json:"remoteName,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Participants == nil && p.Speakers == nil && p.Listeners == nil &&
		p.Banned == nil && p.AskToJoinQueue == nil && p.AskToJoinHistory == nil &&
		p.ApprovedToJoin == nil && p.AskToSpeakQueue == nil && p.RejectedSpeakers == nil &&
		p.RemoteName == nil
}

// OnlyJoinQueue reports whether the patch touches nothing but askToJoinQueue.
func (p Patch) OnlyJoinQueue() bool {
	q := p.AskToJoinQueue
	p.AskToJoinQueue = nil
	return q != nil && p.Empty()
}

// Apply overwrites every field present in the patch and re-checks the
// invariants.
func (s *Space) Apply(p Patch) error {
	if p.Participants != nil {
		s.Participants = *p.Participants
	}
	if p.Speakers != nil {
		s.Speakers = *p.Speakers
	}
	if p.Listeners != nil {
		s.Listeners = *p.Listeners
	}
	if p.Banned != nil {
		s.Banned = *p.Banned
	}
	if p.AskToJoinQueue != nil {
		s.AskToJoinQueue = dedupRequests(*p.AskToJoinQueue)
	}
	if p.AskToJoinHistory != nil {
		s.AskToJoinHistory = *p.AskToJoinHistory
	}
	if p.ApprovedToJoin != nil {
		s.ApprovedToJoin = *p.ApprovedToJoin
	}
	if p.AskToSpeakQueue != nil {
		s.AskToSpeakQueue = *p.AskToSpeakQueue
	}
	if p.RejectedSpeakers != nil {
		s.RejectedSpeakers = *p.RejectedSpeakers
	}
	if p.RemoteName != nil {
		s.RemoteName = *p.RemoteName
	}
	return s.Validate()
}

func dedupRequests(in []JoinRequest) []JoinRequest {
	seen := make(map[string]struct{}, len(in))
	out := make([]JoinRequest, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
