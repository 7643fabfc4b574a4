package domain

type Role string

const (
	RoleHost      Role = "host"
	RoleSpeaker   Role = "speaker"
	RoleListener  Role = "listener"
	RoleRequested Role = "requested" // ждёт решения хоста по запросу на слово
)

type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	Muted       bool   `json:"muted"`
}

// CanSpeak reports whether the role is allowed to publish audio.
func (p Participant) CanSpeak() bool {
	return p.Role == RoleHost || p.Role == RoleSpeaker
}

// JoinRequest is one askToJoinQueue entry. The display name travels with the
// id because the requester is not a participant yet.
type JoinRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// User is the local identity a session acts as.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
