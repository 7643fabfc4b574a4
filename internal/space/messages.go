package space

// Сообщения для пользователя; UI показывает State.Message как есть.
const (
	MsgJoined          = "You joined the space."
	MsgAlreadyJoined   = "You are already in this space."
	MsgPendingApproval = "Your request to join is pending approval by the host."
	MsgJoinRejected    = "Your request to join this space was rejected."
	MsgBanned          = "You have been banned from this space."
	MsgSpaceFull       = "This space is full."
	MsgSpaceEnded      = "This space has ended."
	MsgSpaceNotFound   = "Space not found."
	MsgEndingSoon      = "This space will end in less than a minute."
	MsgLeft            = "You left the space."
	MsgRemoved         = "You were removed from this space."

	MsgNotJoined          = "Join the space first."
	MsgCanSpeak           = "You can already speak."
	MsgSpeakSent          = "Your request to speak was sent to the host."
	MsgSpeakGranted       = "You can speak now."
	MsgSpeakPending       = "Your request to speak is pending."
	MsgSpeakRejected      = "Your request to speak was rejected."
	MsgNotAllowedToSpeak  = "You are not allowed to speak in this space."
	MsgMutedByHost        = "You were muted by the host."
	MsgDeviceActionFailed = "Could not apply the device change, try again."
)

// ExitReason says why the session navigated away.
type ExitReason string

const (
	ExitLeft     ExitReason = "left"
	ExitEnded    ExitReason = "ended"
	ExitBanned   ExitReason = "banned"
	ExitRemoved  ExitReason = "removed"
	ExitNotFound ExitReason = "not_found"
)
