package ws

import "encoding/json"

// Типы сообщений медиа-канала. Ответ на запрос несёт тот же id.
const (
	TypeCreateRoom  = "create_room"
	TypeRoomCreated = "room_created"
	TypeJoinRoom    = "join_room"
	TypeJoined      = "joined"
	TypeRestrict    = "restrict"
	TypeRestricted  = "restricted"
	TypeRemove      = "remove"
	TypeRemoved     = "removed"
	TypeLeave       = "leave"
	TypeAck         = "ack"
	TypeError       = "error"

	TypePeerJoined = "peer_joined" // пользователь присоединился
	TypePeerLeft   = "peer_left"   // пользователь покинул
)

type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload; a nil payload leaves the field out.
func NewMessage(typ, id string, payload any) Message {
	m := Message{Type: typ, ID: id}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			m.Payload = b
		}
	}
	return m
}

// Decode unmarshals the payload into dst.
func (m Message) Decode(dst any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, dst)
}

type RoomPayload struct {
	Room   string   `json:"room"`
	Roster []string `json:"roster,omitempty"`
}

type PeerEventPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

type RestrictPayload struct {
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

type RemovePayload struct {
	Target string `json:"target"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
