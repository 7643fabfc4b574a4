package domain

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// BridgeState is a read-only snapshot of the media engine as seen by the
// local client.
type BridgeState struct {
	Connected    bool     `json:"connected"`
	Room         string   `json:"room,omitempty"`
	AudioEnabled bool     `json:"audioEnabled"`
	VideoEnabled bool     `json:"videoEnabled"`
	Restricted   bool     `json:"restricted"` // хост заглушил микрофон
	Removed      bool     `json:"removed"`
	CameraID     string   `json:"cameraId,omitempty"`
	Cameras      []string `json:"cameras,omitempty"`
	Roster       []string `json:"roster,omitempty"`
	Alert        string   `json:"alert,omitempty"`
}

func (s BridgeState) Clone() BridgeState {
	out := s
	out.Cameras = append([]string(nil), s.Cameras...)
	out.Roster = append([]string(nil), s.Roster...)
	return out
}
