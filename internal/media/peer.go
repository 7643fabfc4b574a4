package media

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// localPeer holds the outgoing tracks. A disabled track stays negotiated;
// its sender just carries no track.
type localPeer struct {
	pc       *webrtc.PeerConnection
	streamID string

	audioTrack  *webrtc.TrackLocalStaticSample
	videoTrack  *webrtc.TrackLocalStaticSample
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
}

func newLocalPeer(cfg webrtc.Configuration, streamID, camera string) (*localPeer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &localPeer{pc: pc, streamID: streamID}

	p.audioTrack, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if p.audioSender, err = pc.AddTrack(p.audioTrack); err != nil {
		_ = pc.Close()
		return nil, err
	}

	if p.videoTrack, err = cameraTrack(camera, streamID); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if p.videoSender, err = pc.AddTrack(p.videoTrack); err != nil {
		_ = pc.Close()
		return nil, err
	}

	// микрофон и камера выключены до явного включения
	if err := p.setAudio(false); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := p.setVideo(false); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}

func cameraTrack(camera, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	id := "video"
	if camera != "" {
		id = "video-" + camera
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, streamID)
}

func (p *localPeer) setAudio(on bool) error {
	if on {
		return p.audioSender.ReplaceTrack(p.audioTrack)
	}
	return p.audioSender.ReplaceTrack(nil)
}

func (p *localPeer) setVideo(on bool) error {
	if on {
		return p.videoSender.ReplaceTrack(p.videoTrack)
	}
	return p.videoSender.ReplaceTrack(nil)
}

// useCamera swaps the video source; live replaces the track on the wire.
func (p *localPeer) useCamera(camera string, live bool) error {
	track, err := cameraTrack(camera, p.streamID)
	if err != nil {
		return err
	}
	p.videoTrack = track
	if !live {
		return nil
	}
	if err := p.videoSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("switch camera %q: %w", camera, err)
	}
	return nil
}

func (p *localPeer) close() error {
	return p.pc.Close()
}
