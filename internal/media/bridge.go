package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/transport/ws"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

var (
	ErrNotConnected  = errors.New("not connected to a media room")
	ErrNoCamera      = errors.New("no camera to switch to")
	ErrUnknownCamera = errors.New("unknown camera")
	ErrClosed        = errors.New("media channel closed")
)

type Options struct {
	URL     string // ws://host:port of the media hub
	Token   string
	SpaceID string
	UserID  string

	Cameras        []string
	ICEServers     []string
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Bridge drives one user's media session: a control channel to the hub and
// a local peer holding the outgoing tracks.
type Bridge struct {
	opts Options
	log  *slog.Logger
	rtc  webrtc.Configuration

	mu      sync.Mutex
	state   domain.BridgeState
	conn    *websocket.Conn
	peer    *localPeer
	pending map[string]chan ws.Message

	writeMu sync.Mutex

	lmu       sync.Mutex
	listeners []func(domain.BridgeState)
}

func New(opts Options) (*Bridge, error) {
	if opts.URL == "" || opts.SpaceID == "" {
		return nil, fmt.Errorf("%w: media bridge: url and space id are required", errs.ErrInvalidInput)
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("%w: media bridge: %v", errs.ErrInvalidInput, err)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &Bridge{
		opts:    opts,
		log:     opts.Logger.With("component", "media"),
		rtc:     DefaultWebRTCConfig(opts.ICEServers),
		pending: make(map[string]chan ws.Message),
	}
	b.state.Cameras = slices.Clone(opts.Cameras)
	if len(opts.Cameras) > 0 {
		b.state.CameraID = opts.Cameras[0]
	}
	return b, nil
}

func (b *Bridge) Snapshot() domain.BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

// OnUpdate registers fn for every state change. fn runs on the channel
// reader and must not issue bridge commands.
func (b *Bridge) OnUpdate(fn func(domain.BridgeState)) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// CreateRoom asks the hub for a new room and stays attached to it.
func (b *Bridge) CreateRoom(ctx context.Context, spaceID string) (string, error) {
	if spaceID != b.opts.SpaceID {
		return "", fmt.Errorf("%w: media bridge bound to space %s", errs.ErrInvalidInput, b.opts.SpaceID)
	}
	reply, err := b.request(ctx, ws.TypeCreateRoom, nil)
	if err != nil {
		return "", err
	}
	var p ws.RoomPayload
	if err := reply.Decode(&p); err != nil || p.Room == "" {
		return "", fmt.Errorf("%w: bad room_created payload", errs.ErrBridge)
	}
	if err := b.attach(p); err != nil {
		return "", err
	}
	return p.Room, nil
}

func (b *Bridge) JoinRoom(ctx context.Context, room string) error {
	reply, err := b.request(ctx, ws.TypeJoinRoom, ws.RoomPayload{Room: room})
	if err != nil {
		return err
	}
	var p ws.RoomPayload
	if err := reply.Decode(&p); err != nil {
		return fmt.Errorf("%w: bad joined payload", errs.ErrBridge)
	}
	if p.Room == "" {
		p.Room = room
	}
	return b.attach(p)
}

// Disconnect leaves the room and drops the control channel. Safe to call
// when not connected.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	attached := b.state.Room != ""
	b.mu.Unlock()

	var leaveErr error
	if attached {
		_, leaveErr = b.request(ctx, ws.TypeLeave, nil)
	}

	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.detachLocked()
	b.mu.Unlock()

	if conn != nil {
		b.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), time.Now().Add(time.Second))
		b.writeMu.Unlock()
		_ = conn.Close()
	}
	b.publish()

	if leaveErr != nil && !errors.Is(leaveErr, ErrClosed) {
		b.log.Warn("media leave failed", "err", leaveErr)
	}
	return nil
}

func (b *Bridge) RestrictMedia(ctx context.Context, targetID string, kind domain.MediaKind) error {
	_, err := b.request(ctx, ws.TypeRestrict, ws.RestrictPayload{Target: targetID, Kind: string(kind)})
	return err
}

func (b *Bridge) RemoveMember(ctx context.Context, targetID string) error {
	_, err := b.request(ctx, ws.TypeRemove, ws.RemovePayload{Target: targetID})
	return err
}

func (b *Bridge) ToggleAudio(context.Context) error {
	err := b.withPeer(func(p *localPeer, st *domain.BridgeState) error {
		on := !st.AudioEnabled
		if err := p.setAudio(on); err != nil {
			return err
		}
		st.AudioEnabled = on
		if on {
			st.Restricted = false
		}
		return nil
	})
	return b.deviceErr("toggle audio", err)
}

func (b *Bridge) ToggleVideo(context.Context) error {
	err := b.withPeer(func(p *localPeer, st *domain.BridgeState) error {
		on := !st.VideoEnabled
		if err := p.setVideo(on); err != nil {
			return err
		}
		st.VideoEnabled = on
		return nil
	})
	return b.deviceErr("toggle video", err)
}

// SwitchCamera cycles to the next known camera.
func (b *Bridge) SwitchCamera(ctx context.Context) error {
	b.mu.Lock()
	cams, cur := b.state.Cameras, b.state.CameraID
	b.mu.Unlock()
	if len(cams) < 2 {
		return b.deviceErr("switch camera", ErrNoCamera)
	}
	next := cams[(slices.Index(cams, cur)+1)%len(cams)]
	return b.SelectCamera(ctx, next)
}

func (b *Bridge) SelectCamera(_ context.Context, deviceID string) error {
	b.mu.Lock()
	if !slices.Contains(b.state.Cameras, deviceID) {
		b.mu.Unlock()
		return b.deviceErr("select camera", fmt.Errorf("%w: %q", ErrUnknownCamera, deviceID))
	}
	var err error
	if b.peer != nil {
		err = b.peer.useCamera(deviceID, b.state.VideoEnabled)
	}
	if err == nil {
		b.state.CameraID = deviceID
	}
	b.mu.Unlock()

	if err != nil {
		return b.deviceErr("select camera", err)
	}
	b.publish()
	return nil
}

func (b *Bridge) withPeer(fn func(p *localPeer, st *domain.BridgeState) error) error {
	b.mu.Lock()
	if b.peer == nil || !b.state.Connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	err := fn(b.peer, &b.state)
	b.mu.Unlock()

	if err == nil {
		b.publish()
	}
	return err
}

func (b *Bridge) deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", errs.ErrBridge, op, err)
}

// attach records a successful create/join and brings up the local peer.
func (b *Bridge) attach(p ws.RoomPayload) error {
	b.mu.Lock()
	if b.peer == nil {
		peer, err := newLocalPeer(b.rtc, b.opts.UserID, b.state.CameraID)
		if err != nil {
			b.mu.Unlock()
			return fmt.Errorf("%w: local peer: %v", errs.ErrBridge, err)
		}
		b.peer = peer
	}
	b.state.Connected = true
	b.state.Room = p.Room
	b.state.Roster = slices.Clone(p.Roster)
	b.state.Removed = false
	b.state.Restricted = false
	b.mu.Unlock()

	b.log.Info("media room attached", "room", p.Room, "roster", len(p.Roster))
	b.publish()
	return nil
}

// detachLocked resets the room part of the state; b.mu must be held.
func (b *Bridge) detachLocked() {
	if b.peer != nil {
		if err := b.peer.close(); err != nil {
			b.log.Debug("local peer close failed", "err", err)
		}
		b.peer = nil
	}
	b.state.Connected = false
	b.state.Room = ""
	b.state.Roster = nil
	b.state.AudioEnabled = false
	b.state.VideoEnabled = false
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

func (b *Bridge) publish() {
	st := b.Snapshot()

	b.lmu.Lock()
	ls := slices.Clone(b.listeners)
	b.lmu.Unlock()

	for _, fn := range ls {
		fn(st)
	}
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	u := strings.TrimRight(b.opts.URL, "/") + "/ws/spaces/" + url.PathEscape(b.opts.SpaceID) +
		"?access_token=" + url.QueryEscape(b.opts.Token)
	conn, _, err := b.opts.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial media hub: %v", errs.ErrBridge, err)
	}

	b.mu.Lock()
	if b.conn != nil {
		// параллельный dial уже успел
		existing := b.conn
		b.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	b.conn = conn
	b.mu.Unlock()

	go b.readLoop(conn)
	return conn, nil
}

// request sends one command and waits for the reply with the same id.
func (b *Bridge) request(ctx context.Context, typ string, payload any) (ws.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	conn, err := b.dial(ctx)
	if err != nil {
		return ws.Message{}, err
	}

	id := uuid.NewString()
	ch := make(chan ws.Message, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(b.opts.RequestTimeout))
	err = conn.WriteJSON(ws.NewMessage(typ, id, payload))
	b.writeMu.Unlock()
	if err != nil {
		return ws.Message{}, fmt.Errorf("%w: %s: %v", errs.ErrBridge, typ, err)
	}

	select {
	case <-ctx.Done():
		return ws.Message{}, fmt.Errorf("%w: %s: %v", errs.ErrBridge, typ, ctx.Err())
	case reply, ok := <-ch:
		if !ok {
			return ws.Message{}, fmt.Errorf("%w: %s: %w", errs.ErrBridge, typ, ErrClosed)
		}
		if reply.Type == ws.TypeError {
			var e ws.ErrorPayload
			_ = reply.Decode(&e)
			return ws.Message{}, fmt.Errorf("%w: %s: %s", errs.ErrBridge, typ, e.Message)
		}
		return reply, nil
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			b.connLost(conn, err)
			return
		}

		if msg.ID != "" {
			b.mu.Lock()
			if ch, ok := b.pending[msg.ID]; ok {
				delete(b.pending, msg.ID)
				ch <- msg
			}
			b.mu.Unlock()
			continue
		}
		b.event(msg)
	}
}

func (b *Bridge) event(msg ws.Message) {
	b.mu.Lock()
	switch msg.Type {
	case ws.TypeRestricted:
		var p ws.RestrictPayload
		if msg.Decode(&p) != nil {
			break
		}
		switch domain.MediaKind(p.Kind) {
		case domain.MediaAudio:
			b.state.Restricted = true
			b.state.AudioEnabled = false
			if b.peer != nil {
				_ = b.peer.setAudio(false)
			}
		case domain.MediaVideo:
			b.state.VideoEnabled = false
			if b.peer != nil {
				_ = b.peer.setVideo(false)
			}
		}
		b.state.Alert = "restricted by host: " + p.Kind
	case ws.TypeRemoved:
		b.state.Removed = true
		b.state.Alert = "removed by host"
	case ws.TypePeerJoined:
		var p ws.PeerEventPayload
		if msg.Decode(&p) == nil && !slices.Contains(b.state.Roster, p.UserID) {
			b.state.Roster = append(b.state.Roster, p.UserID)
			slices.Sort(b.state.Roster)
		}
	case ws.TypePeerLeft:
		var p ws.PeerEventPayload
		if msg.Decode(&p) == nil {
			b.state.Roster = slices.DeleteFunc(b.state.Roster, func(id string) bool { return id == p.UserID })
		}
	default:
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.publish()
}

// connLost handles a channel that dropped without Disconnect.
func (b *Bridge) connLost(conn *websocket.Conn, err error) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.detachLocked()
	b.mu.Unlock()

	_ = conn.Close()
	b.log.Info("media channel closed", "err", err)
	b.publish()
}
