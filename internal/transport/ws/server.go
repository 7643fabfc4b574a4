package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/spaces/internal/domain"
	httpmw "github.com/cwrk-planet/spaces/internal/transport/http/middleware"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

var (
	errHostOnly       = errors.New("only the host may do this")
	errNotParticipant = fmt.Errorf("%w: join the space first", errs.ErrPermissionDenied)
)

type SpaceGetter interface {
	GetSpace(ctx context.Context, id string) (*domain.Space, error)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	spaces   SpaceGetter
	verifier httpmw.TokenVerifier

	pingEvery time.Duration
}

func NewServer(hub *Hub, spaces SpaceGetter, verifier httpmw.TokenVerifier) *Server {
	return &Server{
		hub:      hub,
		spaces:   spaces,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws/spaces/{id}?access_token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	user, err := httpmw.Authenticate(s.verifier, token)
	if err != nil {
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}
	spaceID := chi.URLParam(r, "id")
	if _, err := s.spaces.GetSpace(r.Context(), spaceID); err != nil {
		http.Error(w, "space not found", errs.ToHTTP(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, spaceID, user.ID)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go s.writeLoop(ctx, c)
	s.readLoop(ctx, c)

	s.leave(c)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "space", spaceID, "user", user.ID, "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := s.dispatch(ctx, c, msg); err != nil {
			slog.Debug("ws request failed", "type", msg.Type, "space", c.spaceID, "user", c.userID, "err", err)
			_ = c.Send(NewMessage(TypeError, msg.ID, ErrorPayload{Message: err.Error()}))
		}
		if c.isClosed() {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, msg Message) error {
	switch msg.Type {
	case TypeCreateRoom:
		if err := s.requireHost(ctx, c); err != nil {
			return err
		}
		name := s.hub.Create(c.spaceID)
		s.leave(c)
		roster, err := s.hub.Add(name, c)
		if err != nil {
			return err
		}
		c.setRoom(name)
		slog.Info("media room created", "space", c.spaceID, "room", name, "host", c.userID)
		return c.Send(NewMessage(TypeRoomCreated, msg.ID, RoomPayload{Room: name, Roster: roster}))

	case TypeJoinRoom:
		var p RoomPayload
		if err := msg.Decode(&p); err != nil || p.Room == "" {
			return errs.ErrInvalidInput
		}
		sp, err := s.spaces.GetSpace(ctx, c.spaceID)
		if err != nil {
			return err
		}
		switch {
		case sp.Ended():
			return domain.ErrSpaceEnded
		case sp.IsBanned(c.userID):
			return domain.ErrBanned
		case !sp.IsParticipant(c.userID):
			return errNotParticipant
		}
		if c.currentRoom() != p.Room {
			s.leave(c)
		}
		roster, err := s.hub.Add(p.Room, c)
		if err != nil {
			return err
		}
		c.setRoom(p.Room)
		s.hub.Broadcast(p.Room, NewMessage(TypePeerJoined, "", PeerEventPayload{Room: p.Room, UserID: c.userID}), c)
		return c.Send(NewMessage(TypeJoined, msg.ID, RoomPayload{Room: p.Room, Roster: roster}))

	case TypeRestrict:
		var p RestrictPayload
		if err := msg.Decode(&p); err != nil || p.Target == "" || !domain.MediaKind(p.Kind).Valid() {
			return errs.ErrInvalidInput
		}
		targets, err := s.moderate(ctx, c, p.Target)
		if err != nil {
			return err
		}
		for _, t := range targets {
			_ = t.Send(NewMessage(TypeRestricted, "", p))
		}
		return c.Send(NewMessage(TypeAck, msg.ID, nil))

	case TypeRemove:
		var p RemovePayload
		if err := msg.Decode(&p); err != nil || p.Target == "" {
			return errs.ErrInvalidInput
		}
		targets, err := s.moderate(ctx, c, p.Target)
		if err != nil {
			return err
		}
		for _, t := range targets {
			_ = t.Send(NewMessage(TypeRemoved, "", p))
			_ = t.Close()
		}
		return c.Send(NewMessage(TypeAck, msg.ID, nil))

	case TypeLeave:
		s.leave(c)
		return c.Send(NewMessage(TypeAck, msg.ID, nil))

	default:
		return errs.ErrInvalidInput
	}
}

// moderate checks that c hosts the space and that target shares its room.
func (s *Server) moderate(ctx context.Context, c *wsConn, target string) ([]Conn, error) {
	if err := s.requireHost(ctx, c); err != nil {
		return nil, err
	}
	name := c.currentRoom()
	if name == "" {
		return nil, ErrNotInRoom
	}
	targets := s.hub.Find(name, target)
	if len(targets) == 0 {
		return nil, ErrTargetMissing
	}
	return targets, nil
}

func (s *Server) requireHost(ctx context.Context, c *wsConn) error {
	sp, err := s.spaces.GetSpace(ctx, c.spaceID)
	if err != nil {
		return err
	}
	if !sp.IsHost(c.userID) {
		return errHostOnly
	}
	return nil
}

// leave drops c from its room and tells the others.
func (s *Server) leave(c *wsConn) {
	name := c.setRoom("")
	if name == "" {
		return
	}
	left := s.hub.Remove(name, c)
	s.hub.Broadcast(name, NewMessage(TypePeerLeft, "", PeerEventPayload{Room: name, UserID: c.userID}), c)
	if left == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.dropIfEnded(ctx, name, c.spaceID)
	}
}

// dropIfEnded removes an empty room once its space is over or gone.
func (s *Server) dropIfEnded(ctx context.Context, name, spaceID string) {
	sp, err := s.spaces.GetSpace(ctx, spaceID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
	case err != nil:
		slog.Debug("media room check failed", "room", name, "space", spaceID, "err", err)
		return
	case !sp.Ended():
		return
	}
	if s.hub.Drop(name) {
		slog.Info("media room dropped", "space", spaceID, "room", name)
	}
}

// Prune drops every empty room whose space has ended. Rooms emptied before
// their space ended are only reached here.
func (s *Server) Prune(ctx context.Context) {
	for name, spaceID := range s.hub.Empty() {
		if ctx.Err() != nil {
			return
		}
		s.dropIfEnded(ctx, name, spaceID)
	}
}

// RunPruner calls Prune every interval until ctx is done.
func (s *Server) RunPruner(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(ctx)
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

type wsConn struct {
	conn    *websocket.Conn
	spaceID string
	userID  string
	sendMu  chan struct{}
	closed  chan struct{}

	mu   sync.Mutex
	room string
}

func newWsConn(c *websocket.Conn, spaceID, userID string) *wsConn {
	return &wsConn{
		conn:    c,
		spaceID: spaceID,
		userID:  userID,
		sendMu:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil
	default:
		close(c.closed)
	}
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// setRoom stores name and returns the previous room.
func (c *wsConn) setRoom(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.room
	c.room = name
	return prev
}

func (c *wsConn) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *wsConn) UserID() string  { return c.userID }
func (c *wsConn) SpaceID() string { return c.spaceID }
