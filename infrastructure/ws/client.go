package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/domain"
	"chat-relay/sink"
)

// SessionState is the lifecycle of one websocket connection. Transitions
// are one way: CONNECTING -> AUTHENTICATED -> CLOSED, or straight to
// CLOSED when the handshake fails.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FrameType tags an inbound client frame.
type FrameType string

const (
	FrameAuth        FrameType = "AUTH"
	FrameChat        FrameType = "CHAT"
	FrameSubscribe   FrameType = "SUBSCRIBE"
	FrameUnsubscribe FrameType = "UNSUBSCRIBE"
	FrameSearch      FrameType = "SEARCH"
)

// InboundFrame is the single envelope clients send. Which fields matter
// depends on Type; unknown types are answered with an ERROR frame.
type InboundFrame struct {
	Type       FrameType     `json:"type"`
	Token      string        `json:"token,omitempty"`
	Content    string        `json:"content,omitempty"`
	ReceiverID string        `json:"receiverId,omitempty"`
	RoomID     domain.RoomID `json:"roomId,omitempty"`
	Query      string        `json:"query,omitempty"`
}

// Session is one live websocket connection. The read pump parses inbound
// frames and hands them to the server's handlers; the write pump drains
// the connection sink filled by the delivery router. The first frame must
// authenticate within the handshake window or the session is closed.
type Session struct {
	ID       string
	UserID   string
	UserName string

	log   *slog.Logger
	conn  *websocket.Conn
	sink  *sink.ConnectionSink
	state atomic.Int32
	srv   *Server
}

func newSession(srv *Server, conn *websocket.Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		log:  srv.log,
		conn: conn,
		sink: sink.NewConnectionSink(srv.cfg.SinkBuffer),
		srv:  srv,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// transition moves the state machine forward only; a CLOSED session never
// comes back.
func (s *Session) transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// readPump consumes inbound frames until the connection dies. Before
// authentication the read deadline is the handshake window; afterwards it
// is refreshed by pongs.
func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(s.srv.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.HandshakeTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Websocket read failed", "session_id", s.ID, "error", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError("Invalid frame format")
			continue
		}
		s.handle(frame)
	}
}

// writePump pushes router frames and keepalive pings to the peer. A write
// failure terminates the pump; the read pump notices the dead connection
// and runs the close path.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.sink.Frames:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(payload); err != nil {
				s.log.Warn("Websocket write failed", "session_id", s.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) handle(frame InboundFrame) {
	if s.State() == StateConnecting && frame.Type != FrameAuth {
		s.sendError("Authentication required")
		return
	}

	switch frame.Type {
	case FrameAuth:
		s.srv.handleAuth(s, frame.Token)
	case FrameChat:
		s.srv.handleChat(s, frame)
	case FrameSubscribe:
		s.srv.handleSubscribe(s, frame.RoomID)
	case FrameUnsubscribe:
		s.srv.handleUnsubscribe(s, frame.RoomID)
	case FrameSearch:
		s.srv.handleSearch(s, frame.Query)
	default:
		s.sendError(fmt.Sprintf("Unknown frame type %q", frame.Type))
	}
}

// sendError pushes an in-band ERROR frame to this session only, through
// the same sink the router uses so ordering with other frames holds.
func (s *Session) sendError(reason string) {
	select {
	case s.sink.Frames <- domain.Payload{
		Content:   reason,
		Timestamp: time.Now().UTC(),
		Type:      domain.TypeError,
	}:
	default:
		// Sink full, the peer is not keeping up anyway.
	}
}

// close runs the teardown path exactly once: unbind, presence decrement,
// LEAVE broadcast when the session was authenticated.
func (s *Session) close() {
	authenticated := s.transition(StateAuthenticated, StateClosed)
	if !authenticated && !s.transition(StateConnecting, StateClosed) {
		return
	}
	_ = s.conn.Close()
	if authenticated {
		s.srv.handleDisconnect(s)
	}
	s.log.Debug("Session closed", "session_id", s.ID, "user_id", s.UserID)
}
