// Package ws exposes the chat system over HTTP: a websocket endpoint for
// live sessions and a REST surface for history, rooms and presence.
package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
)

// Config bounds the websocket pumps and the handshake window.
type Config struct {
	Addr             string
	WriteWait        time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	SinkBuffer       int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the transport to the service facade. It owns no chat
// state: sessions live in the registry, everything else is behind the
// services.
type Server struct {
	log      *slog.Logger
	cfg      Config
	registry contract.IRegistry
	chat     services.IChatService
	rooms    services.IRoomService
	messages services.IMessageService
	presence services.IPresenceService
	tokens   auth.TokenManager
	http     *http.Server
}

func NewServer(log *slog.Logger, cfg Config, registry contract.IRegistry,
	chat services.IChatService, rooms services.IRoomService,
	messages services.IMessageService, presence services.IPresenceService,
	tokens auth.TokenManager) *Server {
	s := &Server{
		log:      log,
		cfg:      cfg,
		registry: registry,
		chat:     chat,
		rooms:    rooms,
		messages: messages,
		presence: presence,
		tokens:   tokens,
	}
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.routes()}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)

	api := r.PathPrefix("/api/chat").Subrouter()
	api.HandleFunc("/users", s.registerUser).Methods(http.MethodPost)
	api.HandleFunc("/users/online", s.onlineUsers).Methods(http.MethodGet)
	api.HandleFunc("/auth/token", s.issueToken).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/conversation", s.conversation).Methods(http.MethodGet)
	api.HandleFunc("/messages/room/{roomId}", s.roomHistory).Methods(http.MethodGet)
	api.HandleFunc("/messages/unread", s.unreadCount).Methods(http.MethodGet)
	api.HandleFunc("/messages/recent", s.recentMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/search", s.searchMessages).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.createRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/direct", s.directRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/user/{userId}", s.roomsForUser).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/users/{userId}", s.addRoomUser).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/users/{userId}", s.removeRoomUser).Methods(http.MethodDelete)
	return r
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()
	s.log.Info("HTTP server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// --- websocket ---

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	session := newSession(s, conn)
	go session.writePump()
	go session.readPump()
}

// handleAuth validates the first frame's token and promotes the session.
// Only after the bind do JOIN broadcast and presence flip happen, so a
// rejected token leaves no trace.
func (s *Server) handleAuth(session *Session, token string) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		// The handshake read deadline reaps the connection; closing here
		// would race the write pump and lose the error frame.
		session.sendError("Authentication failed")
		return
	}
	if !session.transition(StateConnecting, StateAuthenticated) {
		return
	}
	session.UserID = claims.UserID
	session.UserName = claims.UserName
	_ = session.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

	s.registry.Bind(session.ID, session.UserID, session.sink)
	if err := s.presence.SetOnline(session.ID, session.UserID); err != nil {
		s.log.Error("Presence update failed", "user_id", session.UserID, "error", err)
	}
	s.chat.AnnounceJoin(session.UserID)
	s.log.Info("Session authenticated", "session_id", session.ID, "user_id", session.UserID)
}

// handleChat accepts a live CHAT frame targeting either a user or a room.
// Failures come back as in-band ERROR frames to this session only.
func (s *Server) handleChat(session *Session, frame InboundFrame) {
	var err error
	if frame.ReceiverID != "" {
		_, err = s.chat.SendDirectMessage(domain.SendDirectMessageCommand{
			SenderID:   session.UserID,
			ReceiverID: frame.ReceiverID,
			Content:    frame.Content,
		})
	} else {
		_, err = s.chat.SendRoomMessage(domain.SendRoomMessageCommand{
			SenderID: session.UserID,
			RoomID:   frame.RoomID,
			Content:  frame.Content,
		})
	}
	if err != nil {
		session.sendError("Failed to send message: " + err.Error())
	}
}

// handleSubscribe attaches the session to a room topic. Membership is
// checked so a session cannot listen in on rooms it does not belong to.
func (s *Server) handleSubscribe(session *Session, roomID domain.RoomID) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		session.sendError("Unknown room " + string(roomID))
		return
	}
	if !room.HasParticipant(session.UserID) {
		session.sendError("Not a participant of room " + string(roomID))
		return
	}
	s.registry.SubscribeRoom(session.ID, roomID)
}

func (s *Server) handleUnsubscribe(session *Session, roomID domain.RoomID) {
	s.registry.UnsubscribeRoom(session.ID, roomID)
}

// handleSearch answers a live search frame with one CHAT-shaped frame per
// hit, pushed through the session's own sink.
func (s *Server) handleSearch(session *Session, rawQuery string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hits, err := s.chat.Search(ctx, rawQuery)
	if err != nil {
		session.sendError("Search failed: " + err.Error())
		return
	}
	for _, hit := range hits {
		select {
		case session.sink.Frames <- domain.Payload{
			Content:   hit.Content,
			Timestamp: hit.At,
			SenderID:  hit.SenderID,
			RoomID:    domain.RoomID(hit.RoomID),
			Type:      domain.TypeChat,
		}:
		default:
			return
		}
	}
}

// handleDisconnect runs once per authenticated session. Unbind first so
// the LEAVE broadcast never targets the dying sink.
func (s *Server) handleDisconnect(session *Session) {
	s.registry.Unbind(session.ID)
	userID, err := s.presence.SetOffline(session.ID)
	if err != nil {
		s.log.Error("Presence update failed", "user_id", session.UserID, "error", err)
	}
	if userID != "" {
		s.chat.AnnounceLeave(userID)
	}
}

// --- REST ---

type registerUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	err := s.chat.RegisterUser(domain.User{ID: req.ID, Name: req.Name, Email: req.Email})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) onlineUsers(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.presence.ListOnlineUsers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type issueTokenRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	token, err := s.tokens.Generate(req.UserID, req.UserName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type sendMessageRequest struct {
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId,omitempty"`
	RoomID     domain.RoomID `json:"roomId,omitempty"`
	Content    string        `json:"content"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var msg domain.Message
	var err error
	if req.ReceiverID != "" {
		msg, err = s.chat.SendDirectMessage(domain.SendDirectMessageCommand{
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
		})
	} else {
		msg, err = s.chat.SendRoomMessage(domain.SendRoomMessageCommand{
			SenderID: req.SenderID,
			RoomID:   req.RoomID,
			Content:  req.Content,
		})
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	userA := r.URL.Query().Get("userA")
	userB := r.URL.Query().Get("userB")
	if userA == "" || userB == "" {
		http.Error(w, "userA and userB are required", http.StatusBadRequest)
		return
	}
	messages, err := s.messages.Conversation(userA, userB, queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(mux.Vars(r)["roomId"])
	if _, err := s.rooms.GetRoom(roomID); err != nil {
		s.writeError(w, err)
		return
	}
	messages, err := s.messages.RoomHistory(roomID, queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	senderID := r.URL.Query().Get("senderId")
	receiverID := r.URL.Query().Get("receiverId")
	since, err := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
	if senderID == "" || receiverID == "" || err != nil {
		http.Error(w, "senderId, receiverId and RFC3339 since are required", http.StatusBadRequest)
		return
	}
	count, err := s.messages.UnreadCount(senderID, receiverID, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) recentMessages(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid window duration", http.StatusBadRequest)
			return
		}
		window = parsed
	}
	messages, err := s.messages.RecentMessages(window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request) {
	hits, err := s.chat.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var cmd domain.CreateRoomCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	room, err := s.rooms.CreateRoom(cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, room)
}

func (s *Server) directRoom(w http.ResponseWriter, r *http.Request) {
	userA := r.URL.Query().Get("userA")
	userB := r.URL.Query().Get("userB")
	room, err := s.rooms.FindOrCreateDirectRoom(userA, userB)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) roomsForUser(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.ListRoomsForUser(mux.Vars(r)["userId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) addRoomUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room, err := s.rooms.AddParticipant(domain.RoomID(vars["roomId"]), vars["userId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) removeRoomUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room, err := s.rooms.RemoveParticipant(domain.RoomID(vars["roomId"]), vars["userId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Response encoding failed", "error", err)
	}
}

// writeError maps the domain sentinels to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case stderrors.Is(err, errors.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case stderrors.Is(err, errors.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("Request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// queryLimit parses the optional limit parameter; absent or malformed
// values mean unbounded.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
