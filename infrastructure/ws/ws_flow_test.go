package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/domain"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authenticate(t *testing.T, conn *websocket.Conn, userID, userName string) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Generate(userID, userName)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(InboundFrame{Type: FrameAuth, Token: token}))
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Payload {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var payload domain.Payload
	require.NoError(t, conn.ReadJSON(&payload))
	return payload
}

func Test_WS_Join_Broadcast_And_Direct_Delivery(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	registerTestUser(t, ts.URL, "alice", "Alice")
	registerTestUser(t, ts.URL, "bob", "Bob")

	// Given alice connects and authenticates
	alice := dialWS(t, ts)
	authenticate(t, alice, "alice", "Alice")

	// Then she sees her own JOIN on the public topic
	frame := readFrame(t, alice)
	req.Equal(domain.TypeJoin, frame.Type)
	req.Equal("alice", frame.SenderID)
	req.Equal("Alice", frame.SenderName)

	// When bob connects, both see his JOIN
	bob := dialWS(t, ts)
	authenticate(t, bob, "bob", "Bob")

	req.Equal(domain.TypeJoin, readFrame(t, bob).Type)
	frame = readFrame(t, alice)
	req.Equal(domain.TypeJoin, frame.Type)
	req.Equal("bob", frame.SenderID)

	// When bob sends alice a live direct message
	req.NoError(bob.WriteJSON(InboundFrame{
		Type: FrameChat, ReceiverID: "alice", Content: "hi alice",
	}))

	// Then alice receives it and bob gets his own echo
	frame = readFrame(t, alice)
	req.Equal(domain.TypeChat, frame.Type)
	req.Equal("hi alice", frame.Content)
	req.Equal("Bob", frame.SenderName)
	req.Equal("Alice", frame.ReceiverName)

	echo := readFrame(t, bob)
	req.Equal(domain.TypeChat, echo.Type)
	req.Equal("hi alice", echo.Content)
}

func Test_WS_Frames_Before_Auth_Are_Rejected(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	conn := dialWS(t, ts)
	req.NoError(conn.WriteJSON(InboundFrame{
		Type: FrameChat, ReceiverID: "alice", Content: "sneaky",
	}))

	frame := readFrame(t, conn)
	req.Equal(domain.TypeError, frame.Type)
	req.Contains(frame.Content, "Authentication required")
}

func Test_WS_Invalid_Token_Closes_Session(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	conn := dialWS(t, ts)
	req.NoError(conn.WriteJSON(InboundFrame{Type: FrameAuth, Token: "garbage"}))

	// The server answers with an ERROR frame, then drops the connection
	frame := readFrame(t, conn)
	req.Equal(domain.TypeError, frame.Type)

	req.NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	var discard domain.Payload
	req.Error(conn.ReadJSON(&discard))
}

func Test_WS_Leave_Broadcast_On_Disconnect(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	registerTestUser(t, ts.URL, "alice", "Alice")
	registerTestUser(t, ts.URL, "bob", "Bob")

	alice := dialWS(t, ts)
	authenticate(t, alice, "alice", "Alice")
	req.Equal(domain.TypeJoin, readFrame(t, alice).Type)

	bob := dialWS(t, ts)
	authenticate(t, bob, "bob", "Bob")
	req.Equal(domain.TypeJoin, readFrame(t, bob).Type)
	req.Equal(domain.TypeJoin, readFrame(t, alice).Type)

	// When bob disconnects
	req.NoError(bob.Close())

	// Then alice sees his LEAVE
	frame := readFrame(t, alice)
	req.Equal(domain.TypeLeave, frame.Type)
	req.Equal("bob", frame.SenderID)
}

func Test_WS_Room_Subscription_Gatekeeping(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	registerTestUser(t, ts.URL, "alice", "Alice")
	registerTestUser(t, ts.URL, "bob", "Bob")

	// Given a room alice belongs to and bob does not
	resp := postJSON(t, ts.URL+"/api/chat/rooms", map[string]any{
		"Name": "General", "ParticipantIDs": []string{"alice"},
	})
	req.Equal(201, resp.StatusCode)
	var room domain.Room
	req.NoError(decodeBody(resp, &room))

	bob := dialWS(t, ts)
	authenticate(t, bob, "bob", "Bob")
	req.Equal(domain.TypeJoin, readFrame(t, bob).Type)

	// When bob tries to subscribe the room topic
	req.NoError(bob.WriteJSON(InboundFrame{Type: FrameSubscribe, RoomID: room.ID}))

	// Then he is refused in-band
	frame := readFrame(t, bob)
	req.Equal(domain.TypeError, frame.Type)
	req.Contains(frame.Content, "Not a participant")
}
