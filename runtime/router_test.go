package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
)

// recordingSink captures delivered payloads; failing makes every Deliver
// call return an error.
type recordingSink struct {
	payloads chan domain.Payload
	failing  bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{payloads: make(chan domain.Payload, 16)}
}

func (s *recordingSink) Deliver(ctx context.Context, p domain.Payload) error {
	if s.failing {
		return errors.ErrDelivery
	}
	s.payloads <- p
	return nil
}

func (s *recordingSink) next(t *testing.T) domain.Payload {
	t.Helper()
	select {
	case p := <-s.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered in time")
		return domain.Payload{}
	}
}

func (s *recordingSink) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-s.payloads:
		t.Fatalf("unexpected payload delivered: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func startRouter(t *testing.T, registry contract.IRegistry) *Router {
	t.Helper()
	router := NewRouter(slog.Default(), registry, observability.NewMonitor(), 64, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = router.Run(ctx) }()
	return router
}

func storedDirect(sender, receiver, content string) event.MessageStored {
	return event.MessageStored{
		Message: domain.Message{
			ID:         uuid.New(),
			Content:    content,
			CreatedAt:  time.Now().UTC(),
			SenderID:   sender,
			ReceiverID: receiver,
		},
		SenderName:   sender,
		ReceiverName: receiver,
	}
}

func TestRouter_Direct_Message_Reaches_Receiver_And_Sender(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := startRouter(t, registry)

	aliceSink := newRecordingSink()
	bobSink := newRecordingSink()
	claraSink := newRecordingSink()
	registry.Bind("conn-a", "alice", aliceSink)
	registry.Bind("conn-b", "bob", bobSink)
	registry.Bind("conn-c", "clara", claraSink)

	// When alice sends bob a direct message
	router.Dispatch(storedDirect("alice", "bob", "hello"))

	// Then bob receives it, alice gets her own copy, clara gets nothing
	received := bobSink.next(t)
	req.Equal(domain.TypeChat, received.Type)
	req.Equal("hello", received.Content)
	req.Equal("alice", received.SenderID)

	echo := aliceSink.next(t)
	req.Equal("hello", echo.Content)

	claraSink.none(t)
}

func TestRouter_Room_Message_Reaches_Subscribers_Only(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := startRouter(t, registry)

	aliceSink := newRecordingSink()
	bobSink := newRecordingSink()
	registry.Bind("conn-a", "alice", aliceSink)
	registry.Bind("conn-b", "bob", bobSink)
	registry.SubscribeRoom("conn-a", "general")

	router.Dispatch(event.MessageStored{
		Message: domain.Message{
			ID: uuid.New(), Content: "room talk", CreatedAt: time.Now().UTC(),
			SenderID: "alice", RoomID: "general",
		},
		SenderName: "alice",
	})

	received := aliceSink.next(t)
	req.Equal(domain.RoomID("general"), received.RoomID)
	bobSink.none(t)
}

func TestRouter_Failed_Recipient_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := startRouter(t, registry)

	aliceSink := newRecordingSink()
	brokenSink := newRecordingSink()
	brokenSink.failing = true
	healthySink := newRecordingSink()
	registry.Bind("conn-a", "alice", aliceSink)
	registry.Bind("conn-b1", "bob", brokenSink)
	registry.Bind("conn-b2", "bob", healthySink)

	// When a direct message hits one broken and one healthy connection
	router.Dispatch(storedDirect("alice", "bob", "hello"))

	// Then the healthy connection still receives the message
	received := healthySink.next(t)
	req.Equal("hello", received.Content)

	// And the sender receives her echo plus an in-band ERROR frame
	frames := map[domain.PayloadType]domain.Payload{}
	for i := 0; i < 2; i++ {
		p := aliceSink.next(t)
		frames[p.Type] = p
	}
	req.Contains(frames, domain.TypeChat)
	req.Contains(frames, domain.TypeError)
	req.Contains(frames[domain.TypeError].Content, "Failed to send message")
}

func TestRouter_Error_Frame_Goes_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := startRouter(t, registry)

	aliceSink := newRecordingSink()
	bobSink := newRecordingSink()
	registry.Bind("conn-a", "alice", aliceSink)
	registry.Bind("conn-b", "bob", bobSink)

	router.Dispatch(event.DeliveryFailure{
		SenderID: "alice",
		Reason:   "Failed to send message: receiver unreachable",
		At:       time.Now().UTC(),
	})

	frame := aliceSink.next(t)
	req.Equal(domain.TypeError, frame.Type)
	bobSink.none(t)
}

func TestRouter_Join_And_Leave_Broadcast_Public(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := startRouter(t, registry)

	aliceSink := newRecordingSink()
	bobSink := newRecordingSink()
	registry.Bind("conn-a", "alice", aliceSink)
	registry.Bind("conn-b", "bob", bobSink)

	router.Dispatch(event.UserJoined{UserID: "clara", UserName: "Clara", At: time.Now().UTC()})

	for _, sink := range []*recordingSink{aliceSink, bobSink} {
		frame := sink.next(t)
		req.Equal(domain.TypeJoin, frame.Type)
		req.Equal("Clara", frame.SenderName)
	}

	router.Dispatch(event.UserLeft{UserID: "clara", UserName: "Clara", At: time.Now().UTC()})
	for _, sink := range []*recordingSink{aliceSink, bobSink} {
		req.Equal(domain.TypeLeave, sink.next(t).Type)
	}
}
