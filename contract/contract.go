//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the Worker
// interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound frames for one live connection. Deliver
// must not block the caller.
type EventSink interface {
	Deliver(ctx context.Context, p domain.Payload) error
}

// PermanentSink observes every stored-message event regardless of
// subscriptions (indexing, projections, metrics).
type PermanentSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Dispatcher hands domain events to the delivery path. Implementations
// must never block the caller: the durable append already happened.
type Dispatcher interface {
	Dispatch(e event.DomainEvent)
}

// IRegistry is the transient connection state: which connection belongs to
// which user, and which connections subscribed to which room topic.
type IRegistry interface {
	Bind(connID, userID string, sink EventSink)
	Unbind(connID string)
	SubscribeRoom(connID string, roomID domain.RoomID)
	UnsubscribeRoom(connID string, roomID domain.RoomID)
	SinksForUser(userID string) []EventSink
	SinksForRoom(roomID domain.RoomID) []EventSink
	PublicSinks() []EventSink
	UserOf(connID string) (string, bool)
}
