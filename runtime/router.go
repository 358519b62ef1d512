// Package runtime handles event propagation between the append path and
// live connections. It orchestrates delivery without containing business
// logic or domain rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
)

var _ contract.Worker = (*Router)(nil)

// Router fans stored-message, join and leave events out to live
// connections. Delivery is best effort: a failure for one recipient is
// isolated, counted, and reported in-band to the sender only. The durable
// append has already happened by the time an event reaches the router, so
// nothing here can roll a message back.
type Router struct {
	log             *slog.Logger
	registry        contract.IRegistry
	outbound        chan event.DomainEvent
	permanent       []contract.PermanentSink
	monitor         *observability.Monitor
	deliveryTimeout time.Duration
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, monitor *observability.Monitor,
	bufferSize int, deliveryTimeout time.Duration) *Router {
	return &Router{
		log:             log,
		registry:        registry,
		outbound:        make(chan event.DomainEvent, bufferSize),
		monitor:         monitor,
		deliveryTimeout: deliveryTimeout,
	}
}

// AddPermanentSinks registers consumers that observe every event
// regardless of subscriptions (search index, projections). Must be called
// before Run.
func (r *Router) AddPermanentSinks(sinks ...contract.PermanentSink) {
	r.permanent = append(r.permanent, sinks...)
}

// Dispatch enqueues an event for routing. Non-blocking: when the buffer is
// full the event is dropped and counted, never stalling the caller. The
// message itself is already durable, clients catch up through history.
func (r *Router) Dispatch(e event.DomainEvent) {
	select {
	case r.outbound <- e:
	default:
		r.monitor.IncrDropped()
		r.log.Warn("Outbound channel full, dropping event", "event", fmt.Sprintf("%T", e))
	}
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Stopping router")
			return ctx.Err()
		case e, ok := <-r.outbound:
			if !ok {
				return nil
			}
			r.route(ctx, e)
		}
	}
}

func (r *Router) route(ctx context.Context, e event.DomainEvent) {
	for _, sink := range r.permanent {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Error("Permanent sink failed", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}

	switch evt := e.(type) {
	case event.MessageStored:
		r.routeMessage(ctx, evt)
	case event.UserJoined:
		r.monitor.IncrJoin()
		r.broadcast(ctx, r.registry.PublicSinks(), domain.Payload{
			Timestamp:  evt.At,
			SenderID:   evt.UserID,
			SenderName: evt.UserName,
			Type:       domain.TypeJoin,
		})
	case event.UserLeft:
		r.monitor.IncrLeave()
		r.broadcast(ctx, r.registry.PublicSinks(), domain.Payload{
			Timestamp:  evt.At,
			SenderID:   evt.UserID,
			SenderName: evt.UserName,
			Type:       domain.TypeLeave,
		})
	case event.DeliveryFailure:
		r.reportToSender(ctx, evt.SenderID, evt.Reason)
	}
}

// routeMessage pushes a CHAT payload to its recipients. Direct messages go
// to every live connection of the receiver, plus the sender's own
// connections as acknowledgment. Room messages go to the room topic,
// sender included, so all of the sender's open views stay consistent.
func (r *Router) routeMessage(ctx context.Context, evt event.MessageStored) {
	payload := toPayload(evt)

	var targets []contract.EventSink
	if evt.Message.Direct() {
		targets = append(r.registry.SinksForUser(evt.Message.ReceiverID),
			r.registry.SinksForUser(evt.Message.SenderID)...)
	} else {
		targets = r.registry.SinksForRoom(evt.Message.RoomID)
	}

	if failures := r.broadcast(ctx, targets, payload); failures > 0 {
		r.reportToSender(ctx, evt.Message.SenderID,
			fmt.Sprintf("Failed to send message: delivery failed for %d recipient(s)", failures))
	}
}

// broadcast pushes one payload to a snapshot of sinks. Failures are
// isolated per recipient and never abort the loop.
func (r *Router) broadcast(ctx context.Context, sinks []contract.EventSink, payload domain.Payload) int {
	failures := 0
	for _, sink := range sinks {
		deliverCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
		err := sink.Deliver(deliverCtx, payload)
		cancel()
		if err != nil {
			failures++
			r.monitor.IncrDeliveryError()
			r.log.Warn("Live delivery failed",
				"type", payload.Type,
				"sender_id", payload.SenderID,
				"error", err)
			continue
		}
		r.monitor.IncrDelivered()
	}
	return failures
}

// reportToSender emits an in-band ERROR frame to the sender's own
// connections only. Push errors on the error frame itself are ignored.
func (r *Router) reportToSender(ctx context.Context, senderID, reason string) {
	errorPayload := domain.Payload{
		Content:   reason,
		Timestamp: time.Now().UTC(),
		Type:      domain.TypeError,
	}
	for _, sink := range r.registry.SinksForUser(senderID) {
		deliverCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
		_ = sink.Deliver(deliverCtx, errorPayload)
		cancel()
	}
}

func toPayload(evt event.MessageStored) domain.Payload {
	return domain.Payload{
		ID:           evt.Message.ID,
		Content:      evt.Message.Content,
		Timestamp:    evt.Message.CreatedAt,
		SenderID:     evt.Message.SenderID,
		SenderName:   evt.SenderName,
		ReceiverID:   evt.Message.ReceiverID,
		ReceiverName: evt.ReceiverName,
		RoomID:       evt.Message.RoomID,
		Type:         domain.TypeChat,
	}
}
