package sink

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/domain/event"
	"chat-relay/search"
)

// SearchSink feeds stored messages into the full-text index. Permanent:
// it observes every MessageStored event regardless of live subscriptions.
type SearchSink struct {
	index *search.Index
	log   *slog.Logger
}

func NewSearchSink(index *search.Index, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageStored:
		return s.index.IndexMessage(evt.Message)
	default:
		s.log.Debug(fmt.Sprintf("Not an indexable event : %T", evt))
		return nil
	}
}
