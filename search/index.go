package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blugelabs/bluge"

	"chat-relay/domain"
)

// Hit is one search result, rebuilt from stored fields.
type Hit struct {
	MessageID string
	RoomID    domain.RoomID
	SenderID  string
	Content   string
	At        time.Time
}

// Index wraps a bluge writer holding the message index. Indexing happens
// on the event fan-out path, best effort: a failed index write never rolls
// back the persisted message.
type Index struct {
	writer *bluge.Writer
}

func NewIndex(writer *bluge.Writer) *Index {
	return &Index{writer: writer}
}

// Open creates or opens the index directory.
func Open(path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("bluge open failed: %w", err)
	}
	return &Index{writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// IndexMessage upserts one message document keyed by message id.
func (i *Index) IndexMessage(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("room", string(msg.RoomID)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderID).StoreValue()).
		AddField(bluge.NewDateTimeField("at", msg.CreatedAt).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search runs a parsed query against the index. A room filter restricts
// hits to that room's messages.
func (i *Index) Search(ctx context.Context, query Query) ([]Hit, error) {
	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query.Terms).SetField("content"))
	if query.RoomID != "" {
		boolean.AddMust(bluge.NewTermQuery(string(query.RoomID)).SetField("room"))
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader failed: %w", err)
	}
	defer reader.Close()

	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, boolean))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			case "room":
				hit.RoomID = domain.RoomID(value)
			case "sender":
				hit.SenderID = string(value)
			case "at":
				if t, err := bluge.DecodeDateTime(value); err == nil {
					hit.At = t
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
