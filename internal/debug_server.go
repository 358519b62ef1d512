package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only HTML view over the badger keyspace
// plus live runtime stats. Debugging aid only, never exposed publicly.
func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = ChatMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// ChatMapper renders the chat keyspace: user, room, message records and
// the pair/member index entries.
func ChatMapper(key string, val []byte) InspectRow {
	row := InspectRow{Key: key, Type: "RAW", Timestamp: "--:--:--"}

	switch {
	case strings.HasPrefix(key, "user:"):
		var user domain.User
		if err := json.Unmarshal(val, &user); err != nil {
			return row
		}
		row.Type = "USER"
		row.EntityID = shortID(user.ID)
		row.Timestamp = user.LastSeen.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s online=%t", user.Name, user.Online)

	case strings.HasPrefix(key, "room:"):
		var room domain.Room
		if err := json.Unmarshal(val, &room); err != nil {
			return row
		}
		row.Type = "ROOM"
		if room.Direct {
			row.Type = "DIRECT"
		}
		row.EntityID = shortID(string(room.ID))
		row.Timestamp = room.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s (%d participants)", room.Name, len(room.Participants))

	case strings.HasPrefix(key, "msg:"):
		var msg domain.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return row
		}
		row.Type = "MESSAGE"
		row.EntityID = shortID(msg.ID.String())
		row.Timestamp = msg.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s: %s", msg.SenderID, msg.Content)

	case strings.HasPrefix(key, "pair:"), strings.HasPrefix(key, "member:"):
		row.Type = "INDEX"
		row.Detail = string(val)
	}
	return row
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
