package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes a read-only HTML view of the BadgerDB contents
// plus live engine counters on /inspect. Development tool, never meant to
// face a network.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
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
		_ = http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux)
	}()
}

// DefaultMapper understands the engine's key layouts:
//
//	msg:{session}:{padded nanos}:{uuid}
//	session:{id}
//	participant:{id}
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: parts[0],
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch parts[0] {
	case "msg":
		if len(parts) >= 4 {
			row.Type = "MESSAGE"
			row.Namespace = parts[1]
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.EntityID = shorten(parts[3])
			var probe struct {
				Sender  string `json:"sender_id"`
				Content string `json:"content"`
			}
			if json.Unmarshal(val, &probe) == nil {
				row.Detail = probe.Sender + ": " + shortenTo(probe.Content, 80)
			}
		}
	case "session":
		row.Type = "SESSION"
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
		}
		var probe struct {
			Title string `json:"title"`
			Mode  string `json:"mode"`
		}
		if json.Unmarshal(val, &probe) == nil {
			row.Detail = probe.Mode + " / " + probe.Title
		}
	case "participant":
		row.Type = "PARTICIPANT"
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
		}
		var probe struct {
			Name    string `json:"name"`
			Model   string `json:"model"`
			Enabled bool   `json:"enabled"`
		}
		if json.Unmarshal(val, &probe) == nil {
			row.Detail = fmt.Sprintf("%s (%s) enabled=%t", probe.Name, probe.Model, probe.Enabled)
		}
	}
	return row
}

func shorten(s string) string {
	return shortenTo(s, 8)
}

func shortenTo(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
