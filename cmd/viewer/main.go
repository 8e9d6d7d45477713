// Command viewer dumps the engine's BadgerDB contents as a table. It opens
// the store read-only so it can run next to a live engine.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"conclave/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	Prefix         string `envconfig:"VIEWER_PREFIX" default:"msg:"`
	MaxContent     int    `envconfig:"VIEWER_MAX_CONTENT" default:"80"`
}

func main() {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Config error: ", err)
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Session", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(cfg.Prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(toRow(key, v, cfg.MaxContent))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, val []byte, maxContent int) []string {
	parts := strings.Split(key, ":")

	switch parts[0] {
	case "msg":
		var msg domain.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return []string{key, "MESSAGE", "--:--:--", "--------", "-", "unmarshal error: " + err.Error()}
		}
		detail := msg.SenderID + ": " + clip(msg.Content, maxContent)
		if !msg.Broadcast() {
			detail = fmt.Sprintf("%s -> %s: %s", msg.SenderID, msg.Recipient, clip(msg.Content, maxContent))
		}
		ts := "--:--:--"
		if len(parts) >= 3 {
			if nanos, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				ts = time.Unix(0, nanos).Format("15:04:05")
			}
		}
		return []string{key, "MESSAGE", ts, clip(msg.ID.String(), 8), clip(msg.SessionID, 8), detail}

	case "session":
		var s domain.Session
		if err := json.Unmarshal(val, &s); err != nil {
			return []string{key, "SESSION", "--:--:--", "--------", "-", "unmarshal error: " + err.Error()}
		}
		detail := fmt.Sprintf("%s mode=%s stopped=%t kicks=%d", s.Title, s.Mode, s.StoppedByUser, len(s.PendingKicks))
		return []string{key, "SESSION", s.UpdatedAt.Format("15:04:05"), clip(s.ID, 8), clip(s.ID, 8), detail}

	case "participant":
		var p domain.Participant
		if err := json.Unmarshal(val, &p); err != nil {
			return []string{key, "PARTICIPANT", "--:--:--", "--------", "-", "unmarshal error: " + err.Error()}
		}
		detail := fmt.Sprintf("%s model=%s enabled=%t tokens=%d", p.Name, p.Model, p.Enabled, p.Usage.Total)
		return []string{key, "PARTICIPANT", "--:--:--", clip(p.ID, 8), "-", detail}
	}

	return []string{key, "RAW", "--:--:--", "--------", "-", "Size: " + strconv.Itoa(len(val)) + " bytes"}
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
