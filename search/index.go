// Package search maintains a full-text index over the transcript so users
// can query long sessions ("/search who accused the seer").
package search

import (
	"context"
	"fmt"
	"log/slog"

	"conclave/domain"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Hit is one search result, rebuilt from stored fields.
type Hit struct {
	MessageID string
	SessionID string
	Sender    string
	Content   string
	Lang      string
	Score     float64
}

func NewIndex(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open bluge index: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// IndexMessage adds one message to the index. The detected language is
// stored alongside so multilingual tables can filter per language later.
func (i *Index) IndexMessage(msg domain.Message) error {
	lang := whatlanggo.Detect(msg.Content).Lang.String()

	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("session", msg.SessionID).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderID).StoreValue()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("lang", lang).StoreValue()).
		AddField(bluge.NewDateTimeField("at", msg.CreatedAt))

	return i.writer.Update(doc.ID(), doc)
}

// Search runs a match query over message contents, optionally scoped to one
// session.
func (i *Index) Search(ctx context.Context, sessionID, terms string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content"))
	if sessionID != "" {
		query.AddMust(bluge.NewTermQuery(sessionID).SetField("session"))
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var hits []Hit
	match, err := iter.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "session":
				hit.SessionID = string(value)
			case "sender":
				hit.Sender = string(value)
			case "content":
				hit.Content = string(value)
			case "lang":
				hit.Lang = string(value)
			}
			return true
		})
		if visitErr != nil {
			i.log.Warn("Failed to load stored fields", "error", visitErr)
		} else {
			hits = append(hits, hit)
		}
		match, err = iter.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
