package sink

import (
	"context"
	"log/slog"

	"conclave/domain/event"
	"conclave/search"
)

// SearchSink feeds appended messages into the full-text index. Error and
// empty messages are skipped; they carry no searchable content.
type SearchSink struct {
	index *search.Index
	log   *slog.Logger
}

func NewSearchSink(index *search.Index, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageAppended)
	if !ok {
		return nil
	}
	if evt.Message.IsError || evt.Message.Empty() {
		return nil
	}
	return s.index.IndexMessage(evt.Message)
}
