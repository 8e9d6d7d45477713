//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"conclave/ai"
	"conclave/domain"
	"conclave/domain/event"
)

// Generator is the external generation capability: participant + projected
// history in, response text out. Implementations must honor ctx cancellation
// and return ctx.Err() without side effects when cancelled.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (ai.Response, error)
}

// Summarizer folds a slice of messages into the running summary.
type Summarizer interface {
	Summarize(ctx context.Context, prior string, batch []domain.Message, roster []domain.Participant) (string, error)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
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

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(sessionID string) ([]domain.Message, error)
}

type ISessionRepository interface {
	SaveSession(session domain.Session) error
	GetSession(id string) (domain.Session, error)
	ListSessions() ([]domain.Session, error)
}

type IParticipantRepository interface {
	SaveParticipant(p domain.Participant) error
	GetParticipant(id string) (domain.Participant, error)
	ListParticipants() ([]domain.Participant, error)
}
