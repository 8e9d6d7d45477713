// Package services exposes the engine to frontends. The service layer does
// input validation and delegates orchestration to the runtime.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"conclave/contract"
	"conclave/domain"
	apperrors "conclave/errors"
	"conclave/runtime"
	"conclave/search"

	"github.com/go-playground/validator/v10"
)

type IChatService interface {
	CreateSession(title string, mode domain.Mode, refereeID string, compression domain.CompressionConfig) (domain.Session, error)
	GetSession(id string) (domain.Session, error)
	ListSessions() []domain.Session
	PostMessage(sessionID, content string, mediaPaths []string, speakers []string) error
	StopSession(sessionID string)
	ConfirmKick(sessionID, targetID string) error
	RejectKick(sessionID, targetID string) error
	UpsertParticipant(p domain.Participant) error
	SetParticipantEnabled(sessionID, participantID string, enabled bool) error
	Roster() []domain.Participant
	StartGame(sessionID string, mode domain.RefereeMode, topic string) error
	EndGame(sessionID string) error
	SearchTranscript(ctx context.Context, sessionID, terms string, limit int) ([]search.Hit, error)
	Subscribe(subscriberID, sessionID string, sink contract.EventSink)
	Unsubscribe(subscriberID, sessionID string)
}

type ChatService struct {
	orchestrator *runtime.Orchestrator
	index        *search.Index
	validate     *validator.Validate
	log          *slog.Logger
}

func NewChatService(o *runtime.Orchestrator, index *search.Index, log *slog.Logger) *ChatService {
	return &ChatService{
		orchestrator: o,
		index:        index,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
	}
}

func (s *ChatService) CreateSession(title string, mode domain.Mode, refereeID string, compression domain.CompressionConfig) (domain.Session, error) {
	if mode.Refereed() && refereeID == "" {
		return domain.Session{}, fmt.Errorf("mode %s requires a referee", mode)
	}
	return s.orchestrator.CreateSession(title, mode, refereeID, compression)
}

func (s *ChatService) GetSession(id string) (domain.Session, error) {
	return s.orchestrator.GetSession(id)
}

func (s *ChatService) ListSessions() []domain.Session {
	return s.orchestrator.ListSessions()
}

// PostMessage sniffs any attachments and hands the input to the engine.
// Empty content with no media is rejected here, before it could become a
// ghost message.
func (s *ChatService) PostMessage(sessionID, content string, mediaPaths []string, speakers []string) error {
	var media []domain.MediaRef
	for _, path := range mediaPaths {
		ref, err := domain.NewMediaRef(path)
		if err != nil {
			return fmt.Errorf("attach %s: %w", path, err)
		}
		media = append(media, ref)
	}

	msg := domain.Message{Content: content, Media: media}
	if msg.Empty() {
		return fmt.Errorf("nothing to post")
	}
	return s.orchestrator.PostUserMessage(sessionID, content, media, speakers)
}

func (s *ChatService) StopSession(sessionID string) {
	s.orchestrator.StopSession(sessionID)
}

func (s *ChatService) ConfirmKick(sessionID, targetID string) error {
	return s.orchestrator.ConfirmKick(sessionID, targetID)
}

func (s *ChatService) RejectKick(sessionID, targetID string) error {
	return s.orchestrator.RejectKick(sessionID, targetID)
}

// UpsertParticipant validates the configuration before it can reach the
// live roster. An invalid participant never replaces a valid one.
func (s *ChatService) UpsertParticipant(p domain.Participant) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid participant: %w", err)
	}
	return s.orchestrator.UpsertParticipant(p)
}

func (s *ChatService) SetParticipantEnabled(sessionID, participantID string, enabled bool) error {
	p, found := find(s.orchestrator.Roster(), participantID)
	if !found {
		return apperrors.ErrParticipantNotFound
	}
	p.Enabled = enabled
	if err := s.orchestrator.UpsertParticipant(p); err != nil {
		return err
	}
	s.log.Info("Participant toggled", "id", participantID, "enabled", enabled, "session", sessionID)
	return nil
}

func (s *ChatService) Roster() []domain.Participant {
	return s.orchestrator.Roster()
}

// StartGame flips the referee context to ACTIVE for the given mode. This is
// the explicit switch; nothing in the round loop activates a game on its own.
func (s *ChatService) StartGame(sessionID string, mode domain.RefereeMode, topic string) error {
	return s.orchestrator.SetRefereeContext(sessionID, domain.RefereeContext{
		Mode:   mode,
		Status: domain.RefereeActive,
		Topic:  topic,
	})
}

func (s *ChatService) EndGame(sessionID string) error {
	session, err := s.orchestrator.GetSession(sessionID)
	if err != nil {
		return err
	}
	ctx := session.Referee
	ctx.Status = domain.RefereeIdle
	return s.orchestrator.SetRefereeContext(sessionID, ctx)
}

func (s *ChatService) SearchTranscript(ctx context.Context, sessionID, terms string, limit int) ([]search.Hit, error) {
	return s.index.Search(ctx, sessionID, terms, limit)
}

func (s *ChatService) Subscribe(subscriberID, sessionID string, sink contract.EventSink) {
	s.orchestrator.Subscribe(subscriberID, sessionID, sink)
}

func (s *ChatService) Unsubscribe(subscriberID, sessionID string) {
	s.orchestrator.Unsubscribe(subscriberID, sessionID)
}

func find(roster []domain.Participant, id string) (domain.Participant, bool) {
	for _, p := range roster {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Participant{}, false
}
