package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"asq-order-service/internal/domain"
	"asq-order-service/internal/plugin"
)

// Emitter pushes events to connected clients. Delivery is fire-and-forget.
type Emitter interface {
	EmitToRole(sessionID, role, event string, payload any) error
	EmitToSocket(socketID, event string, payload any) error
}

// QuestionWriter persists question definitions extracted from markup.
type QuestionWriter interface {
	SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error
}

// Extractor pulls ordering questions out of presentation markup and returns the
// rewritten markup.
type Extractor interface {
	Extract(presentationID, html string) (string, []domain.Question, error)
}

// OrderService contains the ordering question use cases.
type OrderService struct {
	log       *SubmissionLog
	questions QuestionRepository
	emitter   Emitter
	writer    QuestionWriter
	extractor Extractor
	now       func() time.Time
}

// Option customizes an OrderService.
type Option func(*OrderService)

// WithClock overrides the submit timestamp source; tests use it for deterministic dates.
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// WithDefinitions enables markup definition through extractor and writer.
func WithDefinitions(extractor Extractor, writer QuestionWriter) Option {
	return func(s *OrderService) {
		s.extractor = extractor
		s.writer = writer
	}
}

func NewOrderService(store SubmissionStore, questions QuestionRepository, emitter Emitter, opts ...Option) *OrderService {
	s := &OrderService{
		log:       NewSubmissionLog(store, questions),
		questions: questions,
		emitter:   emitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the ordering question handlers on every hook.
func (s *OrderService) Register(reg *plugin.Registry) {
	reg.OnDefine(domain.QuestionType, s.Define)
	reg.OnIngest(domain.QuestionType, s.Ingest)
	reg.OnConnectPresenter(domain.QuestionType, s.PresenterConnected)
	reg.OnConnectViewer(domain.QuestionType, s.ViewerConnected)
}

// Submit appends an answer to the log and pushes the question's progress to the
// presenters of the session.
func (s *OrderService) Submit(ctx context.Context, req domain.AnswerRequest) (domain.Submission, error) {
	stored, err := s.log.Append(ctx, domain.Submission{
		QuestionUID: req.QuestionUID,
		ExerciseID:  req.ExerciseID,
		Answeree:    req.Answeree,
		Session:     req.Session,
		Items:       req.Submission,
		SubmitDate:  s.now().UTC(),
		Confidence:  req.Confidence,
	})
	if err != nil {
		return domain.Submission{}, err
	}
	s.notifyProgress(ctx, stored.Session, stored.QuestionUID)
	return stored, nil
}

// Ingest is the onIngest handler. Answers to other question types pass through
// untouched so the next plugin can handle them; stored answers come back with
// HandledBy set.
func (s *OrderService) Ingest(ctx context.Context, req domain.AnswerRequest) (domain.AnswerRequest, error) {
	if _, err := s.Submit(ctx, req); err != nil {
		if errors.Is(err, domain.ErrTypeMismatch) {
			return req, nil
		}
		return req, err
	}
	req.HandledBy = domain.QuestionType
	return req, nil
}

// PresenterView returns every participant's latest order for one question.
func (s *OrderService) PresenterView(ctx context.Context, sessionID, questionUID string) ([]domain.PresenterEntry, error) {
	subs, err := s.log.Query(ctx, domain.SubmissionFilter{Session: sessionID, Question: questionUID})
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	return BuildPresenterView(subs), nil
}

// ViewerView returns the participant's latest order for each answered question in questionUIDs.
func (s *OrderService) ViewerView(ctx context.Context, sessionID, participantID string, questionUIDs []string) ([]domain.ViewerEntry, error) {
	if questionUIDs == nil {
		questionUIDs = []string{}
	}
	subs, err := s.log.Query(ctx, domain.SubmissionFilter{
		Session:     sessionID,
		Participant: participantID,
		Questions:   questionUIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	return BuildViewerView(subs), nil
}

// notifyProgress pushes the full aggregate for the question. A lost push is not
// retried; presenters recover through PresenterReconnect.
func (s *OrderService) notifyProgress(ctx context.Context, sessionID, questionUID string) {
	entries, err := s.PresenterView(ctx, sessionID, questionUID)
	if err != nil {
		slog.Warn("progress view failed", "session", sessionID, "question", questionUID, "err", err)
		return
	}
	event := domain.ProgressEvent{
		QuestionType: domain.QuestionType,
		QuestionUID:  questionUID,
		Submissions:  entries,
	}
	if err := s.emitter.EmitToRole(sessionID, domain.RolePresenter, domain.EventProgress, event); err != nil {
		slog.Warn("progress push failed", "session", sessionID, "question", questionUID, "err", err)
	}
}

// PresenterReconnect rebuilds the presenter bundle for every ordering question of
// the presentation. Questions without submissions map to an empty list.
func (s *OrderService) PresenterReconnect(ctx context.Context, sessionID, presentationID string) (domain.RestorePresenterEvent, error) {
	uids, err := s.questionUIDs(ctx, presentationID)
	if err != nil {
		return domain.RestorePresenterEvent{}, err
	}
	subs, err := s.log.Query(ctx, domain.SubmissionFilter{Session: sessionID, Questions: uids})
	if err != nil {
		return domain.RestorePresenterEvent{}, fmt.Errorf("query submissions: %w", err)
	}
	return domain.RestorePresenterEvent{
		QuestionType: domain.QuestionType,
		Questions:    buildPresenterBundle(uids, subs),
	}, nil
}

// ViewerReconnect rebuilds one participant's latest orders across the presentation.
func (s *OrderService) ViewerReconnect(ctx context.Context, sessionID, presentationID, participantID string) (domain.RestoreViewerEvent, error) {
	uids, err := s.questionUIDs(ctx, presentationID)
	if err != nil {
		return domain.RestoreViewerEvent{}, err
	}
	entries, err := s.ViewerView(ctx, sessionID, participantID, uids)
	if err != nil {
		return domain.RestoreViewerEvent{}, err
	}
	return domain.RestoreViewerEvent{QuestionType: domain.QuestionType, Questions: entries}, nil
}

// PresenterConnected is the onConnectPresenter handler.
func (s *OrderService) PresenterConnected(ctx context.Context, info domain.ConnectInfo) (domain.ConnectInfo, error) {
	if info.SessionID == "" {
		return info, nil
	}
	event, err := s.PresenterReconnect(ctx, info.SessionID, info.PresentationID)
	if err != nil {
		return info, err
	}
	if err := s.emitter.EmitToSocket(info.SocketID, domain.EventRestorePresenter, event); err != nil {
		slog.Warn("restore presenter push failed", "socket", info.SocketID, "err", err)
	}
	return info, nil
}

// ViewerConnected is the onConnectViewer handler.
func (s *OrderService) ViewerConnected(ctx context.Context, info domain.ConnectInfo) (domain.ConnectInfo, error) {
	if info.SessionID == "" {
		return info, nil
	}
	event, err := s.ViewerReconnect(ctx, info.SessionID, info.PresentationID, info.WhitelistID)
	if err != nil {
		return info, err
	}
	if err := s.emitter.EmitToSocket(info.SocketID, domain.EventRestoreViewer, event); err != nil {
		slog.Warn("restore viewer push failed", "socket", info.SocketID, "err", err)
	}
	return info, nil
}

// Define is the onDefine handler: it extracts ordering questions from the markup,
// persists them and hands the rewritten markup to the next handler.
func (s *OrderService) Define(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if s.extractor == nil || s.writer == nil {
		return doc, nil
	}
	html, questions, err := s.extractor.Extract(doc.PresentationID, doc.HTML)
	if err != nil {
		return doc, fmt.Errorf("extract questions: %w", err)
	}
	if len(questions) > 0 {
		if err := s.writer.SaveQuestions(ctx, doc.PresentationID, questions); err != nil {
			return doc, fmt.Errorf("save questions: %w", err)
		}
	}
	doc.HTML = html
	doc.Questions = append(doc.Questions, questions...)
	return doc, nil
}

func (s *OrderService) questionUIDs(ctx context.Context, presentationID string) ([]string, error) {
	questions, err := s.questions.QuestionsByType(ctx, presentationID, domain.QuestionType)
	if err != nil {
		return nil, fmt.Errorf("resolve questions: %w", err)
	}
	uids := make([]string, 0, len(questions))
	for _, q := range questions {
		uids = append(uids, q.UID)
	}
	return uids, nil
}
