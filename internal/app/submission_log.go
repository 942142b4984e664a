package app

import (
	"context"
	"fmt"

	"asq-order-service/internal/domain"
)

// SubmissionStore is the durable append-only log (in-memory, Redis, Postgres).
// Append must be all-or-nothing and assign Seq; Query returns records in log order.
type SubmissionStore interface {
	Append(ctx context.Context, sub domain.Submission) (domain.Submission, error)
	Query(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error)
}

// QuestionRepository resolves question definitions (from cache/backing store).
type QuestionRepository interface {
	GetQuestion(ctx context.Context, uid string) (domain.Question, error)
	QuestionsByType(ctx context.Context, presentationID, typeTag string) ([]domain.Question, error)
}

// SubmissionLog validates records against their question before appending them
// to the store. It offers no update or delete.
type SubmissionLog struct {
	store     SubmissionStore
	questions QuestionRepository
}

func NewSubmissionLog(store SubmissionStore, questions QuestionRepository) *SubmissionLog {
	return &SubmissionLog{store: store, questions: questions}
}

// Append rejects records whose question does not resolve (ErrSchema from the
// repository), is not an ordering question (ErrTypeMismatch) or whose items are
// not a permutation of the question's items (ErrMalformedSubmission). Rejected
// records never reach the store.
func (l *SubmissionLog) Append(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	question, err := l.questions.GetQuestion(ctx, sub.QuestionUID)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("resolve question %s: %w", sub.QuestionUID, err)
	}
	if question.Type != domain.QuestionType {
		return domain.Submission{}, fmt.Errorf("%w: %s is %q", domain.ErrTypeMismatch, question.UID, question.Type)
	}
	if !isPermutation(question.Items, sub.Items) {
		return domain.Submission{}, fmt.Errorf("%w: order for %s must use each item exactly once", domain.ErrMalformedSubmission, question.UID)
	}
	sub.Type = question.Type
	return l.store.Append(ctx, sub)
}

// Query returns matching records in log order.
func (l *SubmissionLog) Query(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	return l.store.Query(ctx, filter)
}

// isPermutation reports whether got has the same length and multiset of items as want.
func isPermutation(want, got []string) bool {
	if got == nil || len(want) != len(got) {
		return false
	}
	counts := make(map[string]int, len(want))
	for _, item := range want {
		counts[item]++
	}
	for _, item := range got {
		if counts[item] == 0 {
			return false
		}
		counts[item]--
	}
	return true
}
