package memory

import (
	"context"
	"sync"

	"asq-order-service/internal/domain"
)

// SubmissionStore is an in-memory append-only implementation of app.SubmissionStore.
type SubmissionStore struct {
	mu      sync.RWMutex
	records []domain.Submission
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{}
}

// Append assigns the next log position and publishes the record in one step.
func (s *SubmissionStore) Append(_ context.Context, sub domain.Submission) (domain.Submission, error) {
	sub.Items = append([]string(nil), sub.Items...)
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Seq = uint64(len(s.records)) + 1
	s.records = append(s.records, sub)
	return sub, nil
}

func (s *SubmissionStore) Query(_ context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.records {
		if filter.Matches(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Len reports the number of records in the log.
func (s *SubmissionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
