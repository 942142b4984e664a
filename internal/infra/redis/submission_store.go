package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"asq-order-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrSessionRequired is returned by Query when the filter does not name a session;
// the log is partitioned per session.
var ErrSessionRequired = errors.New("submission query requires a session")

// SubmissionStore keeps one append-only Redis list per session:
//
//	RPUSH order:session:{session}:submissions {json}
//
// A record's Seq is its 1-based list position, so log order is list order.
type SubmissionStore struct {
	client *redis.Client
}

func NewSubmissionStore(client *redis.Client) *SubmissionStore {
	return &SubmissionStore{client: client}
}

func (s *SubmissionStore) Append(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	sub.Seq = 0
	data, err := json.Marshal(sub)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("encode submission: %w", err)
	}
	n, err := s.client.RPush(ctx, s.key(sub.Session), data).Result()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("append submission: %w", err)
	}
	sub.Seq = uint64(n)
	return sub, nil
}

func (s *SubmissionStore) Query(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	if filter.Session == "" {
		return nil, ErrSessionRequired
	}
	raws, err := s.client.LRange(ctx, s.key(filter.Session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	out := make([]domain.Submission, 0, len(raws))
	for i, raw := range raws {
		var sub domain.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decode submission %d: %w", i+1, err)
		}
		sub.Seq = uint64(i + 1)
		if filter.Matches(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SubmissionStore) key(sessionID string) string {
	return "order:session:" + sessionID + ":submissions"
}
