package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"asq-order-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SubmissionStore is the durable append-only log. Seq comes from a bigserial, so
// log order is insertion order; rows are never updated or deleted.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Append(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	items, err := json.Marshal(sub.Items)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal items: %w", err)
	}
	var confidence *int32
	if sub.Confidence != nil {
		c := int32(*sub.Confidence)
		confidence = &c
	}
	var seq int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO order_submissions (session_id, question_uid, exercise_id, answeree, type, items, confidence, submit_date)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING seq`,
		sub.Session, sub.QuestionUID, sub.ExerciseID, sub.Answeree, sub.Type, string(items), confidence, sub.SubmitDate,
	).Scan(&seq)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("append submission: %w", err)
	}
	sub.Seq = uint64(seq)
	return sub, nil
}

func (s *SubmissionStore) Query(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	where, args := whereClause(filter)
	rows, err := s.pool.Query(ctx, `
		SELECT seq, session_id, question_uid, exercise_id, answeree, type, items, confidence, submit_date
		FROM order_submissions`+where+`
		ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		var (
			sub        domain.Submission
			seq        int64
			items      []byte
			confidence *int32
			submitDate time.Time
		)
		if err := rows.Scan(&seq, &sub.Session, &sub.QuestionUID, &sub.ExerciseID, &sub.Answeree, &sub.Type, &items, &confidence, &submitDate); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal(items, &sub.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		if confidence != nil {
			c := int(*confidence)
			sub.Confidence = &c
		}
		sub.Seq = uint64(seq)
		sub.SubmitDate = submitDate.UTC()
		out = append(out, sub)
	}
	return out, rows.Err()
}

func whereClause(filter domain.SubmissionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Session != "" {
		add("session_id=$%d", filter.Session)
	}
	if filter.Question != "" {
		add("question_uid=$%d", filter.Question)
	}
	if filter.Participant != "" {
		add("answeree=$%d", filter.Participant)
	}
	if filter.Questions != nil {
		add("question_uid = ANY($%d)", filter.Questions)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
