package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"asq-order-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionSource loads and stores question definitions as JSONB in Postgres.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) LoadQuestion(ctx context.Context, uid string) (domain.Question, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM order_questions WHERE uid=$1`, uid).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrSchema
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	return q, nil
}

// LoadPresentation returns every question of the presentation in authored order.
func (s *QuestionSource) LoadPresentation(ctx context.Context, presentationID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM order_questions WHERE presentation_id=$1 ORDER BY position, uid`, presentationID)
	if err != nil {
		return nil, fmt.Errorf("load presentation: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveQuestions upserts the questions in one transaction; slice order becomes authored order.
func (s *QuestionSource) SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, q := range questions {
		q.PresentationID = presentationID
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", q.UID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_questions (uid, presentation_id, type, position, data)
			VALUES ($1, $2, $3, $4, $5::jsonb)
			ON CONFLICT (uid) DO UPDATE
			SET presentation_id=EXCLUDED.presentation_id, type=EXCLUDED.type, position=EXCLUDED.position, data=EXCLUDED.data`,
			q.UID, presentationID, q.Type, i, string(data)); err != nil {
			return fmt.Errorf("save question %s: %w", q.UID, err)
		}
	}
	return tx.Commit(ctx)
}
