package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shortmark/shortmark/internal/grading"
)

// Question returns the question context for id, or (nil, nil) when no
// such question exists.
func (s *Store) Question(ctx context.Context, questionID string) (*grading.QuestionContext, error) {
	var q grading.QuestionContext
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, subject, topic, year, stem_text, solution_text, weight
		FROM questions WHERE id = ?`, questionID,
	).Scan(&q.ID, &q.Type, &q.Subject, &q.Topic, &q.Year, &q.StemText, &q.SolutionText, &q.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query question: %w", err)
	}
	return &q, nil
}

// PutQuestion inserts or replaces a question. Used by seeding and tests;
// the grading path itself never writes questions.
func (s *Store) PutQuestion(ctx context.Context, q *grading.QuestionContext) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, type, subject, topic, year, stem_text, solution_text, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			subject = excluded.subject,
			topic = excluded.topic,
			year = excluded.year,
			stem_text = excluded.stem_text,
			solution_text = excluded.solution_text,
			weight = excluded.weight`,
		q.ID, q.Type, q.Subject, q.Topic, q.Year, q.StemText, q.SolutionText, q.Weight)
	if err != nil {
		return fmt.Errorf("put question: %w", err)
	}
	return nil
}
