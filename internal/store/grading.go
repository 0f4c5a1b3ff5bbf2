package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shortmark/shortmark/internal/grading"
)

// AttemptMeta returns the hint and don't-know signals for an attempt.
// An attempt row that does not exist yet reads as zero values.
func (s *Store) AttemptMeta(ctx context.Context, attemptID, questionID string) (grading.AttemptMeta, error) {
	var meta grading.AttemptMeta
	err := s.db.QueryRowContext(ctx, `
		SELECT hint_uses, used_dont_know
		FROM attempt_answers WHERE attempt_id = ? AND question_id = ?`,
		attemptID, questionID,
	).Scan(&meta.HintUses, &meta.UsedDontKnow)
	if errors.Is(err, sql.ErrNoRows) {
		return grading.AttemptMeta{}, nil
	}
	if err != nil {
		return grading.AttemptMeta{}, fmt.Errorf("query attempt meta: %w", err)
	}
	return meta, nil
}

// RecordAttemptSignals sets the hint and don't-know flags for an attempt
// before grading, creating the row when necessary.
func (s *Store) RecordAttemptSignals(ctx context.Context, attemptID, questionID string, meta grading.AttemptMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, hint_uses, used_dont_know)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(attempt_id, question_id) DO UPDATE SET
			hint_uses = excluded.hint_uses,
			used_dont_know = excluded.used_dont_know`,
		attemptID, questionID, meta.HintUses, meta.UsedDontKnow)
	if err != nil {
		return fmt.Errorf("record attempt signals: %w", err)
	}
	return nil
}

// UpsertGrading writes the grading record under its (attemptId,
// questionId) key. A re-grade overwrites the previous record; hint and
// don't-know signals on the row are preserved.
func (s *Store) UpsertGrading(ctx context.Context, rec *grading.Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal grading record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, grading, graded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(attempt_id, question_id) DO UPDATE SET
			grading = excluded.grading,
			graded_at = excluded.graded_at`,
		rec.Refs.AttemptID, rec.Refs.QuestionID, string(blob), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert grading: %w", err)
	}
	return nil
}

// Grading reads back a persisted grading record, or (nil, nil) when the
// attempt has not been graded.
func (s *Store) Grading(ctx context.Context, attemptID, questionID string) (*grading.Record, error) {
	var blob sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT grading FROM attempt_answers
		WHERE attempt_id = ? AND question_id = ?`,
		attemptID, questionID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query grading: %w", err)
	}
	if !blob.Valid || blob.String == "" {
		return nil, nil
	}

	var rec grading.Record
	if err := json.Unmarshal([]byte(blob.String), &rec); err != nil {
		return nil, fmt.Errorf("decode grading record: %w", err)
	}
	return &rec, nil
}
