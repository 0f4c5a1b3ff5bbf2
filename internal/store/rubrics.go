package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shortmark/shortmark/internal/grading"
)

// Rubric returns the cached weak rubric for a content hash, or
// (nil, nil) when absent.
func (s *Store) Rubric(ctx context.Context, contentHash string) (*grading.WeakRubric, error) {
	var (
		r              grading.WeakRubric
		factsJSON      string
		misconceptions string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, question_id, key_facts, misconceptions, usage_count, created_at
		FROM weak_rubrics WHERE content_hash = ?`, contentHash,
	).Scan(&r.ContentHash, &r.QuestionID, &factsJSON, &misconceptions, &r.UsageCount, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query rubric: %w", err)
	}

	if err := json.Unmarshal([]byte(factsJSON), &r.KeyFacts); err != nil {
		return nil, fmt.Errorf("decode rubric key facts: %w", err)
	}
	if err := json.Unmarshal([]byte(misconceptions), &r.Misconceptions); err != nil {
		return nil, fmt.Errorf("decode rubric misconceptions: %w", err)
	}
	return &r, nil
}

// PutRubric stores a new weak rubric. Concurrent writers of the same
// content hash collapse into one row; the facts are equivalent because
// the hash pins the reference answer, engine and prompt version.
func (s *Store) PutRubric(ctx context.Context, r *grading.WeakRubric) error {
	facts, err := json.Marshal(r.KeyFacts)
	if err != nil {
		return fmt.Errorf("marshal rubric key facts: %w", err)
	}
	misconceptions, err := json.Marshal(r.Misconceptions)
	if err != nil {
		return fmt.Errorf("marshal rubric misconceptions: %w", err)
	}
	if r.Misconceptions == nil {
		misconceptions = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weak_rubrics (content_hash, question_id, key_facts, misconceptions, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET usage_count = usage_count + 1`,
		r.ContentHash, r.QuestionID, string(facts), string(misconceptions), r.UsageCount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("put rubric: %w", err)
	}
	return nil
}

// TouchRubric increments a rubric's usage counter.
func (s *Store) TouchRubric(ctx context.Context, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE weak_rubrics SET usage_count = usage_count + 1
		WHERE content_hash = ?`, contentHash)
	if err != nil {
		return fmt.Errorf("touch rubric: %w", err)
	}
	return nil
}
