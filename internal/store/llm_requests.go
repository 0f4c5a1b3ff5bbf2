package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shortmark/shortmark/internal/llm"
)

// AppendLLMRequest records one model API call for cost and latency
// accounting. Implements llm.RequestLogRepo.
func (s *Store) AppendLLMRequest(ctx context.Context, log llm.RequestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_requests
			(provider, model, purpose, input_tokens, output_tokens, latency_ms,
			 cost_usd, success, error_message, request_body, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.Provider, log.Model, log.Purpose, log.InputTokens, log.OutputTokens,
		log.LatencyMs, log.CostUSD, log.Success, log.ErrorMessage,
		log.RequestBody, log.ResponseBody, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append llm request: %w", err)
	}
	return nil
}

// UsageTotals aggregates recorded model calls.
type UsageTotals struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Usage sums request counts, tokens and cost across all recorded calls
// since a cutoff. A zero cutoff sums everything.
func (s *Store) Usage(ctx context.Context, since time.Time) (UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM llm_requests WHERE created_at >= ?`, since,
	).Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("query usage: %w", err)
	}
	return t, nil
}
