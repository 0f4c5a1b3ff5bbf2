package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortmark/shortmark/internal/grading"
	"github.com/shortmark/shortmark/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func testQuestion() *grading.QuestionContext {
	return &grading.QuestionContext{
		ID:           "q1",
		Type:         grading.QuestionTypeShortAnswer,
		Subject:      grading.SubjectScience,
		Topic:        "States of matter",
		Year:         6,
		StemText:     "Why does ice float on water?",
		SolutionText: "Ice is less dense than liquid water.",
		Weight:       10,
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.Question(ctx, "q1")
	if err != nil {
		t.Fatalf("query missing question: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing question")
	}

	if err := s.PutQuestion(ctx, testQuestion()); err != nil {
		t.Fatalf("put question: %v", err)
	}

	got, err = s.Question(ctx, "q1")
	if err != nil {
		t.Fatalf("query question: %v", err)
	}
	if got == nil {
		t.Fatal("expected question after put")
	}
	if got.Subject != grading.SubjectScience || got.Weight != 10 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestAttemptMetaDefaultsToZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta, err := s.AttemptMeta(ctx, "a1", "q1")
	if err != nil {
		t.Fatalf("attempt meta: %v", err)
	}
	if meta != (grading.AttemptMeta{}) {
		t.Errorf("expected zero meta, got %+v", meta)
	}
}

func TestAttemptSignalsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := grading.AttemptMeta{HintUses: 2, UsedDontKnow: true}
	if err := s.RecordAttemptSignals(ctx, "a1", "q1", want); err != nil {
		t.Fatalf("record signals: %v", err)
	}

	got, err := s.AttemptMeta(ctx, "a1", "q1")
	if err != nil {
		t.Fatalf("attempt meta: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func testRecord(id string, pct float64) *grading.Record {
	return &grading.Record{
		ID:       id,
		Engine:   "deepseek-chat",
		Provider: "deepseek",
		Cascade:  grading.Cascade{Stage: grading.StagePrimary},
		Payload: grading.Payload{
			Overall: grading.Overall{Pct: pct, Label: grading.LabelFor(pct), Confidence: 0.9},
			InferredKeyFacts: []grading.KeyFact{
				{ID: "f1", Text: "density determines floating"},
			},
			Concepts: grading.Concepts{Hit: []string{"f1"}},
			Explanations: grading.Explanations{
				StudentFriendly: "Nice work on the density idea.",
				ParentFriendly:  "The answer shows understanding of density.",
			},
		},
		Score: grading.ScoreResult{
			BasePct: pct, AdjustedConfidence: 0.9, FinalPct: pct,
			PointsAwarded: int(pct * 10), Label: grading.LabelFor(pct),
		},
		Refs:      grading.Refs{QuestionID: "q1", AttemptID: "a1"},
		Timestamp: time.Now().UTC(),
	}
}

func TestUpsertGradingOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGrading(ctx, testRecord("rec-1", 0.90)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertGrading(ctx, testRecord("rec-2", 0.50)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Grading(ctx, "a1", "q1")
	if err != nil {
		t.Fatalf("read grading: %v", err)
	}
	if got == nil {
		t.Fatal("expected grading record")
	}
	if got.ID != "rec-2" {
		t.Errorf("got record %q, want the re-grade to win", got.ID)
	}
	if got.Score.BasePct != 0.50 {
		t.Errorf("got basePct %f, want 0.50", got.Score.BasePct)
	}

	// Still exactly one row per (attempt, question).
	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM attempt_answers").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows, want 1", count)
	}
}

func TestUpsertGradingKeepsAttemptSignals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := grading.AttemptMeta{HintUses: 1, UsedDontKnow: false}
	if err := s.RecordAttemptSignals(ctx, "a1", "q1", meta); err != nil {
		t.Fatalf("record signals: %v", err)
	}
	if err := s.UpsertGrading(ctx, testRecord("rec-1", 0.90)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.AttemptMeta(ctx, "a1", "q1")
	if err != nil {
		t.Fatalf("attempt meta: %v", err)
	}
	if got != meta {
		t.Errorf("grading upsert clobbered signals: %+v", got)
	}
}

func TestGradingMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Grading(context.Background(), "nope", "nope")
	if err != nil {
		t.Fatalf("read grading: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for ungraded attempt")
	}
}

func TestRubricRoundTripAndTouch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.Rubric(ctx, "hash-1")
	if err != nil {
		t.Fatalf("query missing rubric: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing rubric")
	}

	r := &grading.WeakRubric{
		ContentHash: "hash-1",
		QuestionID:  "q1",
		KeyFacts: []grading.KeyFact{
			{ID: "f1", Text: "density determines floating"},
			{ID: "f2", Text: "hydrogen bonds form an open lattice"},
		},
		UsageCount: 1,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.PutRubric(ctx, r); err != nil {
		t.Fatalf("put rubric: %v", err)
	}

	if err := s.TouchRubric(ctx, "hash-1"); err != nil {
		t.Fatalf("touch rubric: %v", err)
	}

	got, err = s.Rubric(ctx, "hash-1")
	if err != nil {
		t.Fatalf("query rubric: %v", err)
	}
	if got == nil {
		t.Fatal("expected rubric after put")
	}
	if len(got.KeyFacts) != 2 || got.KeyFacts[0].ID != "f1" {
		t.Errorf("key facts round trip mismatch: %+v", got.KeyFacts)
	}
	if got.UsageCount != 2 {
		t.Errorf("got usage count %d, want 2 after touch", got.UsageCount)
	}
}

func TestPutRubricConcurrentHashCollapses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &grading.WeakRubric{
		ContentHash: "hash-1",
		QuestionID:  "q1",
		KeyFacts:    []grading.KeyFact{{ID: "f1", Text: "a fact"}},
		UsageCount:  1,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.PutRubric(ctx, r); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutRubric(ctx, r); err != nil {
		t.Fatalf("second put: %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM weak_rubrics").Scan(&count); err != nil {
		t.Fatalf("count rubrics: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rubric rows, want 1", count)
	}
}

func TestAppendLLMRequestAndUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	logs := []llm.RequestLog{
		{Provider: "deepseek", Model: "deepseek-chat", Purpose: "grading", InputTokens: 800, OutputTokens: 200, LatencyMs: 1200, CostUSD: 0.0004, Success: true},
		{Provider: "deepseek", Model: "deepseek-reasoner", Purpose: "grading", InputTokens: 900, OutputTokens: 600, LatencyMs: 4000, CostUSD: 0.0018, Success: true},
		{Provider: "deepseek", Model: "deepseek-chat", Purpose: "grading", Success: false, ErrorMessage: "rate limited"},
	}
	for _, l := range logs {
		if err := s.AppendLLMRequest(ctx, l); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	totals, err := s.Usage(ctx, time.Time{})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if totals.Requests != 3 {
		t.Errorf("got %d requests, want 3", totals.Requests)
	}
	if totals.InputTokens != 1700 || totals.OutputTokens != 800 {
		t.Errorf("token totals mismatch: %+v", totals)
	}
	if totals.CostUSD < 0.0021 || totals.CostUSD > 0.0023 {
		t.Errorf("got cost %f, want ~0.0022", totals.CostUSD)
	}
}
