package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shortmark/shortmark/internal/grading"
)

type fakeGrader struct {
	res   *grading.Result
	err   error
	calls []grading.Call
}

func (f *fakeGrader) Grade(_ context.Context, call grading.Call) (*grading.Result, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func testResult() *grading.Result {
	return &grading.Result{
		Record: &grading.Record{
			ID:      "rec-1",
			Engine:  "deepseek-chat",
			Cascade: grading.Cascade{Stage: grading.StagePrimary},
			Score:   grading.ScoreResult{BasePct: 0.9, FinalPct: 0.9, PointsAwarded: 9, Label: grading.LabelCorrect},
		},
		UI: grading.UIBlock{ShowSolution: true, SolutionText: "Ice is less dense.", StudentFeedback: "Nice work."},
	}
}

func postGrade(t *testing.T, handler http.Handler, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/grade", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"attemptId":     "a1",
		"questionId":    "q1",
		"studentAnswer": "Because ice is less dense than water.",
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(&fakeGrader{res: testResult()}, Config{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestGrade_HappyPath(t *testing.T) {
	grader := &fakeGrader{res: testResult()}
	srv := NewServer(grader, Config{}, nil)

	rec := postGrade(t, srv.Router(), validBody(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp gradeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.Grading == nil || resp.Grading.ID != "rec-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.UI.ShowSolution {
		t.Error("ui block must expose the solution")
	}
	if len(grader.calls) != 1 || grader.calls[0].QuestionID != "q1" {
		t.Errorf("grader called with %+v", grader.calls)
	}
}

func TestGrade_OptionsForwarded(t *testing.T) {
	grader := &fakeGrader{res: testResult()}
	srv := NewServer(grader, Config{}, nil)

	body := validBody()
	body["options"] = map[string]any{
		"persistWeakRubric": true,
		"escalation":        "never",
		"maxLatencyMs":      2500,
	}
	rec := postGrade(t, srv.Router(), body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	opts := grader.calls[0].Options
	if !opts.PersistWeakRubric {
		t.Error("persistWeakRubric not forwarded")
	}
	if opts.Escalation != grading.EscalateNever {
		t.Errorf("got escalation %q", opts.Escalation)
	}
	if opts.MaxLatency != 2500*time.Millisecond {
		t.Errorf("got maxLatency %v", opts.MaxLatency)
	}
}

func TestGrade_ValidationErrors(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(map[string]any)
		wantCode string
	}{
		{"missing ids", func(b map[string]any) { delete(b, "attemptId") }, "BAD_REQUEST"},
		{"empty answer", func(b map[string]any) { b["studentAnswer"] = "" }, "EMPTY_INPUT"},
		{"overlong answer", func(b map[string]any) { b["studentAnswer"] = strings.Repeat("a", 1300) }, "INPUT_TOO_LONG"},
		{"bad escalation", func(b map[string]any) { b["options"] = map[string]any{"escalation": "sometimes"} }, "BAD_REQUEST"},
		{"latency too low", func(b map[string]any) { b["options"] = map[string]any{"maxLatencyMs": 200} }, "BAD_REQUEST"},
		{"latency too high", func(b map[string]any) { b["options"] = map[string]any{"maxLatencyMs": 60000} }, "BAD_REQUEST"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			grader := &fakeGrader{res: testResult()}
			srv := NewServer(grader, Config{}, nil)

			body := validBody()
			c.mutate(body)
			rec := postGrade(t, srv.Router(), body, nil)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400: %s", rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.OK {
				t.Error("got ok=true on an error response")
			}
			if resp.Error.Code != c.wantCode {
				t.Errorf("got code %q, want %q", resp.Error.Code, c.wantCode)
			}
			if len(grader.calls) != 0 {
				t.Error("grader must not be called for invalid requests")
			}
		})
	}
}

func TestGrade_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"input error",
			&grading.InputError{Code: "PROMPT_INJECTION", Message: "nope"},
			http.StatusBadRequest, "PROMPT_INJECTION",
		},
		{
			"question not found",
			&grading.QuestionContextError{Code: "QUESTION_NOT_FOUND", QuestionID: "q9", Message: "question not found"},
			http.StatusNotFound, "QUESTION_NOT_FOUND",
		},
		{
			"wrong question type",
			&grading.QuestionContextError{Code: "NOT_SHORT_ANSWER", QuestionID: "q1", Message: "nope"},
			http.StatusBadRequest, "NOT_SHORT_ANSWER",
		},
		{
			"provider failure",
			&grading.ProviderError{Provider: "deepseek", Retryable: true, Err: errors.New("down")},
			http.StatusBadGateway, "GRADING_UNAVAILABLE",
		},
		{
			"unknown failure",
			errors.New("boom"),
			http.StatusInternalServerError, "INTERNAL",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := NewServer(&fakeGrader{err: c.err}, Config{}, nil)
			rec := postGrade(t, srv.Router(), validBody(), nil)

			if rec.Code != c.wantStatus {
				t.Fatalf("got status %d, want %d", rec.Code, c.wantStatus)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.OK {
				t.Error("got ok=true on an error response")
			}
			if resp.Error.Code != c.wantCode {
				t.Errorf("got code %q, want %q", resp.Error.Code, c.wantCode)
			}
		})
	}
}

func TestGrade_AuthRequired(t *testing.T) {
	srv := NewServer(&fakeGrader{res: testResult()}, Config{Token: "secret"}, nil)
	router := srv.Router()

	rec := postGrade(t, router, validBody(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}

	rec = postGrade(t, router, validBody(), map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401 for wrong token", rec.Code)
	}

	rec = postGrade(t, router, validBody(), map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 with valid token", rec.Code)
	}

	// Health stays open.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	hrec := httptest.NewRecorder()
	router.ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Fatalf("healthz got status %d, want 200", hrec.Code)
	}
}

func TestGrade_RateLimited(t *testing.T) {
	srv := NewServer(&fakeGrader{res: testResult()}, Config{RateLimitPerMinute: 2}, nil)
	router := srv.Router()

	for i := 0; i < 2; i++ {
		if rec := postGrade(t, router, validBody(), nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d got status %d, want 200", i+1, rec.Code)
		}
	}
	rec := postGrade(t, router, validBody(), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429 over budget", rec.Code)
	}
}

func TestRateLimiter_WindowRollover(t *testing.T) {
	l := newRateLimiter(2, time.Minute)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	if !l.Allow("u1") || !l.Allow("u1") {
		t.Fatal("first two requests must pass")
	}
	if l.Allow("u1") {
		t.Fatal("third request in window must fail")
	}
	// Distinct keys track separate budgets.
	if !l.Allow("u2") {
		t.Fatal("other caller must have its own window")
	}

	current = current.Add(time.Minute)
	if !l.Allow("u1") {
		t.Fatal("request after window rollover must pass")
	}
}
