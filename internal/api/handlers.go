package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/shortmark/shortmark/internal/grading"
)

// Latency override bounds, milliseconds.
const (
	minLatencyMs = 1000
	maxLatencyMs = 10000
)

type gradeOptions struct {
	PersistWeakRubric bool   `json:"persistWeakRubric"`
	Escalation        string `json:"escalation"`
	MaxLatencyMs      int    `json:"maxLatencyMs"`
}

type gradeRequest struct {
	AttemptID     string       `json:"attemptId"`
	QuestionID    string       `json:"questionId"`
	StudentAnswer string       `json:"studentAnswer"`
	Options       gradeOptions `json:"options"`
}

type gradeResponse struct {
	OK      bool            `json:"ok"`
	Grading *grading.Record `json:"grading"`
	UI      grading.UIBlock `json:"ui"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	if code, msg := validateGradeRequest(&req); code != "" {
		writeError(w, http.StatusBadRequest, code, msg)
		return
	}

	res, err := s.grader.Grade(r.Context(), grading.Call{
		AttemptID:     req.AttemptID,
		QuestionID:    req.QuestionID,
		StudentAnswer: req.StudentAnswer,
		Options: grading.CallOptions{
			PersistWeakRubric: req.Options.PersistWeakRubric,
			Escalation:        grading.EscalationPolicy(req.Options.Escalation),
			MaxLatency:        time.Duration(req.Options.MaxLatencyMs) * time.Millisecond,
		},
	})
	if err != nil {
		s.writeGradeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gradeResponse{OK: true, Grading: res.Record, UI: res.UI})
}

// validateGradeRequest applies the edge checks that need no store access.
// Returns an empty code when the request is acceptable.
func validateGradeRequest(req *gradeRequest) (code, msg string) {
	if req.AttemptID == "" || req.QuestionID == "" {
		return "BAD_REQUEST", "attemptId and questionId are required"
	}
	if req.StudentAnswer == "" {
		return "EMPTY_INPUT", "studentAnswer is required"
	}
	if utf8.RuneCountInString(req.StudentAnswer) > grading.MaxInputLen {
		return "INPUT_TOO_LONG", fmt.Sprintf("studentAnswer exceeds %d characters", grading.MaxInputLen)
	}
	switch grading.EscalationPolicy(req.Options.Escalation) {
	case "", grading.EscalateAuto, grading.EscalateNever, grading.EscalateAlways:
	default:
		return "BAD_REQUEST", "options.escalation must be auto, never or always"
	}
	if ms := req.Options.MaxLatencyMs; ms != 0 && (ms < minLatencyMs || ms > maxLatencyMs) {
		return "BAD_REQUEST", fmt.Sprintf("options.maxLatencyMs must be between %d and %d", minLatencyMs, maxLatencyMs)
	}
	return "", ""
}

// writeGradeError maps pipeline errors onto HTTP statuses.
func (s *Server) writeGradeError(w http.ResponseWriter, err error) {
	var inputErr *grading.InputError
	if errors.As(err, &inputErr) {
		writeError(w, http.StatusBadRequest, inputErr.Code, inputErr.Message)
		return
	}

	var qErr *grading.QuestionContextError
	if errors.As(err, &qErr) {
		status := http.StatusBadRequest
		if qErr.Code == "QUESTION_NOT_FOUND" {
			status = http.StatusNotFound
		}
		writeError(w, status, qErr.Code, qErr.Message)
		return
	}

	var provErr *grading.ProviderError
	if errors.As(err, &provErr) {
		s.logger.Error("grading failed", "error", err)
		writeError(w, http.StatusBadGateway, "GRADING_UNAVAILABLE", "grading temporarily unavailable, try again")
		return
	}

	s.logger.Error("grading failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: errorDetail{Code: code, Message: msg}})
}
