package grading

import (
	"fmt"
	"strings"
)

// InputError reports a sanitization, length or injection failure.
// Always surfaced to the caller, never retried.
type InputError struct {
	Code    string // EMPTY_INPUT, INPUT_TOO_LONG, PROMPT_INJECTION, ANSWER_TOO_SHORT
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input rejected (%s): %s", e.Code, e.Message)
}

// SchemaError reports model output that failed structural or semantic
// validation even after one repair attempt. It triggers escalation and is
// never surfaced to the caller directly.
type SchemaError struct {
	Engine string
	Errs   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s returned invalid grading payload: %s", e.Engine, strings.Join(e.Errs, "; "))
}

// ProviderError reports a transport, auth or quota failure from a model
// adapter. Retryable failures trigger escalation or heuristic fallback;
// non-retryable ones surface as service configuration errors.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// QuestionContextError reports a missing or unsupported question.
// Surfaced to the caller; nothing is persisted.
type QuestionContextError struct {
	Code       string // QUESTION_NOT_FOUND, NOT_SHORT_ANSWER, NOT_SUPPORTED_SUBJECT, INVALID_QUESTION
	QuestionID string
	Message    string
}

func (e *QuestionContextError) Error() string {
	return fmt.Sprintf("question %s: %s (%s)", e.QuestionID, e.Message, e.Code)
}
