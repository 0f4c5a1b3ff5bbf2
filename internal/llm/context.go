package llm

import "context"

type contextKey string

const purposeKey contextKey = "llm_purpose"

// Purpose labels recorded with each request in the audit log. The
// grading path tags calls so cost reports can split primary grading
// from repair re-prompts and escalations.
const (
	PurposeGrading    = "grading"
	PurposeRepair     = "grading-repair"
	PurposeEscalation = "grading-escalation"
)

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context, or "unknown"
// for calls made outside the grading path.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}
