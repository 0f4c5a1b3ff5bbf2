package grading

import (
	"context"
	"errors"

	"github.com/shortmark/shortmark/internal/llm"
)

// Token budget for one grading response. The strong tier gets more room
// because reasoning models spend tokens before the answer.
const (
	defaultMaxTokens = 450
	strongMaxTokens  = 1200
)

// GradeOptions modulates one adapter call.
type GradeOptions struct {
	// Repair asks the model to fix its previous malformed output; the
	// prompt gains a diagnostic preamble.
	Repair bool
	// RubricFacts, when present, are cached key facts embedded in the
	// prompt so the model can skip fact inference.
	RubricFacts []KeyFact
}

// Adapter is the uniform contract every model tier implements. Adapters
// hold no per-request state and are safe for concurrent use.
type Adapter interface {
	Name() string
	Grade(ctx context.Context, req *GradeRequest, opts GradeOptions) (*Payload, error)
}

// ProviderAdapter adapts an llm.Provider to the grading contract: it
// renders the prompt, requests schema-constrained output, and validates
// the response, attempting one syntactic repair before giving up.
type ProviderAdapter struct {
	provider  llm.Provider
	name      string
	tier      llm.Tier
	maxTokens int
}

// NewAdapter wraps an llm.Provider as a grading Adapter.
func NewAdapter(name string, provider llm.Provider, tier llm.Tier) *ProviderAdapter {
	maxTokens := defaultMaxTokens
	if tier == llm.TierStrong {
		maxTokens = strongMaxTokens
	}
	return &ProviderAdapter{
		provider:  provider,
		name:      name,
		tier:      tier,
		maxTokens: maxTokens,
	}
}

func (a *ProviderAdapter) Name() string { return a.name }

// Grade runs one model call for the request. Returns *SchemaError when
// the output stays invalid after syntactic repair, or *ProviderError for
// transport-level failures (with Retryable set for transient classes).
func (a *ProviderAdapter) Grade(ctx context.Context, req *GradeRequest, opts GradeOptions) (*Payload, error) {
	userMsg := BuildPrompt(req, opts.Repair) + BuildRubricHint(opts.RubricFacts)

	// Tag the call so audit rows separate repairs and escalations.
	purpose := llm.PurposeGrading
	switch {
	case opts.Repair:
		purpose = llm.PurposeRepair
	case a.tier == llm.TierStrong:
		purpose = llm.PurposeEscalation
	}
	ctx = llm.WithPurpose(ctx, purpose)

	resp, err := a.provider.Generate(ctx, llm.Request{
		System: SystemPrompt(req.Meta.Subject),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
		Schema:    GradeSchema,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, a.classifyError(err)
	}

	res := Validate(resp.Content)
	if !res.OK {
		if repaired := AttemptRepair(string(resp.Content)); repaired != nil {
			return repaired, nil
		}
		return nil, &SchemaError{Engine: a.name, Errs: res.Errors}
	}

	return res.Payload, nil
}

// classifyError maps provider errors onto the grading taxonomy.
func (a *ProviderAdapter) classifyError(err error) error {
	var invalid *llm.ErrInvalidResponse
	if errors.As(err, &invalid) {
		return &SchemaError{Engine: a.name, Errs: []string{invalid.Err.Error()}}
	}

	var auth *llm.ErrAuth
	if errors.As(err, &auth) {
		return &ProviderError{Provider: a.name, Retryable: false, Err: err}
	}

	// Rate limits, outages, timeouts and unknown transport failures are
	// all worth trying another tier for.
	return &ProviderError{Provider: a.name, Retryable: true, Err: err}
}

// Registry holds the configured adapter per tier. Constructed once at
// startup and injected, so the orchestrator carries no hidden global
// state and tests can hand it fakes.
type Registry struct {
	primary Adapter
	strong  Adapter
}

// NewRegistry builds a Registry. strong may be nil when no escalation
// tier is configured.
func NewRegistry(primary, strong Adapter) *Registry {
	return &Registry{primary: primary, strong: strong}
}

// Primary returns the fast-tier adapter.
func (r *Registry) Primary() Adapter { return r.primary }

// Strong returns the escalation-tier adapter, or nil when unconfigured.
func (r *Registry) Strong() Adapter { return r.strong }
