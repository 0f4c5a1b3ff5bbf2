package grading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// QuestionType accepted for free-text grading.
const QuestionTypeShortAnswer = "short_answer"

// Timeout bounds for one grading call. The per-request override is
// clamped into [MinCallTimeout, MaxCallTimeout].
const (
	DefaultCallTimeout = 4 * time.Second
	MinCallTimeout     = 1 * time.Second
	MaxCallTimeout     = 10 * time.Second
)

// Store is the document-store surface the orchestrator consumes.
// Implementations provide per-document atomicity; the grading upsert is
// a single merge-write keyed by (attemptId, questionId).
type Store interface {
	// Question returns the question context, or (nil, nil) when the
	// document does not exist.
	Question(ctx context.Context, questionID string) (*QuestionContext, error)

	// AttemptMeta returns hint/don't-know signals for an attempt. An
	// absent document is zero values, not an error.
	AttemptMeta(ctx context.Context, attemptID, questionID string) (AttemptMeta, error)

	// UpsertGrading overwrites the grading record at its (attemptId,
	// questionId) key. Last writer wins.
	UpsertGrading(ctx context.Context, rec *Record) error

	// Rubric returns the cached weak rubric for a content hash, or
	// (nil, nil) when absent.
	Rubric(ctx context.Context, contentHash string) (*WeakRubric, error)

	// PutRubric stores a new weak rubric.
	PutRubric(ctx context.Context, r *WeakRubric) error

	// TouchRubric increments a rubric's usage counter.
	TouchRubric(ctx context.Context, contentHash string) error
}

// Config tunes the orchestrator.
type Config struct {
	// Provider is the configured provider name recorded in provenance.
	Provider string
	// EnableEscalation allows the strong tier to be consulted.
	EnableEscalation bool
	// EnableHeuristic allows the model-free fallback.
	EnableHeuristic bool
	// PersistRubrics enables the weak-rubric cache writes.
	PersistRubrics bool
	// DefaultTimeout bounds a grading call when the request does not
	// override it.
	DefaultTimeout time.Duration
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig(provider string) Config {
	return Config{
		Provider:         provider,
		EnableEscalation: true,
		EnableHeuristic:  true,
		PersistRubrics:   true,
		DefaultTimeout:   DefaultCallTimeout,
	}
}

// CallOptions are the per-request knobs of a grading call.
type CallOptions struct {
	PersistWeakRubric bool
	Escalation        EscalationPolicy
	MaxLatency        time.Duration
}

// Call is one grading request as received from the transport layer.
type Call struct {
	AttemptID     string
	QuestionID    string
	StudentAnswer string
	Options       CallOptions
}

// UIBlock is the presentation payload returned alongside the record.
type UIBlock struct {
	ShowSolution    bool   `json:"showSolution"`
	SolutionText    string `json:"solutionText"`
	StudentFeedback string `json:"studentFeedback"`
	ParentFeedback  string `json:"parentFeedback"`
}

// Result is the successful outcome of one grading call.
type Result struct {
	Record *Record `json:"grading"`
	UI     UIBlock `json:"ui"`
}

// Service conducts the grading pipeline: fetch context, sanitize, grade
// with the primary tier, escalate when warranted, merge, score, persist.
type Service struct {
	adapters *Registry
	store    Store
	cfg      Config
	logger   *slog.Logger
}

// NewService builds a Service. logger may be nil.
func NewService(adapters *Registry, store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultCallTimeout
	}
	return &Service{adapters: adapters, store: store, cfg: cfg, logger: logger}
}

// Grade runs the full pipeline for one submission. On success exactly
// one Record has been persisted. Input and question-context failures
// surface to the caller with nothing persisted; model-path failures are
// absorbed into escalation or the heuristic fallback.
func (s *Service) Grade(ctx context.Context, call Call) (*Result, error) {
	q, err := s.fetchQuestion(ctx, call.QuestionID)
	if err != nil {
		return nil, err
	}

	student, stem, reference, err := ValidateGradingInputs(call.StudentAnswer, q.StemText, q.SolutionText)
	if err != nil {
		return nil, err
	}

	req := &GradeRequest{
		Stem:            stem,
		ReferenceAnswer: reference,
		StudentAnswer:   student,
		Meta: RequestMeta{
			Subject: q.Subject,
			Topic:   q.Topic,
			Year:    q.Year,
			Weight:  q.Weight,
		},
	}

	meta, err := s.store.AttemptMeta(ctx, call.AttemptID, call.QuestionID)
	if err != nil {
		// Attempt metadata is advisory; grade without penalties rather
		// than failing the whole call.
		s.logger.Warn("attempt metadata fetch failed", "attemptId", call.AttemptID, "error", err)
		meta = AttemptMeta{}
	}

	rubric := s.lookupRubric(ctx, req)

	gctx, cancel := context.WithTimeout(ctx, s.callTimeout(call.Options.MaxLatency))
	defer cancel()

	out, err := s.performGrading(gctx, req, call.Options.Escalation, rubric)
	if err != nil {
		return nil, err
	}

	score := CalculateScore(out.payload, meta.HintUses, meta.UsedDontKnow, q.Weight, utf8.RuneCountInString(student))

	rec := &Record{
		ID:        uuid.NewString(),
		Engine:    out.engine,
		Provider:  out.provider,
		Cascade:   Cascade{Stage: out.stage, EscalatedTo: out.escalatedTo},
		Payload:   *out.payload,
		Score:     score,
		Refs:      Refs{QuestionID: call.QuestionID, AttemptID: call.AttemptID},
		Timestamp: time.Now().UTC(),
	}
	// The persisted overall block reports the pre-penalty percentage and
	// the adjusted confidence.
	rec.Payload.Overall = Overall{
		Pct:        score.BasePct,
		Label:      score.Label,
		Confidence: score.AdjustedConfidence,
	}

	if err := s.store.UpsertGrading(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist grading: %w", err)
	}

	if out.stage != StageHeuristic {
		s.persistRubricAsync(ctx, call, req, out, rubric)
	}

	return &Result{
		Record: rec,
		UI: UIBlock{
			ShowSolution:    true,
			SolutionText:    q.SolutionText,
			StudentFeedback: rec.Payload.Explanations.StudentFriendly,
			ParentFeedback:  rec.Payload.Explanations.ParentFriendly,
		},
	}, nil
}

func (s *Service) fetchQuestion(ctx context.Context, questionID string) (*QuestionContext, error) {
	q, err := s.store.Question(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, err)
	}
	if q == nil {
		return nil, &QuestionContextError{Code: "QUESTION_NOT_FOUND", QuestionID: questionID, Message: "question not found"}
	}
	if q.Type != QuestionTypeShortAnswer {
		return nil, &QuestionContextError{Code: "NOT_SHORT_ANSWER", QuestionID: questionID, Message: "only short-answer questions can be graded"}
	}
	if !SupportedSubject(q.Subject) {
		return nil, &QuestionContextError{Code: "NOT_SUPPORTED_SUBJECT", QuestionID: questionID, Message: fmt.Sprintf("subject %q is not supported", q.Subject)}
	}
	if q.StemText == "" || q.SolutionText == "" {
		return nil, &QuestionContextError{Code: "INVALID_QUESTION", QuestionID: questionID, Message: "question is missing stem or solution"}
	}
	return q, nil
}

func (s *Service) callTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.cfg.DefaultTimeout
	}
	if requested < MinCallTimeout {
		return MinCallTimeout
	}
	if requested > MaxCallTimeout {
		return MaxCallTimeout
	}
	return requested
}

// gradingOutcome carries the winning payload plus provenance.
type gradingOutcome struct {
	payload     *Payload
	engine      string
	provider    string
	stage       CascadeStage
	escalatedTo string
}

// performGrading walks the cascade: primary grade with one repair
// re-prompt, escalation decision, optional strong-tier grade and merge,
// heuristic fallback. Model-path errors are absorbed here; only a total
// failure with the heuristic disabled propagates.
func (s *Service) performGrading(ctx context.Context, req *GradeRequest, policy EscalationPolicy, rubric *WeakRubric) (gradingOutcome, error) {
	if policy == "" {
		policy = EscalateAuto
	}

	opts := GradeOptions{}
	if rubric != nil {
		opts.RubricFacts = rubric.KeyFacts
	}

	primary := s.adapters.Primary()

	var primaryPayload *Payload
	var primaryErr error

	if primary != nil {
		primaryPayload, primaryErr = primary.Grade(ctx, req, opts)

		var schemaErr *SchemaError
		if errors.As(primaryErr, &schemaErr) {
			// One repair re-prompt with the diagnostic preamble, then
			// the output is either valid or hard-invalid.
			repairOpts := opts
			repairOpts.Repair = true
			primaryPayload, primaryErr = primary.Grade(ctx, req, repairOpts)
		}
		if primaryErr != nil {
			s.logAbsorbed(primary.Name(), primaryErr)
			primaryPayload = nil
		}
	}

	decision := s.decideEscalation(policy, primaryPayload)

	if decision.Escalate && s.cfg.EnableEscalation && s.adapters.Strong() != nil {
		strong := s.adapters.Strong()
		secondary, err := strong.Grade(ctx, req, opts)
		if err != nil {
			s.logAbsorbed(strong.Name(), err)
		} else if primaryPayload != nil {
			answerLen := utf8.RuneCountInString(req.StudentAnswer)
			pScore := CalculateScore(primaryPayload, 0, false, req.Meta.Weight, answerLen)
			sScore := CalculateScore(secondary, 0, false, req.Meta.Weight, answerLen)
			merged := MergeResults(primaryPayload, secondary, pScore, sScore)
			return gradingOutcome{
				payload:     merged,
				engine:      strong.Name(),
				provider:    s.cfg.Provider,
				stage:       StageEscalated,
				escalatedTo: strong.Name(),
			}, nil
		} else {
			// Nothing to merge: the primary never produced a payload.
			return gradingOutcome{
				payload:     secondary,
				engine:      strong.Name(),
				provider:    s.cfg.Provider,
				stage:       StageEscalated,
				escalatedTo: strong.Name(),
			}, nil
		}
	}

	if primaryPayload != nil {
		return gradingOutcome{
			payload:  primaryPayload,
			engine:   primary.Name(),
			provider: s.cfg.Provider,
			stage:    StagePrimary,
		}, nil
	}

	if s.cfg.EnableHeuristic {
		return gradingOutcome{
			payload:  HeuristicGrade(req),
			engine:   HeuristicEngine,
			provider: "internal",
			stage:    StageHeuristic,
		}, nil
	}

	if primaryErr != nil {
		return gradingOutcome{}, primaryErr
	}
	return gradingOutcome{}, fmt.Errorf("no grading engine available")
}

func (s *Service) decideEscalation(policy EscalationPolicy, primaryPayload *Payload) EscalationDecision {
	switch policy {
	case EscalateNever:
		return EscalationDecision{}
	case EscalateAlways:
		return EscalationDecision{Escalate: true, Reason: ReasonManualRequest}
	default:
		if primaryPayload == nil {
			return EscalationDecision{Escalate: true, Reason: ReasonInvalidJSON}
		}
		return ShouldEscalate(primaryPayload.Overall.Confidence, primaryPayload.Overall.Pct, true)
	}
}

// logAbsorbed records a model-path error that the pipeline converted
// into an escalation or fallback, with enough context to tell a provider
// outage from an isolated bad prompt.
func (s *Service) logAbsorbed(engine string, err error) {
	class := "unknown"
	var schemaErr *SchemaError
	var provErr *ProviderError
	switch {
	case errors.As(err, &schemaErr):
		class = "schema"
	case errors.As(err, &provErr):
		if provErr.Retryable {
			class = "provider_transient"
		} else {
			class = "provider_permanent"
		}
	case errors.Is(err, context.DeadlineExceeded):
		class = "timeout"
	}
	s.logger.Warn("grading engine error absorbed", "engine", engine, "class", class, "error", err)
}

// RubricContentHash derives the weak-rubric cache key from the reference
// answer, the engine that inferred the facts, and the prompt version.
func RubricContentHash(referenceAnswer, engine string) string {
	sum := sha256.Sum256([]byte(referenceAnswer + ":" + engine + ":" + PromptVersion))
	return hex.EncodeToString(sum[:])
}

// lookupRubric fetches the cached key facts for this reference answer,
// if any. Failures are advisory.
func (s *Service) lookupRubric(ctx context.Context, req *GradeRequest) *WeakRubric {
	if !s.cfg.PersistRubrics || s.adapters.Primary() == nil {
		return nil
	}
	hash := RubricContentHash(req.ReferenceAnswer, s.adapters.Primary().Name())
	r, err := s.store.Rubric(ctx, hash)
	if err != nil {
		s.logger.Warn("rubric lookup failed", "error", err)
		return nil
	}
	return r
}

// persistRubricAsync writes or touches the weak-rubric cache without
// blocking the response.
func (s *Service) persistRubricAsync(ctx context.Context, call Call, req *GradeRequest, out gradingOutcome, existing *WeakRubric) {
	if !s.cfg.PersistRubrics || !call.Options.PersistWeakRubric || len(out.payload.InferredKeyFacts) == 0 {
		return
	}
	if s.adapters.Primary() == nil {
		return
	}

	engine := out.engine
	hash := RubricContentHash(req.ReferenceAnswer, s.adapters.Primary().Name())
	bg := context.WithoutCancel(ctx)

	go func() {
		var err error
		if existing != nil {
			err = s.store.TouchRubric(bg, hash)
		} else {
			err = s.store.PutRubric(bg, &WeakRubric{
				ContentHash:    hash,
				QuestionID:     call.QuestionID,
				KeyFacts:       out.payload.InferredKeyFacts,
				Misconceptions: out.payload.Misconceptions,
				UsageCount:     1,
				CreatedAt:      time.Now().UTC(),
			})
		}
		if err != nil {
			s.logger.Warn("weak rubric persist failed", "engine", engine, "error", err)
		}
	}()
}
