package grading

import "time"

// Label is the categorical grading outcome shown to the student.
// It is always the deterministic function of the percentage (see LabelFor);
// a model-supplied label that disagrees fails validation.
type Label string

const (
	LabelCorrect       Label = "correct"
	LabelMostlyCorrect Label = "mostly-correct"
	LabelPartial       Label = "partial"
	LabelIncorrect     Label = "incorrect"
)

// Subject identifies a supported grading subject.
type Subject string

const (
	SubjectScience Subject = "science"
	SubjectEnglish Subject = "english"
)

// SupportedSubject reports whether free-text grading is available for s.
func SupportedSubject(s Subject) bool {
	return s == SubjectScience || s == SubjectEnglish
}

// GradeRequest is the sanitized unit of work handed to a grader.
// Immutable once constructed; built once per grading attempt.
type GradeRequest struct {
	Stem            string
	ReferenceAnswer string
	StudentAnswer   string
	Meta            RequestMeta
}

// RequestMeta carries question metadata that shapes the prompt and scoring.
type RequestMeta struct {
	Subject Subject
	Topic   string
	Year    int
	// Weight is the question's point value; finalPct scales into it.
	Weight int
}

// KeyFact is a short phrase inferred from the reference answer that a
// correct student answer should address.
type KeyFact struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PartialConcept marks a key fact only partially addressed, with the
// grader's reason.
type PartialConcept struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Concepts classifies every inferred key fact as hit, partial or missing.
type Concepts struct {
	Hit     []string         `json:"hit"`
	Partial []PartialConcept `json:"partial"`
	Missing []string         `json:"missing"`
}

// Overall is the top-level verdict of a grading payload.
type Overall struct {
	Pct        float64 `json:"pct"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Explanations holds the two feedback audiences.
type Explanations struct {
	StudentFriendly string `json:"student_friendly"`
	ParentFriendly  string `json:"parent_friendly"`
}

// Payload is the canonical structural output of any grader, model-based
// or heuristic. JSON field names follow the persisted wire format.
type Payload struct {
	Overall          Overall      `json:"overall"`
	InferredKeyFacts []KeyFact    `json:"inferred_key_facts"`
	Concepts         Concepts     `json:"concepts"`
	Misconceptions   []string     `json:"misconceptions"`
	Contradictions   []string     `json:"contradictions"`
	Explanations     Explanations `json:"explanations"`
}

// Penalties itemizes score deductions from attempt metadata.
type Penalties struct {
	Hints float64 `json:"hints"`
	IDK   float64 `json:"idk"`
}

// ScoreResult is derived from a Payload plus attempt metadata. BasePct is
// the pre-penalty value shown as ability; FinalPct drives points.
type ScoreResult struct {
	BasePct            float64   `json:"basePct"`
	AdjustedConfidence float64   `json:"adjustedConfidence"`
	Penalties          Penalties `json:"penalties"`
	FinalPct           float64   `json:"finalPct"`
	PointsAwarded      int       `json:"pointsAwarded"`
	Label              Label     `json:"label"`
}

// CascadeStage identifies which tier produced the final grading.
type CascadeStage string

const (
	// StageHeuristic means the model-free fallback graded the answer.
	StageHeuristic CascadeStage = "A"
	// StagePrimary means the fast model graded without escalation.
	StagePrimary CascadeStage = "B"
	// StageEscalated means the strong model was consulted.
	StageEscalated CascadeStage = "C"
)

// Cascade records the tier outcome and, when escalated, the engine used.
type Cascade struct {
	Stage       CascadeStage `json:"stage"`
	EscalatedTo string       `json:"escalatedTo,omitempty"`
}

// Refs ties a grading record back to its question and attempt.
type Refs struct {
	QuestionID string `json:"questionId"`
	AttemptID  string `json:"attemptId"`
}

// Record is the persisted union of Payload, ScoreResult and provenance.
// Created once per grading call and upserted under (attemptId, questionId);
// a re-grade overwrites, it never appends history.
type Record struct {
	ID        string      `json:"id"`
	Engine    string      `json:"engine"`
	Provider  string      `json:"provider"`
	Cascade   Cascade     `json:"cascade"`
	Payload   Payload     `json:"payload"`
	Score     ScoreResult `json:"score"`
	Refs      Refs        `json:"refs"`
	Timestamp time.Time   `json:"ts"`
}

// WeakRubric caches inferred key facts for a reference answer so future
// graders can skip fact inference. Keyed by a content hash of
// (referenceAnswer, model, promptVersion).
type WeakRubric struct {
	ContentHash    string    `json:"contentHash"`
	QuestionID     string    `json:"questionId"`
	KeyFacts       []KeyFact `json:"inferred_key_facts"`
	Misconceptions []string  `json:"misconceptions,omitempty"`
	UsageCount     int       `json:"usageCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QuestionContext is the document-store view of a question, fetched per
// grading call and checked against grading preconditions.
type QuestionContext struct {
	ID           string
	Type         string
	Subject      Subject
	Topic        string
	Year         int
	StemText     string
	SolutionText string
	Weight       int
}

// AttemptMeta carries per-attempt signals that feed the penalty model.
// An absent document means zero hints and no don't-know flag.
type AttemptMeta struct {
	HintUses     int
	UsedDontKnow bool
}

// EscalationPolicy controls whether the strong tier may be consulted.
type EscalationPolicy string

const (
	EscalateAuto   EscalationPolicy = "auto"
	EscalateNever  EscalationPolicy = "never"
	EscalateAlways EscalationPolicy = "always"
)

// EscalationReason explains why a submission was re-graded by the
// strong model.
type EscalationReason string

const (
	ReasonInvalidJSON   EscalationReason = "invalid_json"
	ReasonLowConfidence EscalationReason = "low_confidence"
	ReasonBoundaryScore EscalationReason = "boundary_score"
	ReasonManualRequest EscalationReason = "manual_request"
)
