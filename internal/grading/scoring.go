package grading

import (
	"math"
	"sort"
)

// Penalty amounts applied to the final percentage. Penalties affect
// points, not the correctness label: a correct-but-hinted answer is still
// "correct", just worth fewer points.
const (
	hintPenalty = 0.10
	idkPenalty  = 0.20
)

// Escalation thresholds. The boundary band is where small model errors
// most often flip a pass/fail outcome.
const (
	escalateConfidenceBelow = 0.60
	boundaryLow             = 0.45
	boundaryHigh            = 0.65
)

// LabelFor maps a percentage to its categorical label. Pure step
// function; boundary values map to the higher band.
func LabelFor(pct float64) Label {
	switch {
	case pct >= 0.85:
		return LabelCorrect
	case pct >= 0.70:
		return LabelMostlyCorrect
	case pct >= 0.40:
		return LabelPartial
	default:
		return LabelIncorrect
	}
}

// CalculateScore converts a validated payload plus attempt metadata into
// a ScoreResult. Confidence adjustment is monotonic: caps only, never a
// raise. The label uses the base (pre-penalty) percentage.
func CalculateScore(p *Payload, hintUses int, usedDontKnow bool, questionWeight, answerLength int) ScoreResult {
	basePct := clamp(p.Overall.Pct, 0, 1)
	confidence := adjustConfidence(clamp(p.Overall.Confidence, 0, 1), p, answerLength)

	pen := Penalties{}
	if hintUses > 0 {
		pen.Hints = hintPenalty
	}
	if usedDontKnow {
		pen.IDK = idkPenalty
	}

	finalPct := clamp(basePct-pen.Hints-pen.IDK, 0, 1)

	return ScoreResult{
		BasePct:            basePct,
		AdjustedConfidence: confidence,
		Penalties:          pen,
		FinalPct:           finalPct,
		PointsAwarded:      int(math.Round(float64(questionWeight) * finalPct)),
		Label:              LabelFor(basePct),
	}
}

// adjustConfidence applies cumulative minimum caps from answer
// characteristics.
func adjustConfidence(confidence float64, p *Payload, answerLength int) float64 {
	if answerLength < 12 {
		confidence = math.Min(confidence, 0.5)
	}
	if len(p.Contradictions) > 0 {
		confidence = math.Min(confidence, 0.6)
	}
	if answerLength > 300 {
		confidence = math.Min(confidence, 0.8)
	}
	if len(p.Misconceptions) > 0 {
		confidence = math.Min(confidence, 0.85)
	}
	return clamp(confidence, 0, 1)
}

// EscalationDecision is the outcome of ShouldEscalate.
type EscalationDecision struct {
	Escalate bool
	Reason   EscalationReason
}

// ShouldEscalate decides whether the strong tier must re-grade. Triggers,
// in priority order: payload never became valid even after repair; low
// confidence; base percentage inside the exclusive boundary band.
func ShouldEscalate(confidence, basePct float64, hasValidPayload bool) EscalationDecision {
	if !hasValidPayload {
		return EscalationDecision{Escalate: true, Reason: ReasonInvalidJSON}
	}
	if confidence < escalateConfidenceBelow {
		return EscalationDecision{Escalate: true, Reason: ReasonLowConfidence}
	}
	if basePct > boundaryLow && basePct < boundaryHigh {
		return EscalationDecision{Escalate: true, Reason: ReasonBoundaryScore}
	}
	return EscalationDecision{}
}

// MergeResults combines a primary and an escalated grading into one
// payload: median percentage (robust to one wildly-off call), max
// confidence (the stronger model's certainty is not diluted), set-union
// concepts with the secondary's partial reasons preferred, union
// misconception/contradiction lists, secondary-preferred explanations,
// and the longer key-fact list. The merged label is recomputed from the
// merged percentage, never copied from either input.
func MergeResults(primary, secondary *Payload, primaryScore, secondaryScore ScoreResult) *Payload {
	mergedPct := median(primaryScore.BasePct, secondaryScore.BasePct)
	mergedConfidence := math.Max(primaryScore.AdjustedConfidence, secondaryScore.AdjustedConfidence)

	partial := secondary.Concepts.Partial
	if len(partial) == 0 {
		partial = primary.Concepts.Partial
	}

	explanations := Explanations{
		StudentFriendly: preferNonEmpty(secondary.Explanations.StudentFriendly, primary.Explanations.StudentFriendly),
		ParentFriendly:  preferNonEmpty(secondary.Explanations.ParentFriendly, primary.Explanations.ParentFriendly),
	}

	keyFacts := primary.InferredKeyFacts
	if len(secondary.InferredKeyFacts) > len(keyFacts) {
		keyFacts = secondary.InferredKeyFacts
	}

	return &Payload{
		Overall: Overall{
			Pct:        mergedPct,
			Label:      LabelFor(mergedPct),
			Confidence: mergedConfidence,
		},
		InferredKeyFacts: keyFacts,
		Concepts: Concepts{
			Hit:     unionStrings(primary.Concepts.Hit, secondary.Concepts.Hit),
			Partial: partial,
			Missing: unionStrings(primary.Concepts.Missing, secondary.Concepts.Missing),
		},
		Misconceptions: unionStrings(primary.Misconceptions, secondary.Misconceptions),
		Contradictions: unionStrings(primary.Contradictions, secondary.Contradictions),
		Explanations:   explanations,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func median(a, b float64) float64 {
	return (a + b) / 2
}

func preferNonEmpty(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

// unionStrings merges two lists, deduplicated and sorted so the result
// does not depend on argument order.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, s := range lists {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
