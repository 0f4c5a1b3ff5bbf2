package grading

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// feedback length bounds enforced semantically; the schema cannot express
// them relative to trimmed content.
const (
	minFeedbackLen      = 5
	maxStudentFeedback  = 400
	maxParentFeedback   = 500
	minPartialReasonLen = 3
)

// ValidationResult reports the outcome of validating one candidate
// grading payload.
type ValidationResult struct {
	OK      bool
	Payload *Payload
	Errors  []string
}

// Validate checks candidate JSON in two layers: structural conformance to
// GradeSchema, then semantic rules the schema cannot express (fact-id
// references, partial reasons, label consistency with pct). A label that
// disagrees with LabelFor(pct) is a validation failure, not something to
// silently override.
func Validate(candidate json.RawMessage) ValidationResult {
	if err := GradeSchema.ValidateJSON(candidate); err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}

	var p Payload
	if err := json.Unmarshal(candidate, &p); err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("decode payload: %v", err)}}
	}

	if errs := semanticErrors(&p); len(errs) > 0 {
		return ValidationResult{Errors: errs}
	}

	return ValidationResult{OK: true, Payload: &p}
}

// semanticErrors applies the cross-field rules.
func semanticErrors(p *Payload) []string {
	var errs []string

	if p.Overall.Pct < 0 || p.Overall.Pct > 1 {
		errs = append(errs, "overall.pct must be in [0,1]")
	}
	if p.Overall.Confidence < 0 || p.Overall.Confidence > 1 {
		errs = append(errs, "overall.confidence must be in [0,1]")
	}

	if expected := LabelFor(p.Overall.Pct); p.Overall.Label != expected {
		errs = append(errs, fmt.Sprintf("label %q does not match pct %.2f (expected %q)",
			p.Overall.Label, p.Overall.Pct, expected))
	}

	if n := len(p.InferredKeyFacts); n < 1 || n > 8 {
		errs = append(errs, "must have 1-8 inferred key facts")
	}

	factIDs := make(map[string]bool, len(p.InferredKeyFacts))
	dup := false
	for _, f := range p.InferredKeyFacts {
		if factIDs[f.ID] {
			dup = true
		}
		factIDs[f.ID] = true
	}
	if dup {
		errs = append(errs, "duplicate key fact ids")
	}

	for _, id := range p.Concepts.Hit {
		if !factIDs[id] {
			errs = append(errs, fmt.Sprintf("hit concept %q references unknown fact", id))
		}
	}
	for _, pc := range p.Concepts.Partial {
		if !factIDs[pc.ID] {
			errs = append(errs, fmt.Sprintf("partial concept %q references unknown fact", pc.ID))
		}
		if len(strings.TrimSpace(pc.Reason)) < minPartialReasonLen {
			errs = append(errs, fmt.Sprintf("partial concept %q needs a meaningful reason", pc.ID))
		}
	}
	for _, id := range p.Concepts.Missing {
		if !factIDs[id] {
			errs = append(errs, fmt.Sprintf("missing concept %q references unknown fact", id))
		}
	}

	if len(strings.TrimSpace(p.Explanations.StudentFriendly)) < minFeedbackLen {
		errs = append(errs, "student_friendly explanation too short")
	} else if len(p.Explanations.StudentFriendly) > maxStudentFeedback {
		errs = append(errs, fmt.Sprintf("student_friendly explanation too long (max %d chars)", maxStudentFeedback))
	}
	if len(strings.TrimSpace(p.Explanations.ParentFriendly)) < minFeedbackLen {
		errs = append(errs, "parent_friendly explanation too short")
	} else if len(p.Explanations.ParentFriendly) > maxParentFeedback {
		errs = append(errs, fmt.Sprintf("parent_friendly explanation too long (max %d chars)", maxParentFeedback))
	}

	return errs
}

var (
	codeFenceOpenRe  = regexp.MustCompile("^```(?:json)?\\s*")
	codeFenceCloseRe = regexp.MustCompile("\\s*```$")
	preambleRe       = regexp.MustCompile(`^(?i)here('s| is)[^{]*`)
	trailingCommaRe  = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe        = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// AttemptRepair applies best-effort syntactic fixes to malformed model
// output (code fences, chatty preambles, trailing commas, bare keys,
// single quotes) and revalidates. Returns nil if the result is still
// invalid. Deliberately narrow: persistent failure after one repair is a
// hard validation failure that triggers escalation, not more patching.
func AttemptRepair(raw string) *Payload {
	s := strings.TrimSpace(raw)

	s = codeFenceOpenRe.ReplaceAllString(s, "")
	s = codeFenceCloseRe.ReplaceAllString(s, "")
	s = preambleRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)

	// Single-quoted strings are the last resort: only rewrite when the
	// text contains no double quotes at all, otherwise we would corrupt
	// legitimate content.
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, `'`, `"`)
	}

	res := Validate(json.RawMessage(s))
	if !res.OK {
		return nil
	}
	return res.Payload
}
