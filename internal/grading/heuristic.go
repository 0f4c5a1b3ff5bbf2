package grading

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// HeuristicConfidence is the fixed confidence of the fallback grader.
// Kept below the escalation threshold on purpose: a heuristic result
// standing in for a failed model call must never suppress escalation.
const HeuristicConfidence = 0.35

// HeuristicEngine is the engine name recorded for fallback gradings.
const HeuristicEngine = "heuristic"

const trigramSize = 3

// Deductions applied on top of raw similarity.
const (
	misconceptionDeduction = 0.10
	shortAnswerDeduction   = 0.10
	negationDeduction      = 0.05
	shortAnswerChars       = 12
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)

var negationRes = []*regexp.Regexp{
	regexp.MustCompile(`\bnot\s+\w+`),
	regexp.MustCompile(`\bn't\s+\w+`),
	regexp.MustCompile(`\bno\s+\w+`),
	regexp.MustCompile(`\bnever\s+\w+`),
	regexp.MustCompile(`\bwrong\b`),
	regexp.MustCompile(`\bincorrect\b`),
	regexp.MustCompile(`\bfalse\b`),
}

// misconceptionPattern pairs trigger phrases with the misconception they
// indicate. Matching is a substring check on the lowercased answer.
type misconceptionPattern struct {
	phrases []string
	name    string
}

var misconceptionPatterns = map[Subject][]misconceptionPattern{
	SubjectScience: {
		{[]string{"heat is a substance", "heat flows", "heat transfers"}, "heat as substance"},
		{[]string{"particles expand", "atoms expand", "molecules expand"}, "particle expansion"},
		{[]string{"heavier objects fall faster", "heavy things fall quicker"}, "weight affects fall rate"},
		{[]string{"force is needed to keep moving", "force maintains motion"}, "force needed for motion"},
		{[]string{"plants get food from soil", "plants eat from roots"}, "plants consume soil nutrients as food"},
		{[]string{"dinosaurs and humans lived together", "cavemen rode dinosaurs"}, "human-dinosaur coexistence"},
	},
	SubjectEnglish: {
		{[]string{"author always means", "author is saying", "author thinks"}, "confusing narrator with author"},
		{[]string{"theme is the main character", "theme is what happens"}, "theme confusion with plot/character"},
		{[]string{"all poems rhyme", "poetry must rhyme"}, "rhyme requirement in poetry"},
	},
}

// HeuristicGrade scores a submission without any model call: cosine
// similarity over a lightweight text representation (word unigrams
// weighted above character trigrams), minus fixed deductions for
// misconception patterns, very short answers and negation words. Fully
// deterministic; identical inputs yield identical payloads.
func HeuristicGrade(req *GradeRequest) *Payload {
	similarity := cosineSimilarity(
		textFeatures(req.ReferenceAnswer),
		textFeatures(req.StudentAnswer),
	)

	veryShort := utf8.RuneCountInString(req.StudentAnswer) < shortAnswerChars
	negations := detectNegations(req.StudentAnswer)
	misconceptions := detectMisconceptions(req.StudentAnswer, req.Meta.Subject)

	score := similarity
	if len(misconceptions) > 0 {
		score -= misconceptionDeduction
	}
	if veryShort {
		score -= shortAnswerDeduction
	}
	if negations {
		score -= negationDeduction
	}
	score = clamp(score, 0, 1)

	// Without a model there is nothing to infer facts from; a single
	// stand-in fact keeps the payload schema-valid.
	keyFacts := []KeyFact{{ID: "f1", Text: "Key concepts from reference answer"}}

	concepts := Concepts{Hit: []string{}, Partial: []PartialConcept{}, Missing: []string{}}
	switch {
	case score > 0.7:
		concepts.Hit = []string{"f1"}
	case score > 0.4:
		concepts.Partial = []PartialConcept{{ID: "f1", Reason: "partially addressed"}}
	default:
		concepts.Missing = []string{"f1"}
	}

	if misconceptions == nil {
		misconceptions = []string{}
	}

	return &Payload{
		Overall: Overall{
			Pct:        score,
			Label:      LabelFor(score),
			Confidence: HeuristicConfidence,
		},
		InferredKeyFacts: keyFacts,
		Concepts:         concepts,
		Misconceptions:   misconceptions,
		Contradictions:   []string{},
		Explanations: Explanations{
			StudentFriendly: heuristicStudentFeedback(score, veryShort, len(misconceptions) > 0),
			ParentFriendly:  heuristicParentFeedback(len(misconceptions) > 0),
		},
	}
}

// textFeatures builds the bag-of-features representation: character
// trigrams at weight 1, word unigrams (length > 2) at weight 2.
func textFeatures(text string) map[string]float64 {
	normalized := normalizeForSimilarity(text)
	features := make(map[string]float64)

	for i := 0; i+trigramSize <= len(normalized); i++ {
		features[normalized[i:i+trigramSize]]++
	}

	for _, word := range strings.Fields(normalized) {
		if len(word) > 2 {
			features["WORD_"+word] += 2
		}
	}

	return features
}

func normalizeForSimilarity(text string) string {
	s := strings.ToLower(text)
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func cosineSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func detectNegations(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range negationRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func detectMisconceptions(studentAnswer string, subject Subject) []string {
	lower := strings.ToLower(studentAnswer)
	var found []string
	for _, pat := range misconceptionPatterns[subject] {
		for _, phrase := range pat.phrases {
			if strings.Contains(lower, phrase) {
				found = append(found, pat.name)
				break
			}
		}
	}
	return found
}

func heuristicStudentFeedback(score float64, veryShort, hasMisconceptions bool) string {
	switch {
	case score >= 0.85:
		return "Your answer shows good understanding of the key concepts."
	case score >= 0.70:
		return "Good start! Try to include more specific details in your answer."
	case score >= 0.40:
		if veryShort {
			return "Your answer is on the right track, but please provide more detail and explanation."
		}
		return "You have some understanding, but please review the key concepts and try again."
	default:
		if hasMisconceptions {
			return "There may be some misconceptions in your answer. Please review the material and focus on the main concepts."
		}
		if veryShort {
			return "Please provide a more detailed answer that explains the main concepts."
		}
		return "Your answer doesn't closely match the expected concepts. Please review the material and try again."
	}
}

func heuristicParentFeedback(hasMisconceptions bool) string {
	msg := "Automatic similarity-based grading (low confidence). Score reflects how closely the answer matches the reference answer."
	if hasMisconceptions {
		msg += " Potential misconceptions detected."
	}
	return msg
}
