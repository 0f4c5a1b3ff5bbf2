package grading

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// MaxInputLen is the ceiling on sanitized input length, matching the
// 1..1200 bound enforced at the HTTP edge.
const MaxInputLen = 1200

// maxReferenceLen caps the extracted reference answer so it anchors the
// prompt without dominating it.
const maxReferenceLen = 500

var (
	stripPolicy = bluemonday.StrictPolicy()

	urlRe   = regexp.MustCompile(`(?i)https?://\S+`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	multiSpaceRe   = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe = regexp.MustCompile(`\n\s*\n`)

	// Markdown constructs removed when deriving a reference answer.
	mdBoldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalicRe     = regexp.MustCompile(`\*(.*?)\*`)
	mdCodeRe       = regexp.MustCompile("`(.*?)`")
	mdHeaderRe     = regexp.MustCompile(`#{1,6}\s+`)
	mdBlockquoteRe = regexp.MustCompile(`>\s+`)
	mdImageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// injectionPatterns flag prompt-injection attempts. A match is a hard
// boundary: the request fails before any model sees it.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile("(?i)```json"),
	regexp.MustCompile(`(?i)\{.*"overall".*\}`),
	regexp.MustCompile(`(?i)new\s+task`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)instead\s+of\s+grading`),
}

// Sanitize cleans raw text for use in a grading prompt: strips markup
// while keeping visible text, normalizes Unicode (NFKC), replaces URLs
// and email addresses with opaque tokens, and collapses whitespace.
// Returns an InputError when the result is empty or over MaxInputLen.
func Sanitize(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", &InputError{Code: "EMPTY_INPUT", Message: "input is empty"}
	}

	// Strip HTML and script content, keeping text. The policy escapes
	// entities, so unescape to recover plain text.
	s := html.UnescapeString(stripPolicy.Sanitize(input))

	s = norm.NFKC.String(s)

	s = urlRe.ReplaceAllString(s, "<URL>")
	s = emailRe.ReplaceAllString(s, "<EMAIL>")

	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(s)

	if s == "" {
		return "", &InputError{Code: "EMPTY_INPUT", Message: "input is empty after sanitization"}
	}
	if n := utf8.RuneCountInString(s); n > MaxInputLen {
		return "", &InputError{
			Code:    "INPUT_TOO_LONG",
			Message: fmt.Sprintf("input is %d chars after sanitization (max %d)", n, MaxInputLen),
		}
	}

	return s, nil
}

// DetectPromptInjection reports whether text matches a known injection
// pattern: instruction overrides, role-keyword prefixes, or embedded JSON
// resembling the grading schema.
func DetectPromptInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractReferenceAnswer derives a concise authoritative answer from a
// question's solution markdown: formatting stripped, sanitized, truncated
// near a sentence boundary around maxReferenceLen characters.
func ExtractReferenceAnswer(solutionText string) (string, error) {
	if strings.TrimSpace(solutionText) == "" {
		return "", &InputError{Code: "EMPTY_INPUT", Message: "solution text is empty"}
	}

	s := solutionText
	s = mdImageRe.ReplaceAllString(s, "$1")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = mdBoldRe.ReplaceAllString(s, "$1")
	s = mdItalicRe.ReplaceAllString(s, "$1")
	s = mdCodeRe.ReplaceAllString(s, "$1")
	s = mdHeaderRe.ReplaceAllString(s, "")
	s = mdBlockquoteRe.ReplaceAllString(s, "")
	s = multiNewlineRe.ReplaceAllString(s, "\n")

	s, err := Sanitize(s)
	if err != nil {
		return "", err
	}

	if runes := []rune(s); len(runes) > maxReferenceLen {
		truncated := runes[:maxReferenceLen]
		cut := -1
		for i := len(truncated) - 1; i > 0; i-- {
			if truncated[i-1] == '.' && truncated[i] == ' ' {
				cut = i - 1
				break
			}
		}
		if cut > maxReferenceLen*3/5 {
			s = string(truncated[:cut+1])
		} else {
			s = string(truncated) + "..."
		}
	}

	return s, nil
}

// ValidateGradingInputs runs the full input gate for one grading call:
// injection detection on the student answer and stem, then sanitization
// of all three texts. The student answer must carry at least a token of
// content; the reference must survive extraction.
func ValidateGradingInputs(studentAnswer, stem, solution string) (student, cleanStem, reference string, err error) {
	if DetectPromptInjection(studentAnswer) {
		return "", "", "", &InputError{Code: "PROMPT_INJECTION", Message: "student answer contains prompt injection patterns"}
	}
	if DetectPromptInjection(stem) {
		return "", "", "", &InputError{Code: "PROMPT_INJECTION", Message: "question stem contains invalid content"}
	}

	student, err = Sanitize(studentAnswer)
	if err != nil {
		return "", "", "", err
	}
	if utf8.RuneCountInString(student) < 3 {
		return "", "", "", &InputError{Code: "ANSWER_TOO_SHORT", Message: "student answer too short (minimum 3 characters)"}
	}

	cleanStem, err = Sanitize(stem)
	if err != nil {
		return "", "", "", err
	}

	reference, err = ExtractReferenceAnswer(solution)
	if err != nil {
		return "", "", "", err
	}
	if utf8.RuneCountInString(reference) < 5 {
		return "", "", "", &InputError{Code: "EMPTY_INPUT", Message: "reference answer too short after processing"}
	}

	return student, cleanStem, reference, nil
}
