package supervisor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/halcyon-home/halcyon-core/internal/approval"
)

// Model output arrives wrapped in chat-template markup and often in
// markdown fences; both are stripped before looking for the verdict.
var (
	chatBlockRe = regexp.MustCompile(`(?s)<\|im_start\|>.*?<\|im_end\|>\n?`)
	chatStartRe = regexp.MustCompile(`<\|im_start\|>assistant\n?`)
	fenceRe     = regexp.MustCompile("(?s)```json\\s*|\\s*```")
)

// rawVerdict is the JSON shape expected from the reasoner. Extra fields
// are ignored.
type rawVerdict struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ExtractDecision pulls a status/reason verdict out of free-form model
// output.
//
// It strips chat markup and code fences, then tries the first balanced
// JSON object in the text, then the whole text as JSON. It reports ok
// only when the parsed object carries a known status; everything else is
// the caller's cue to fall back to a heuristic.
func ExtractDecision(text string) (approval.Decision, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = chatBlockRe.ReplaceAllString(cleaned, "")
	cleaned = chatStartRe.ReplaceAllString(cleaned, "")
	cleaned = fenceRe.ReplaceAllString(cleaned, "")

	if candidate, ok := firstJSONObject(cleaned); ok {
		if d, ok := parseVerdict(candidate); ok {
			return d, true
		}
	}
	return parseVerdict(cleaned)
}

// firstJSONObject returns the first balanced {...} span in text.
//
// Depth counting rather than a regexp: verdicts may nest objects and RE2
// has no recursion. Braces inside JSON strings are skipped.
func firstJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func parseVerdict(candidate string) (approval.Decision, bool) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return approval.Decision{}, false
	}
	status := approval.Status(raw.Status)
	if !status.Valid() {
		return approval.Decision{}, false
	}
	return approval.Decision{Status: status, Reason: raw.Reason}, true
}
