package classify

import (
	"regexp"
	"strconv"
	"strings"
)

var bloomNames = map[int]string{
	1: "Remembering",
	2: "Understanding",
	3: "Applying",
	4: "Analyzing",
	5: "Evaluating",
	6: "Creating",
}

// BloomName returns the category name of a Bloom level, or "" when level is
// out of range.
func BloomName(level int) string {
	return bloomNames[level]
}

var bloomKeywords = [6][]string{
	{"define", "list", "recall", "name", "identify", "recognize", "memorize", "state", "write", "repeat"},
	{"explain", "describe", "summarize", "interpret", "classify", "compare", "contrast", "discuss", "distinguish", "illustrate"},
	{"solve", "implement", "apply", "calculate", "demonstrate", "execute", "use", "construct", "operate", "practice"},
	{"analyze", "analyse", "compare", "examine", "differentiate", "investigate", "categorize", "decompose", "infer", "organize"},
	{"evaluate", "justify", "critique", "assess", "judge", "defend", "support", "conclude", "recommend", "validate"},
	{"design", "create", "develop", "construct", "formulate", "invent", "compose", "generate", "produce", "build"},
}

var bloomPatterns = func() [6]*regexp.Regexp {
	var out [6]*regexp.Regexp
	for i, words := range bloomKeywords {
		out[i] = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	}
	return out
}()

const keywordBloomConfidence = 0.5

// KeywordBloom assigns a Bloom level from command words in text. The level
// with the most keyword hits wins; ties resolve to the lower level. ok is
// false when no keyword matches.
func KeywordBloom(text string) (level int, ok bool) {
	best := 0
	for i, re := range bloomPatterns {
		if hits := len(re.FindAllStringIndex(text, -1)); hits > best {
			best = hits
			level = i + 1
		}
	}
	return level, best > 0
}

var marksPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*marks?\b`),
	regexp.MustCompile(`(?i)(\d+)\s*points?\b`),
	regexp.MustCompile(`\[(\d+)\]`),
	regexp.MustCompile(`\((\d+)\s*M\)`),
}

// ExtractMarks finds a marks annotation in text.
func ExtractMarks(text string) (int, bool) {
	for _, re := range marksPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

var mathRE = regexp.MustCompile(`[∑∏∫∂∇αβγδεζηθικλμνξοπρστυφχψω²³⁴⁵⁶⁷⁸⁹⁰¹₀₁₂₃₄₅₆₇₈₉√∛∜∞±∓×÷≤≥≠≈≡∈∉⊂⊃⊆⊇]|\w\^\w`)

// HasMath reports whether text contains mathematical notation.
func HasMath(text string) bool {
	return mathRE.MatchString(text)
}

// EstimateDifficulty scores marks, Bloom level, length, subparts and
// notation into a difficulty band.
func EstimateDifficulty(text string, marks *int, bloom *int, hasSubparts, hasMath bool) Difficulty {
	score := 0

	if marks != nil {
		switch {
		case *marks <= 5:
			score++
		case *marks <= 10:
			score += 2
		default:
			score += 3
		}
	}

	if bloom != nil {
		score += *bloom
	}

	switch words := len(strings.Fields(text)); {
	case words > 50:
		score += 2
	case words > 20:
		score++
	}

	if hasSubparts {
		score += 2
	}
	if hasMath {
		score++
	}

	switch {
	case score <= 3:
		return Easy
	case score <= 6:
		return Medium
	}
	return Hard
}
