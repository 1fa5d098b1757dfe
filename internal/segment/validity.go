package segment

import (
	"regexp"
	"strings"
)

const minQuestionLength = 10

var indicatorRE = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
	"what", "how", "why", "when", "where", "which", "who",
	"explain", "describe", "solve", "calculate", "derive", "prove",
	"define", "list", "compare", "analy[sz]e", "evaluate", "design",
	"write", "state", "discuss", "find", "draw", "show", "give",
	"illustrate", "determine", "compute", "construct", "implement",
	"differentiate", "distinguish", "outline", "mention", "enumerate",
	"develop", "apply", "identify", "name", "justify", "summari[sz]e",
	"sketch", "obtain", "estimate", "classify", "demonstrate", "verify",
	"convert", "simplify", "elaborate", "interpret", "develop", "create",
}, "|") + `)\b`)

// isQuestion reports whether text reads as a question: long enough and
// carrying a question mark, question word, or instruction verb.
func isQuestion(text string) bool {
	if len(strings.TrimSpace(text)) < minQuestionLength {
		return false
	}
	return strings.Contains(text, "?") || indicatorRE.MatchString(text)
}
