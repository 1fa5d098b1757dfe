// Package dedup decides whether a question repeats an existing canonical
// question of its course.
//
// Similarity is the cosine of term-frequency vectors over word unigrams and
// bigrams of Unicode-normalized text. A question whose best score exceeds
// the duplicate threshold becomes a variant of that canonical; otherwise it
// is a new canonical. Comparisons against the same unit are serialized with
// per-unit locks so two concurrent near-duplicates cannot both become
// canonical.
package dedup

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Vector is the shingle frequency vector of a text.
type Vector map[string]float64

// Vectorize normalizes text and counts its unigram and bigram shingles.
func Vectorize(text string) Vector {
	words := tokens(text)
	v := make(Vector, len(words)*2)
	for i, w := range words {
		v[w]++
		if i > 0 {
			v[words[i-1]+" "+w]++
		}
	}
	return v
}

// Cosine returns the cosine similarity of a and b in [0, 1].
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}

	var dot, na, nb float64
	for k, x := range a {
		dot += x * b[k]
		na += x * x
	}
	for _, y := range b {
		nb += y * y
	}
	return min(1, dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// Similarity returns the cosine similarity of two texts.
func Similarity(a, b string) float64 {
	return Cosine(Vectorize(a), Vectorize(b))
}

// tokens folds text to NFKC lower case and splits it into words of letters
// and digits.
func tokens(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
