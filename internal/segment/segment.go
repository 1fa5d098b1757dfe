// Package segment splits normalized page text into candidate questions.
//
// Boundaries are detected from numbering conventions: top-level numbers
// ("1.", "Q2", "Question 3)"), lettered subparts ("(a)", "b)"), roman
// subparts ("i)", "(ii)") and combined forms ("2.a)", "2(b)"). Numbering
// must advance in sequence to open a new question; anything that does not
// is treated as prose of the current question. Ambiguity resolves toward
// fewer, longer questions.
package segment

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/qbank/internal/normalize"
)

// ErrSegmentationFailure is returned when no question can be found in a
// non-empty document.
var ErrSegmentationFailure = errors.New("no questions could be segmented from the document")

// Candidate is one segmented question or subpart.
type Candidate struct {
	// Label is the full question number, e.g. "2", "2.a", "2.a.i".
	Label string `json:"label"`
	// ParentLabel is the label of the enclosing question, empty for top-level.
	ParentLabel string `json:"parent_label,omitempty"`
	// ParentIndex is the index of the parent's own candidate, or -1 when the
	// parent has no stem text and produced no candidate.
	ParentIndex    int     `json:"parent_index"`
	Text           string  `json:"text"`
	Page           int     `json:"page"`
	PageConfidence float64 `json:"page_confidence"`
	HasSubparts    bool    `json:"has_subparts"`
}

var (
	combinedParenRE = regexp.MustCompile(`^(?i:q(?:uestion)?\s*\.?\s*)?(\d{1,2})\s*\.?\s*\(([a-h])\)\s*(.*)$`)
	combinedDotRE   = regexp.MustCompile(`^(?i:q(?:uestion)?\s*\.?\s*)?(\d{1,2})\s*\.?\s*([a-h])[.)]\s+(.*)$`)
	prefixedRE      = regexp.MustCompile(`^(?i:q|ques|question)\s*\.?\s*(?i:no\.?\s*)?(\d{1,2})\s*[.):\-]?\s*(.*)$`)
	bareRE          = regexp.MustCompile(`^\(?(\d{1,2})[.)]\s*(\D.*)?$`)
	romanRE         = regexp.MustCompile(`^\(?(i|ii|iii|iv|v|vi|vii|viii|ix|x)[.)]\s*(\S.*)?$`)
	letterRE        = regexp.MustCompile(`^\(?([a-h])[.)]\s*(\S.*)?$`)
	spaceRE         = regexp.MustCompile(`\s+`)
)

var romans = []string{"i", "ii", "iii", "iv", "v", "vi", "vii", "viii", "ix", "x"}

type node struct {
	label    string
	marker   string
	lines    []string
	page     int
	conf     float64
	children []*node
}

func (n *node) text() string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(strings.Join(n.lines, " "), " "))
}

func (n *node) add(line string, conf float64) {
	if line == "" {
		return
	}
	n.lines = append(n.lines, line)
	n.conf = min(n.conf, conf)
}

// tail returns the last leaf under n.
func (n *node) tail() *node {
	if len(n.children) == 0 {
		return n
	}
	return n.children[len(n.children)-1].tail()
}

type parser struct {
	tops         []*node
	top          *node
	letter       *node
	roman        *node
	lastTop      int
	lastRejected int
}

// Segment splits pages into candidate questions in document order.
func Segment(pages []normalize.Page) ([]Candidate, error) {
	p := &parser{}
	for _, page := range pages {
		for line := range strings.SplitSeq(page.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			p.line(line, page.Number, page.Confidence)
		}
	}

	tops := mergeInvalid(p.tops)

	var out []Candidate
	for _, t := range tops {
		out = emit(out, t, "", -1)
	}

	if len(out) == 0 {
		return nil, ErrSegmentationFailure
	}
	return out, nil
}

func (p *parser) line(line string, page int, conf float64) {
	if m := combinedParenRE.FindStringSubmatch(line); m != nil && p.combined(m, line, page, conf) {
		return
	}
	if m := combinedDotRE.FindStringSubmatch(line); m != nil && p.combined(m, line, page, conf) {
		return
	}
	if m := prefixedRE.FindStringSubmatch(line); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > p.lastTop {
			p.openTop(n, marker(line, m[2]), m[2], page, conf)
			return
		}
	}
	if m := bareRE.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == p.lastTop+1 && (p.lastRejected == 0 || n != p.lastRejected+1) {
			p.openTop(n, marker(line, m[2]), m[2], page, conf)
			return
		}
		if p.top != nil {
			p.lastRejected = n
		}
	}
	if m := romanRE.FindStringSubmatch(line); m != nil && p.openRoman(m[1], marker(line, m[2]), m[2], page, conf) {
		return
	}
	if m := letterRE.FindStringSubmatch(line); m != nil && p.openLetter(m[1], marker(line, m[2]), m[2], page, conf) {
		return
	}

	if cur := p.current(); cur != nil {
		cur.add(line, conf)
	}
}

func (p *parser) combined(m []string, line string, page int, conf float64) bool {
	n, _ := strconv.Atoi(m[1])
	letter := m[2]
	rest := m[3]

	switch {
	case p.top != nil && n == p.lastTop:
		return p.openLetter(letter, marker(line, rest), rest, page, conf)
	case n == p.lastTop+1 && letter == "a":
		p.openTop(n, "", "", page, conf)
		return p.openLetter(letter, marker(line, rest), rest, page, conf)
	}
	return false
}

func (p *parser) openTop(n int, marker, rest string, page int, conf float64) {
	t := &node{label: strconv.Itoa(n), marker: marker, page: page, conf: conf}
	t.add(rest, conf)
	p.tops = append(p.tops, t)
	p.top = t
	p.letter = nil
	p.roman = nil
	p.lastTop = n
	p.lastRejected = 0
}

func (p *parser) openLetter(letter, marker, rest string, page int, conf float64) bool {
	if p.top == nil {
		return false
	}

	want := "a"
	if p.letter != nil {
		want = string(p.letter.label[len(p.letter.label)-1] + 1)
	} else if len(p.top.children) > 0 {
		return false
	}
	if letter != want {
		return false
	}

	l := &node{label: p.top.label + "." + letter, marker: marker, page: page, conf: conf}
	l.add(rest, conf)
	p.top.children = append(p.top.children, l)
	p.letter = l
	p.roman = nil
	return true
}

func (p *parser) openRoman(numeral, marker, rest string, page int, conf float64) bool {
	parent := p.letter
	if parent == nil {
		parent = p.top
	}
	if parent == nil {
		return false
	}

	want := romans[0]
	if p.roman != nil {
		idx := romanIndex(p.roman.label[strings.LastIndexByte(p.roman.label, '.')+1:])
		if idx+1 >= len(romans) {
			return false
		}
		want = romans[idx+1]
	} else if len(parent.children) > 0 {
		return false
	}
	if numeral != want {
		return false
	}

	r := &node{label: parent.label + "." + numeral, marker: marker, page: page, conf: conf}
	r.add(rest, conf)
	parent.children = append(parent.children, r)
	p.roman = r
	return true
}

func (p *parser) current() *node {
	switch {
	case p.roman != nil:
		return p.roman
	case p.letter != nil:
		return p.letter
	}
	return p.top
}

// mergeInvalid folds leaves that do not read as questions into the
// preceding text, working bottom-up.
func mergeInvalid(nodes []*node) []*node {
	var kept []*node
	for _, n := range nodes {
		n.children = mergeChildren(n)

		if len(n.children) == 0 && !isQuestion(n.text()) {
			if len(kept) > 0 {
				prev := kept[len(kept)-1].tail()
				prev.lines = append(prev.lines, n.marker+" "+n.text())
				prev.conf = min(prev.conf, n.conf)
				continue
			}
			if len(n.text()) < minQuestionLength {
				continue
			}
		}
		kept = append(kept, n)
	}
	return kept
}

func mergeChildren(parent *node) []*node {
	var kept []*node
	for _, c := range parent.children {
		c.children = mergeChildren(c)

		if len(c.children) == 0 && !isQuestion(c.text()) {
			target := parent
			if len(kept) > 0 {
				target = kept[len(kept)-1].tail()
			}
			target.lines = append(target.lines, c.marker+" "+c.text())
			target.conf = min(target.conf, c.conf)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// emit appends n and its descendants in pre-order. A node with children
// produces its own candidate only when it carries stem text.
func emit(out []Candidate, n *node, parentLabel string, parentIndex int) []Candidate {
	text := n.text()
	self := -1

	if len(n.children) == 0 || len(text) >= minQuestionLength {
		self = len(out)
		out = append(out, Candidate{
			Label:          n.label,
			ParentLabel:    parentLabel,
			ParentIndex:    parentIndex,
			Text:           text,
			Page:           n.page,
			PageConfidence: n.conf,
			HasSubparts:    len(n.children) > 0,
		})
	}

	for _, c := range n.children {
		out = emit(out, c, n.label, self)
	}
	return out
}

func marker(line, rest string) string {
	return strings.TrimSpace(strings.TrimSuffix(line, rest))
}

func romanIndex(s string) int {
	for i, r := range romans {
		if r == s {
			return i
		}
	}
	return -1
}
