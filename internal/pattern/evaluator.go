/**
 * Pattern Evaluator
 *
 * Evaluates a template pattern set against one page of OCR text.
 * - Literal atoms: OR semantics, match when the best window score clears the threshold
 * - AllOf atoms: AND semantics, every member must clear the threshold; score is the mean
 * The highest-scoring qualifying atom wins. Negative patterns are checked
 * separately and only by exact substring containment.
 */

package pattern

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/docsegment-worker/internal/similarity"
)

// DefaultThreshold is the minimum similarity for an atom member to count as present
const DefaultThreshold = 80.0

// logPatternLimit bounds pattern text in short (log) descriptions
const logPatternLimit = 30

// MatchResult describes the outcome of evaluating a pattern set
type MatchResult struct {
	Matched     bool
	Score       float64 // best similarity seen, reported even when nothing matched
	Description string  // which atom matched and how (exact vs fuzzy)
}

// Evaluator scores pattern sets against page text
type Evaluator struct {
	Threshold float64
}

// NewEvaluator creates an evaluator; a non-positive threshold selects DefaultThreshold
func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{Threshold: threshold}
}

type termResult struct {
	score float64
	info  string
}

// Evaluate checks text against atoms. fullInfo only controls whether pattern
// text is truncated in Description; it never changes the decision.
func (e *Evaluator) Evaluate(text string, atoms Patterns, fullInfo bool) MatchResult {
	bestScore := 0.0
	bestInfo := ""
	seen := 0.0

	for _, atom := range atoms {
		score, info, ok := e.evaluateAtom(text, atom, fullInfo)
		if score > seen {
			seen = score
		}
		if ok && score > bestScore {
			bestScore = score
			bestInfo = info
		}
	}

	if bestScore >= e.Threshold && bestInfo != "" {
		return MatchResult{Matched: true, Score: bestScore, Description: bestInfo}
	}
	return MatchResult{Matched: false, Score: seen}
}

func (e *Evaluator) evaluateAtom(text string, atom Atom, fullInfo bool) (float64, string, bool) {
	switch atom.kind {
	case KindLiteral:
		r := e.evaluateTerm(text, atom.Text(), fullInfo)
		return r.score, r.info, r.score >= e.Threshold

	case KindAllOf:
		if len(atom.terms) == 0 {
			return 0, "", false
		}
		all := true
		sum := 0.0
		infos := make([]string, 0, len(atom.terms))
		for _, term := range atom.terms {
			r := e.evaluateTerm(text, term, fullInfo)
			sum += r.score
			if r.score < e.Threshold {
				all = false
			}
			infos = append(infos, r.info)
		}
		avg := sum / float64(len(atom.terms))
		if !all {
			return avg, "", false
		}
		return avg, "AND[" + strings.Join(infos, ", ") + "]", true
	}
	return 0, "", false
}

func (e *Evaluator) evaluateTerm(text, term string, fullInfo bool) termResult {
	score := similarity.BestWindowScore(term, text)
	shown := term
	if !fullInfo {
		shown = truncate(term, logPatternLimit)
	}
	if score == similarity.Perfect && strings.Contains(text, term) {
		return termResult{score: score, info: fmt.Sprintf("exact:'%s'", shown)}
	}
	return termResult{score: score, info: fmt.Sprintf("fuzzy(%.1f%%):'%s'", score, shown)}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// FirstNegative returns the first atom present in text by exact substring
// containment: a literal must be a substring, an AllOf needs every member.
func FirstNegative(text string, atoms Patterns) (Atom, bool) {
	for _, atom := range atoms {
		if negativePresent(text, atom) {
			return atom, true
		}
	}
	return Atom{}, false
}

// AllNegatives returns every atom present in text by exact substring containment
func AllNegatives(text string, atoms Patterns) []Atom {
	var found []Atom
	for _, atom := range atoms {
		if negativePresent(text, atom) {
			found = append(found, atom)
		}
	}
	return found
}

// DescribeNegatives joins vetoing atoms for diagnostics
func DescribeNegatives(atoms []Atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = a.String()
	}
	return strings.Join(parts, " AND ")
}

func negativePresent(text string, atom Atom) bool {
	if len(atom.terms) == 0 {
		return false
	}
	for _, term := range atom.terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}
