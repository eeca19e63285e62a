/**
 * Similarity scoring for OCR text matching
 *
 * Scores how closely a short anchor phrase appears inside a page of
 * recognized text. Exact containment short-circuits to 100; otherwise a
 * window the length of the pattern slides across the text and the best
 * normalized indel similarity is kept.
 *
 * Hot path: BestWindowScore is O(|text| * |pattern|^2) per pattern. Page
 * texts are single-page OCR output and patterns are short anchor phrases,
 * so this stays cheap; revisit if either grows.
 */

package similarity

import (
	"strings"

	edlib "github.com/hbollon/go-edlib"
)

// Perfect is the score of an exact match.
const Perfect = 100.0

// Score returns the normalized indel similarity of a and b in [0, 100].
// It is symmetric and reaches 100 only for identical strings.
func Score(a, b string) float64 {
	return ratio([]rune(a), []rune(b))
}

// BestWindowScore returns the best similarity between pattern and any
// window of text with the same rune length as pattern.
func BestWindowScore(pattern, text string) float64 {
	if strings.Contains(text, pattern) {
		return Perfect
	}

	p := []rune(pattern)
	t := []rune(text)
	if len(t) < len(p) {
		return 0
	}

	best := 0.0
	for i := 0; i+len(p) <= len(t); i++ {
		if s := ratio(p, t[i:i+len(p)]); s > best {
			best = s
			if best == Perfect {
				break
			}
		}
	}
	return best
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return Perfect
	}
	lcs := edlib.LCS(string(a), string(b))
	return Perfect * float64(2*lcs) / float64(total)
}
