/**
 * Template Catalog
 *
 * Holds the loaded templates and answers "which template does this page
 * start (or end)?". Negative patterns exclude a template before its positive
 * patterns are scored. A template is selected only when its score is strictly
 * above the selection threshold, which is separate from the inclusive
 * threshold used by the evaluator for atom matching.
 */

package catalog

import (
	"fmt"

	"github.com/adverant/nexus/docsegment-worker/internal/pattern"
)

// DefaultSelectionThreshold is the score a template must strictly exceed to be selected
const DefaultSelectionThreshold = 80.0

// Side selects which pattern sets of a template are consulted
type Side int

const (
	SideStart Side = iota
	SideEnd
)

func (s Side) String() string {
	if s == SideEnd {
		return "end"
	}
	return "start"
}

// Selection is the outcome of a catalog lookup. Template is nil when nothing qualified.
type Selection struct {
	Template *Template
	Info     string
	Score    float64
}

// Found reports whether a template was selected
func (s Selection) Found() bool {
	return s.Template != nil
}

// EndCheck is the outcome of testing a bound template's end patterns on one page
type EndCheck struct {
	Matched      bool    // end patterns matched and no end-negative atom fired
	Vetoed       bool    // end patterns matched but an end-negative atom fired
	Info         string  // end match description (set when the positive patterns matched)
	NegativeInfo string  // vetoing atoms (set when Vetoed)
	Score        float64 // best end score, for diagnostics
}

// Catalog is an immutable set of templates plus the thresholds used to select among them
type Catalog struct {
	templates          []*Template
	evaluator          *pattern.Evaluator
	selectionThreshold float64
}

// Option configures a Catalog
type Option func(*Catalog)

// WithThreshold sets the evaluator's fuzzy threshold (inclusive)
func WithThreshold(threshold float64) Option {
	return func(c *Catalog) {
		c.evaluator = pattern.NewEvaluator(threshold)
	}
}

// WithSelectionThreshold sets the score a template must strictly exceed
func WithSelectionThreshold(threshold float64) Option {
	return func(c *Catalog) {
		c.selectionThreshold = threshold
	}
}

// New builds a catalog. Templates are validated; the first malformed one is reported.
func New(templates []*Template, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		evaluator:          pattern.NewEvaluator(pattern.DefaultThreshold),
		selectionThreshold: DefaultSelectionThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.templates = make([]*Template, 0, len(templates))
	for i, t := range templates {
		if t == nil {
			return nil, fmt.Errorf("template #%d is nil", i)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("template #%d: %w", i, err)
		}
		c.templates = append(c.templates, t)
	}
	return c, nil
}

// Templates returns the catalog's templates in load order
func (c *Catalog) Templates() []*Template {
	out := make([]*Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Evaluator exposes the evaluator so callers can re-score with full descriptions
func (c *Catalog) Evaluator() *pattern.Evaluator {
	return c.evaluator
}

// SelectionThreshold returns the strict selection threshold
func (c *Catalog) SelectionThreshold() float64 {
	return c.selectionThreshold
}

// BestTemplateFor returns the template whose patterns for side best match text.
// Descriptions are truncated for logging.
func (c *Catalog) BestTemplateFor(text string, side Side) Selection {
	return c.best(text, side, func(*Template) bool { return true })
}

// BestStartAfter is start selection that also honours each template's context rules
// against the category of the previously finalized document (nil at batch start).
func (c *Catalog) BestStartAfter(text string, previous *Template) Selection {
	prevCategory := ""
	hasPrevious := previous != nil
	if hasPrevious {
		prevCategory = previous.Category
	}
	return c.best(text, SideStart, func(t *Template) bool {
		return t.allows(prevCategory, hasPrevious)
	})
}

func (c *Catalog) best(text string, side Side, eligible func(*Template) bool) Selection {
	var best Selection
	bestScore := 0.0

	for _, t := range c.templates {
		if !eligible(t) {
			continue
		}
		positives, negatives := t.patternsFor(side)
		if _, vetoed := pattern.FirstNegative(text, negatives); vetoed {
			continue
		}
		r := c.evaluator.Evaluate(text, positives, false)
		if r.Matched && r.Score > bestScore {
			bestScore = r.Score
			best = Selection{Template: t, Info: r.Description, Score: r.Score}
		}
	}

	if best.Template != nil && bestScore > c.selectionThreshold {
		return best
	}
	return Selection{Score: bestScore}
}

// EndMatch tests only t's end patterns against text, applying t's end-negative veto
func (c *Catalog) EndMatch(t *Template, text string, fullInfo bool) EndCheck {
	r := c.evaluator.Evaluate(text, t.EndPatterns, fullInfo)
	if !r.Matched {
		return EndCheck{Score: r.Score}
	}
	if found := pattern.AllNegatives(text, t.EndNegativePatterns); len(found) > 0 {
		return EndCheck{
			Vetoed:       true,
			Info:         r.Description,
			NegativeInfo: pattern.DescribeNegatives(found),
			Score:        r.Score,
		}
	}
	return EndCheck{Matched: true, Info: r.Description, Score: r.Score}
}

// DescribeStart re-evaluates t's start patterns with untruncated descriptions
func (c *Catalog) DescribeStart(t *Template, text string) string {
	return c.evaluator.Evaluate(text, t.StartPatterns, true).Description
}

func (t *Template) patternsFor(side Side) (positives, negatives pattern.Patterns) {
	if side == SideEnd {
		return t.EndPatterns, t.EndNegativePatterns
	}
	return t.StartPatterns, t.StartNegativePatterns
}
