/**
 * Segmenter
 *
 * Walks pages in ascending page-number order and partitions them into
 * document groups. Two states:
 * - expecting a start: ask the catalog which template starts on this page
 * - accumulating: test only the bound template's end patterns
 * A group still open when pages run out is reported as incomplete.
 *
 * The scan is a pure function of (catalog, page texts). It performs no I/O
 * and keeps no state between calls; diagnostics go to the Observer.
 */

package segmenter

import (
	"fmt"
	"sort"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	apperrors "github.com/adverant/nexus/docsegment-worker/internal/errors"
)

// Page is one page of recognized text
type Page struct {
	Number int    `json:"pageNumber"`
	Text   string `json:"text"`
}

// Segmenter partitions page streams using a template catalog
type Segmenter struct {
	catalog  *catalog.Catalog
	observer Observer
}

// Option configures a Segmenter
type Option func(*Segmenter)

// WithObserver routes scan events to o
func WithObserver(o Observer) Option {
	return func(s *Segmenter) {
		if o != nil {
			s.observer = o
		}
	}
}

// New creates a segmenter over c
func New(c *catalog.Catalog, opts ...Option) *Segmenter {
	s := &Segmenter{catalog: c, observer: NopObserver{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scan holds the state of one pass. It is never shared between calls.
type scan struct {
	*Segmenter
	result   *Result
	current  *DocumentGroup
	previous *catalog.Template // template of the last finalized document
}

// Segment partitions pages. Page numbers are processed in ascending order;
// gaps are allowed. Empty input yields an empty result.
func (s *Segmenter) Segment(pages map[int]string) *Result {
	sc := &scan{Segmenter: s, result: &Result{}}

	for _, n := range sortedNumbers(pages) {
		text := pages[n]
		if sc.current != nil {
			sc.continueGroup(n, text)
		} else {
			sc.expectStart(n, text)
		}
	}

	if g := sc.current; g != nil {
		sc.result.Incomplete = append(sc.result.Incomplete, g)
		sc.result.Unmatched = append(sc.result.Unmatched, g.Pages...)
		sc.emit(Event{Kind: EventIncomplete, Page: g.EndPage, Template: g.Template, Group: g})
		sc.current = nil
	}

	return sc.result
}

func (sc *scan) expectStart(n int, text string) {
	sel := sc.catalog.BestStartAfter(text, sc.previous)
	if !sel.Found() {
		placeholder := newGroup(catalog.UnmatchedTemplate, n)
		sc.result.Placeholders = append(sc.result.Placeholders, placeholder)
		sc.result.Unmatched = append(sc.result.Unmatched, n)
		sc.emit(Event{Kind: EventUnmatched, Page: n, Group: placeholder, Score: sel.Score})
		return
	}

	t := sel.Template
	group := newGroup(t, n)
	group.StartMatchInfo = sc.catalog.DescribeStart(t, text)
	end := sc.catalog.EndMatch(t, text, true)

	if end.Matched {
		group.EndMatchInfo = end.Info
		sc.finalize(group)
		sc.emit(Event{Kind: EventSinglePage, Page: n, Template: t, Group: group, Info: sel.Info})
		return
	}

	if t.SinglePage {
		info := "end patterns not found on start page"
		if end.Vetoed {
			info = "end match overridden by negative pattern: " + end.NegativeInfo
		}
		sc.result.Unmatched = append(sc.result.Unmatched, n)
		sc.emit(Event{Kind: EventSingleEndMissing, Page: n, Template: t, Info: info, Score: end.Score})
		return
	}

	if end.Vetoed {
		group.EndNegativeMatchInfo = end.NegativeInfo
	}
	sc.current = group
	sc.emit(Event{Kind: EventStarted, Page: n, Template: t, Group: group, Info: sel.Info})
}

func (sc *scan) continueGroup(n int, text string) {
	g := sc.current
	g.add(n)

	end := sc.catalog.EndMatch(g.Template, text, true)
	switch {
	case end.Matched:
		g.EndMatchInfo = end.Info
		sc.finalize(g)
		sc.current = nil
		sc.emit(Event{Kind: EventClosed, Page: n, Template: g.Template, Group: g, Info: end.Info})
	case end.Vetoed:
		g.EndNegativeMatchInfo = end.NegativeInfo
		sc.emit(Event{Kind: EventEndVetoed, Page: n, Template: g.Template, Group: g, Info: end.NegativeInfo})
	default:
		sc.emit(Event{Kind: EventContinued, Page: n, Template: g.Template, Group: g})
	}
}

func (sc *scan) finalize(g *DocumentGroup) {
	sc.result.Documents = append(sc.result.Documents, g)
	sc.previous = g.Template
}

func (sc *scan) emit(e Event) {
	sc.observer.Observe(e)
}

func sortedNumbers(pages map[int]string) []int {
	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// ValidatePages rejects non-positive page numbers. Run it before Segment
// on input from outside the process.
func ValidatePages(pages map[int]string) error {
	for _, n := range sortedNumbers(pages) {
		if n <= 0 {
			return apperrors.NewInvalidPagesError("", n)
		}
	}
	return nil
}

// Collect converts a page list to the segmenter's input map, rejecting
// non-positive and duplicate page numbers.
func Collect(pages []Page) (map[int]string, error) {
	out := make(map[int]string, len(pages))
	for _, p := range pages {
		if p.Number <= 0 {
			return nil, apperrors.NewInvalidPagesError("", p.Number)
		}
		if _, dup := out[p.Number]; dup {
			err := apperrors.NewInvalidPagesError("", p.Number)
			err.Message = fmt.Sprintf("Duplicate page number %d", p.Number)
			return nil, err
		}
		out[p.Number] = p.Text
	}
	return out, nil
}
