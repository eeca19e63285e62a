package segmenter

import (
	"sort"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
)

// DocumentGroup is a contiguous run of pages bound to one template
type DocumentGroup struct {
	Template             *catalog.Template
	StartPage            int
	EndPage              int
	Pages                []int
	StartMatchInfo       string
	EndMatchInfo         string
	EndNegativeMatchInfo string // set when an end candidate was overridden by a negative pattern
}

func newGroup(t *catalog.Template, page int) *DocumentGroup {
	return &DocumentGroup{
		Template:  t,
		StartPage: page,
		EndPage:   page,
		Pages:     []int{page},
	}
}

func (g *DocumentGroup) add(page int) {
	g.Pages = append(g.Pages, page)
	g.EndPage = page
}

// IsPlaceholder reports whether the group stands in for an unmatched page
func (g *DocumentGroup) IsPlaceholder() bool {
	return g.Template.IsUnmatched()
}

// PageCount returns the number of pages in the group
func (g *DocumentGroup) PageCount() int {
	return len(g.Pages)
}

// Result is the full categorization of one batch of pages.
//
// Every input page is in exactly one of Documents, Incomplete, or the truly
// unmatched pages. Unmatched also lists the pages of incomplete groups.
// Placeholders hold one synthetic single-page group per page that no template
// started on; they are not counted as documents.
type Result struct {
	Documents    []*DocumentGroup
	Unmatched    []int
	Incomplete   []*DocumentGroup
	Placeholders []*DocumentGroup
}

// Ordered returns finalized documents and placeholders sorted by start page
func (r *Result) Ordered() []*DocumentGroup {
	out := make([]*DocumentGroup, 0, len(r.Documents)+len(r.Placeholders))
	out = append(out, r.Documents...)
	out = append(out, r.Placeholders...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartPage < out[j].StartPage
	})
	return out
}

// IncompletePages returns the pages absorbed into incomplete groups, ascending
func (r *Result) IncompletePages() []int {
	var pages []int
	for _, g := range r.Incomplete {
		pages = append(pages, g.Pages...)
	}
	sort.Ints(pages)
	return pages
}

// TrulyUnmatched returns unmatched pages that do not belong to an incomplete group
func (r *Result) TrulyUnmatched() []int {
	inIncomplete := make(map[int]bool)
	for _, p := range r.IncompletePages() {
		inIncomplete[p] = true
	}
	var pages []int
	for _, p := range r.Unmatched {
		if !inIncomplete[p] {
			pages = append(pages, p)
		}
	}
	return pages
}

// MatchedPages returns the pages of finalized documents, ascending
func (r *Result) MatchedPages() []int {
	var pages []int
	for _, g := range r.Documents {
		pages = append(pages, g.Pages...)
	}
	sort.Ints(pages)
	return pages
}

// PageCount returns the number of input pages the result covers
func (r *Result) PageCount() int {
	return len(r.MatchedPages()) + len(r.Unmatched)
}
