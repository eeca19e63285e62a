/**
 * Segmentation reports
 *
 * Turns a segmentation result into the artifacts reviewers read:
 * - config.json: per-page map (template, status, page type, match reason)
 * - summary.md / summary.html: audit trail with incomplete documents and
 *   unmatched pages that need manual review
 * Output names follow the batch layout pdfs/<category>/<name>, with -1, -2
 * suffixes when a template produces several documents.
 */

package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
)

// Page statuses
const (
	StatusMatched    = "matched"
	StatusIncomplete = "incomplete"
	StatusUnmatched  = "unmatched"
)

// Page types within a document
const (
	PageStart  = "start"
	PageMiddle = "middle"
	PageEnd    = "end"
	PageSingle = "single"
)

// Reason codes for pages outside finalized documents
const (
	ReasonNoFirstPageMatch = "no_first_page_match"
	ReasonNoLastPageFound  = "no_last_page_found"
)

// Batch statuses
const (
	BatchMatched      = "matched"
	BatchHasUnmatched = "has_unmatched"
)

// rootCategory labels documents whose template has no category
const rootCategory = "root"

// Output is the file a finalized document is written to
type Output struct {
	Group *segmenter.DocumentGroup
	Name  string // file name, suffixed when the template name repeats
	Path  string // pdfs/<category>/<name> or pdfs/<name>
}

// AssignOutputNames names every finalized document. The first document of a
// template keeps the template name; later ones get -1, -2, ... before the extension.
func AssignOutputNames(groups []*segmenter.DocumentGroup) []Output {
	seen := make(map[string]int)
	outputs := make([]Output, 0, len(groups))

	for _, g := range groups {
		base := g.Template.Name
		name := base
		if count, ok := seen[base]; ok {
			count++
			seen[base] = count
			name = suffixed(base, count)
		} else {
			seen[base] = 0
		}

		path := "pdfs/" + name
		if g.Template.Category != "" {
			path = "pdfs/" + g.Template.Category + "/" + name
		}
		outputs = append(outputs, Output{Group: g, Name: name, Path: path})
	}
	return outputs
}

func suffixed(name string, n int) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + "-" + strconv.Itoa(n) + name[i:]
	}
	return name + "-" + strconv.Itoa(n)
}

// PageInfo describes one page in config.json
type PageInfo struct {
	Template      *string `json:"template"`
	Category      *string `json:"category"`
	Status        string  `json:"status"`
	PageType      string  `json:"page_type,omitempty"`
	MatchReason   string  `json:"match_reason,omitempty"`
	NegativeMatch string  `json:"negative_match,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Output        string  `json:"output,omitempty"`
}

// Summary is the batch-level record written as config.json
type Summary struct {
	FolderID            string              `json:"folder_id"`
	TotalPages          int                 `json:"total_pages"`
	MatchedPages        int                 `json:"matched_pages"`
	UnmatchedPages      int                 `json:"unmatched_pages"`
	IncompletePages     int                 `json:"incomplete_pages"`
	TrulyUnmatchedPages int                 `json:"truly_unmatched_pages"`
	Documents           int                 `json:"documents"`
	IncompleteDocuments int                 `json:"incomplete_documents"`
	Status              string              `json:"status"`
	MatchPercentage     float64             `json:"match_percentage"`
	ProcessedDate       time.Time           `json:"processed_date"`
	OCREngine           string              `json:"ocr_engine,omitempty"`
	Warnings            []string            `json:"warnings"`
	Pages               map[string]PageInfo `json:"pages"`
}

// HasUnmatched reports whether any page is outside a finalized document
func (s *Summary) HasUnmatched() bool {
	return s.Status == BatchHasUnmatched
}

func strPtr(s string) *string {
	return &s
}

// BuildPageMap categorizes every page of result
func BuildPageMap(result *segmenter.Result) map[int]PageInfo {
	pages := make(map[int]PageInfo)

	for _, out := range AssignOutputNames(result.Documents) {
		g := out.Group
		category := g.Template.Category
		if category == "" {
			category = rootCategory
		}
		for i, n := range g.Pages {
			info := PageInfo{
				Template: strPtr(g.Template.Name),
				Category: strPtr(category),
				Status:   StatusMatched,
				Output:   out.Path,
			}
			switch {
			case len(g.Pages) == 1:
				info.PageType = PageSingle
				info.MatchReason = g.StartMatchInfo + " / " + g.EndMatchInfo
			case i == 0:
				info.PageType = PageStart
				info.MatchReason = g.StartMatchInfo
			case i == len(g.Pages)-1:
				info.PageType = PageEnd
				info.MatchReason = g.EndMatchInfo
				info.NegativeMatch = g.EndNegativeMatchInfo
			default:
				info.PageType = PageMiddle
			}
			pages[n] = info
		}
	}

	incomplete := make(map[int]bool)
	for _, n := range result.IncompletePages() {
		incomplete[n] = true
	}
	for _, n := range result.Unmatched {
		if incomplete[n] {
			pages[n] = PageInfo{Status: StatusIncomplete, Reason: ReasonNoLastPageFound}
			continue
		}
		pages[n] = PageInfo{
			Template: strPtr(catalog.UnmatchedName),
			Category: strPtr(StatusUnmatched),
			Status:   StatusUnmatched,
			Reason:   ReasonNoFirstPageMatch,
		}
	}
	return pages
}

// BuildSummary computes batch totals and the page map
func BuildSummary(folderID string, result *segmenter.Result, processed time.Time, ocrEngine string) *Summary {
	pageMap := BuildPageMap(result)
	matched := len(result.MatchedPages())
	total := matched + len(result.Unmatched)
	incompletePages := len(result.IncompletePages())

	s := &Summary{
		FolderID:            folderID,
		TotalPages:          total,
		MatchedPages:        matched,
		UnmatchedPages:      len(result.Unmatched),
		IncompletePages:     incompletePages,
		TrulyUnmatchedPages: len(result.Unmatched) - incompletePages,
		Documents:           len(result.Documents),
		IncompleteDocuments: len(result.Incomplete),
		Status:              BatchMatched,
		ProcessedDate:       processed,
		OCREngine:           ocrEngine,
		Warnings:            []string{},
		Pages:               make(map[string]PageInfo, len(pageMap)),
	}
	if len(result.Unmatched) > 0 {
		s.Status = BatchHasUnmatched
	}
	if total > 0 {
		s.MatchPercentage = math.Round(float64(matched)/float64(total)*1000) / 10
	}
	for _, g := range result.Incomplete {
		s.Warnings = append(s.Warnings, "Document "+g.Template.Name+" starting at page "+strconv.Itoa(g.StartPage)+" has no last page")
	}
	for n, info := range pageMap {
		s.Pages[strconv.Itoa(n)] = info
	}
	return s
}
