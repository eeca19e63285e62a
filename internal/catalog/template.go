package catalog

import (
	"fmt"

	"github.com/adverant/nexus/docsegment-worker/internal/pattern"
)

// UnmatchedName is the output label for pages no template claims
const UnmatchedName = "เอกสารไม่มีชื่อ.pdf"

// UnmatchedCategory is the category used for placeholder documents
const UnmatchedCategory = "เอกสารไม่มีชื่อ"

// ContextRules constrain a template by the category of the previous finalized document
type ContextRules struct {
	RequirePreviousCategory string `json:"requirePreviousCategory,omitempty"`
	BlockPreviousCategory   string `json:"blockPreviousCategory,omitempty"`
}

// Template describes how the first and last page of a document are recognized
type Template struct {
	Name                  string           `json:"name"`
	StartPatterns         pattern.Patterns `json:"first_page_patterns"`
	EndPatterns           pattern.Patterns `json:"last_page_patterns"`
	Category              string           `json:"category,omitempty"`
	StartNegativePatterns pattern.Patterns `json:"first_page_negative_patterns,omitempty"`
	EndNegativePatterns   pattern.Patterns `json:"last_page_negative_patterns,omitempty"`
	SinglePage            bool             `json:"is_single_page,omitempty"`
	ContextRules          *ContextRules    `json:"context_rules,omitempty"`
}

// UnmatchedTemplate is bound to placeholder documents
var UnmatchedTemplate = &Template{
	Name:     UnmatchedName,
	Category: UnmatchedCategory,
}

// IsUnmatched reports whether t is the placeholder template
func (t *Template) IsUnmatched() bool {
	return t == UnmatchedTemplate
}

// Validate checks the template is well formed
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if len(t.StartPatterns) == 0 {
		return fmt.Errorf("template %q: first_page_patterns is required", t.Name)
	}
	if len(t.EndPatterns) == 0 {
		return fmt.Errorf("template %q: last_page_patterns is required", t.Name)
	}

	sets := []struct {
		field string
		atoms pattern.Patterns
	}{
		{"first_page_patterns", t.StartPatterns},
		{"last_page_patterns", t.EndPatterns},
		{"first_page_negative_patterns", t.StartNegativePatterns},
		{"last_page_negative_patterns", t.EndNegativePatterns},
	}
	for _, set := range sets {
		for i, atom := range set.atoms {
			terms := atom.Terms()
			if len(terms) == 0 {
				return fmt.Errorf("template %q: %s[%d] is an empty list", t.Name, set.field, i)
			}
			for _, term := range terms {
				if term == "" {
					return fmt.Errorf("template %q: %s[%d] contains an empty string", t.Name, set.field, i)
				}
			}
		}
	}
	return nil
}

// allows reports whether the context rules permit t after a document of previousCategory.
// hasPrevious is false at the start of a batch.
func (t *Template) allows(previousCategory string, hasPrevious bool) bool {
	if t.ContextRules == nil {
		return true
	}
	if req := t.ContextRules.RequirePreviousCategory; req != "" {
		if !hasPrevious || previousCategory != req {
			return false
		}
	}
	if block := t.ContextRules.BlockPreviousCategory; block != "" {
		if hasPrevious && previousCategory == block {
			return false
		}
	}
	return true
}
