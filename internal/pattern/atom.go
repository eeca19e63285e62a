package pattern

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AtomKind tags the two shapes an atom can take
type AtomKind int

const (
	// KindLiteral atoms match when their single string is present (OR against sibling atoms)
	KindLiteral AtomKind = iota
	// KindAllOf atoms match only when every member string is present (AND)
	KindAllOf
)

// Atom is one entry of a pattern set: either Literal(text) or AllOf(texts...)
type Atom struct {
	kind  AtomKind
	terms []string
}

// Patterns is an ordered set of atoms
type Patterns []Atom

// Literal builds a single-string atom
func Literal(text string) Atom {
	return Atom{kind: KindLiteral, terms: []string{text}}
}

// AllOf builds an atom requiring every text to be present
func AllOf(texts ...string) Atom {
	terms := make([]string, len(texts))
	copy(terms, texts)
	return Atom{kind: KindAllOf, terms: terms}
}

// Kind reports which variant the atom is
func (a Atom) Kind() AtomKind {
	return a.kind
}

// Text returns the literal string (empty for AllOf atoms)
func (a Atom) Text() string {
	if a.kind != KindLiteral || len(a.terms) == 0 {
		return ""
	}
	return a.terms[0]
}

// Terms returns a copy of the atom's member strings
func (a Atom) Terms() []string {
	out := make([]string, len(a.terms))
	copy(out, a.terms)
	return out
}

// String renders the atom for diagnostics
func (a Atom) String() string {
	if a.kind == KindLiteral {
		return fmt.Sprintf("'%s'", a.Text())
	}
	quoted := make([]string, len(a.terms))
	for i, t := range a.terms {
		quoted[i] = fmt.Sprintf("'%s'", t)
	}
	return "AND[" + strings.Join(quoted, ", ") + "]"
}

// MarshalJSON writes a literal as a string and AllOf as an array
func (a Atom) MarshalJSON() ([]byte, error) {
	if a.kind == KindLiteral {
		return json.Marshal(a.Text())
	}
	return json.Marshal(a.terms)
}

// UnmarshalJSON accepts either a string or an array of strings.
// Terms are normalized to NFC to agree with cleaned page text.
func (a *Atom) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal pattern atom: %w", err)
	}

	switch v := raw.(type) {
	case string:
		*a = Literal(norm.NFC.String(v))
	case []interface{}:
		terms := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("pattern atom element %d must be a string, got %T", i, item)
			}
			terms = append(terms, norm.NFC.String(s))
		}
		*a = AllOf(terms...)
	default:
		return fmt.Errorf("pattern atom must be a string or an array of strings, got %T", v)
	}
	return nil
}

// UnmarshalJSON accepts an array of atoms or a bare string (one literal atom)
func (p *Patterns) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*p = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = Patterns{Literal(norm.NFC.String(single))}
		return nil
	}

	var atoms []Atom
	if err := json.Unmarshal(data, &atoms); err != nil {
		return fmt.Errorf("patterns must be a string or an array of atoms: %w", err)
	}
	*p = atoms
	return nil
}
