// Package outline holds the document and candidate model shared by the
// extractors, the scope locator and the synchronizer.
package outline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable reports that a provider has no structured outline for a
	// document's language. It is an expected condition, not a failure.
	ErrUnavailable = errors.New("outline unavailable")

	// ErrExtractionFailed reports malformed outline data from a provider.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Document is an immutable snapshot of an editor document.
type Document struct {
	ID       string
	Language string
	Text     string
}

// Position is a 0-based line and byte column within a document snapshot.
type Position struct {
	Line   int
	Column int
}

// Compare returns -1, 0 or +1 depending on whether p sorts before, equal to,
// or after q in document order.
func (p Position) Compare(q Position) int {
	switch {
	case p.Line < q.Line:
		return -1
	case p.Line > q.Line:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	}
	return 0
}

// Before reports whether p sorts strictly before q.
func (p Position) Before(q Position) bool { return p.Compare(q) < 0 }

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Range is an ordered pair of positions, inclusive on both ends.
type Range struct {
	Start Position
	End   Position
}

// Valid reports whether Start <= End.
func (r Range) Valid() bool { return r.Start.Compare(r.End) <= 0 }

// IsZero reports whether the range has zero width (a point-scope).
func (r Range) IsZero() bool { return r.Start == r.End }

// Contains reports whether p lies within r, inclusive on both ends.
func (r Range) Contains(p Position) bool {
	return r.Start.Compare(p) <= 0 && p.Compare(r.End) <= 0
}

// ContainsRange reports whether o lies entirely within r.
func (r Range) ContainsRange(o Range) bool {
	return r.Start.Compare(o.Start) <= 0 && o.End.Compare(r.End) <= 0
}

func (r Range) String() string { return r.Start.String() + "-" + r.End.String() }

// Kind classifies a callable candidate.
type Kind int

const (
	Function Kind = iota
	Method
)

func (k Kind) String() string {
	if k == Method {
		return "method"
	}
	return "function"
}

// ParseKind maps "method" to Method and everything else to Function.
func ParseKind(s string) Kind {
	if s == "method" {
		return Method
	}
	return Function
}

// Candidate is one detected callable construct. Children are the callables
// nested inside it; each child's range lies within its parent's.
type Candidate struct {
	Name     string
	Kind     Kind
	Range    Range
	Children []*Candidate
}

// Identity is what the synchronizer compares to decide whether the active
// scope changed: the name and the start position at extraction time.
type Identity struct {
	Name  string
	Start Position
}

// Identity returns the candidate's identity.
func (c *Candidate) Identity() Identity {
	return Identity{Name: c.Name, Start: c.Range.Start}
}

// SymbolKind is the kind a structured outline reports for a node.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolStruct    SymbolKind = "struct"
	SymbolModule    SymbolKind = "module"
	SymbolVariable  SymbolKind = "variable"
	SymbolField     SymbolKind = "field"
)

// Callable reports whether nodes of this kind become candidates.
func (k SymbolKind) Callable() bool {
	return k == SymbolFunction || k == SymbolMethod
}

// Symbol is one node of a structured outline. Children is empty for flat
// outlines.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	Range    Range
	Children []*Symbol
}

// Outline is what an outline provider returns for a document.
type Outline struct {
	Symbols      []*Symbol
	Hierarchical bool
}
