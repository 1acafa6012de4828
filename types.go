package scopelens

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/scopelens/internal/outline"
	"github.com/jward/scopelens/internal/store"
)

// Public aliases for the outline model. These are Go type aliases, so values
// move between this package and the internal packages without conversion.

type Document = outline.Document
type Position = outline.Position
type Range = outline.Range
type Candidate = outline.Candidate
type Kind = outline.Kind
type Identity = outline.Identity
type Entry = outline.Entry
type Symbol = outline.Symbol
type SymbolKind = outline.SymbolKind
type Outline = outline.Outline

// Index row types returned by the QueryBuilder.

type File = store.File
type ScopeEvent = store.ScopeEvent
type Session = store.Session

const (
	Function = outline.Function
	Method   = outline.Method
)

const (
	SymbolFunction  = outline.SymbolFunction
	SymbolMethod    = outline.SymbolMethod
	SymbolClass     = outline.SymbolClass
	SymbolInterface = outline.SymbolInterface
	SymbolStruct    = outline.SymbolStruct
	SymbolModule    = outline.SymbolModule
	SymbolVariable  = outline.SymbolVariable
	SymbolField     = outline.SymbolField
)

var (
	// ErrOutlineUnavailable is returned by an OutlineProvider that has no
	// outline for a document's language.
	ErrOutlineUnavailable = outline.ErrUnavailable

	// ErrExtractionFailed wraps provider errors and malformed outlines.
	ErrExtractionFailed = outline.ErrExtractionFailed
)

// OutlineProvider supplies a structured outline for a document.
type OutlineProvider interface {
	Outline(ctx context.Context, doc Document) (*Outline, error)
}

// Locate returns the deepest candidate containing pos, or nil when pos is
// outside every candidate.
func Locate(candidates []*Candidate, pos Position) *Candidate {
	return outline.Locate(candidates, pos)
}

// Flatten lists a candidate forest in order of appearance with depths.
func Flatten(forest []*Candidate) []Entry {
	return outline.Flatten(forest)
}

// GapPolicy decides what a cursor between two regex-matched functions
// resolves to.
type GapPolicy int

const (
	// GapNone ends each matched body at its last non-blank character.
	GapNone GapPolicy = iota
	// GapPreceding extends each matched body to the next header.
	GapPreceding
)

func (g GapPolicy) String() string {
	if g == GapPreceding {
		return "preceding"
	}
	return "none"
}

// ParseGapPolicy parses "none" or "preceding".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GapNone, nil
	case "preceding":
		return GapPreceding, nil
	}
	return GapNone, fmt.Errorf("scopelens: unknown gap policy %q", s)
}
