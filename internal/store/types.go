package store

import "time"

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	Provider    string
	LastIndexed time.Time
}

type Symbol struct {
	ID             int64
	FileID         int64
	ParentSymbolID *int64
	Name           string
	Kind           string
	Depth          int
	StartLine      int
	StartCol       int
	EndLine        int
	EndCol         int
}

// ScopeEvent is one journaled active-scope change. Name is empty when the
// cursor was outside every callable.
type ScopeEvent struct {
	ID         int64
	Session    string
	DocumentID string
	RecordedAt time.Time
	CursorLine int
	CursorCol  int
	Name       string
	Kind       string
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
}

// HasScope reports whether the event names a callable.
func (e *ScopeEvent) HasScope() bool { return e.Name != "" }

// Session summarizes one journal session.
type Session struct {
	ID     string
	Events int
	First  time.Time
	Last   time.Time
}
