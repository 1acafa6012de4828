package main

import (
	"time"

	"github.com/jward/scopelens"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIScope is the candidate found by `at`.
type CLIScope struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	Snippet   string `json:"snippet,omitempty"`
	// Stale is set when the file changed since it was indexed; the snippet
	// is then omitted.
	Stale bool `json:"stale,omitempty"`
}

// CLIEntry is one row of `symbols`.
type CLIEntry struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Depth     int    `json:"depth"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLIFile is one row of `files`.
type CLIFile struct {
	Path        string    `json:"path"`
	Language    string    `json:"language"`
	Provider    string    `json:"provider"`
	LastIndexed time.Time `json:"last_indexed"`
}

// CLINotification is one active scope change observed during `replay`.
// Name is empty when the cursor left every scope.
type CLINotification struct {
	Seq        int    `json:"seq"`
	Document   string `json:"document"`
	Name       string `json:"name,omitempty"`
	Kind       string `json:"kind,omitempty"`
	StartLine  int    `json:"start_line"`
	StartCol   int    `json:"start_col"`
	CursorLine int    `json:"cursor_line"`
	CursorCol  int    `json:"cursor_col"`
}

// CLIReplay is the result of `replay`.
type CLIReplay struct {
	Session       string            `json:"session,omitempty"`
	Events        int               `json:"events"`
	Notifications []CLINotification `json:"notifications"`
}

// CLISession summarizes a journal session.
type CLISession struct {
	ID     string    `json:"id"`
	Events int       `json:"events"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// CLIEvent is one journaled scope change.
type CLIEvent struct {
	RecordedAt time.Time `json:"recorded_at"`
	Document   string    `json:"document"`
	Name       string    `json:"name,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	StartLine  int       `json:"start_line"`
	StartCol   int       `json:"start_col"`
	EndLine    int       `json:"end_line"`
	EndCol     int       `json:"end_col"`
	CursorLine int       `json:"cursor_line"`
	CursorCol  int       `json:"cursor_col"`
}

func scopeToCLI(file string, c *scopelens.Candidate) CLIScope {
	return CLIScope{
		File:      file,
		Name:      c.Name,
		Kind:      c.Kind.String(),
		StartLine: c.Range.Start.Line,
		StartCol:  c.Range.Start.Column,
		EndLine:   c.Range.End.Line,
		EndCol:    c.Range.End.Column,
	}
}

func entryToCLI(e scopelens.Entry) CLIEntry {
	c := e.Candidate
	return CLIEntry{
		Name:      c.Name,
		Kind:      c.Kind.String(),
		Depth:     e.Depth,
		StartLine: c.Range.Start.Line,
		StartCol:  c.Range.Start.Column,
		EndLine:   c.Range.End.Line,
		EndCol:    c.Range.End.Column,
	}
}

func fileToCLI(f *scopelens.File) CLIFile {
	return CLIFile{Path: f.Path, Language: f.Language, Provider: f.Provider, LastIndexed: f.LastIndexed}
}

func notificationToCLI(seq int, a scopelens.ActiveScope) CLINotification {
	n := CLINotification{
		Seq:        seq,
		Document:   a.DocumentID,
		CursorLine: a.Cursor.Line,
		CursorCol:  a.Cursor.Column,
	}
	if a.Scope != nil {
		n.Name = a.Scope.Name
		n.Kind = a.Scope.Kind.String()
		n.StartLine = a.Scope.Range.Start.Line
		n.StartCol = a.Scope.Range.Start.Column
	}
	return n
}

func sessionToCLI(s *scopelens.Session) CLISession {
	return CLISession{ID: s.ID, Events: s.Events, First: s.First, Last: s.Last}
}

func eventToCLI(e *scopelens.ScopeEvent) CLIEvent {
	return CLIEvent{
		RecordedAt: e.RecordedAt,
		Document:   e.DocumentID,
		Name:       e.Name,
		Kind:       e.Kind,
		StartLine:  e.StartLine,
		StartCol:   e.StartCol,
		EndLine:    e.EndLine,
		EndCol:     e.EndCol,
		CursorLine: e.CursorLine,
		CursorCol:  e.CursorCol,
	}
}
