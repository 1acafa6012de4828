// Package scopelens finds the function or method that encloses a cursor in a
// source document and keeps a single active-scope annotation in sync as the
// document and cursor change.
//
// # Pipeline
//
//  1. Extract: an [Engine] turns a [Document] into a forest of callable
//     [Candidate]s. It asks its outline providers in order (Risor outline
//     scripts, then tree-sitter grammars). The first provider that has an
//     outline for the document's language decides; a hierarchical outline
//     is walked, a flat one is nested by range containment. When no
//     provider has an outline, per-language regular expressions find
//     function headers instead.
//
//  2. Locate: [Locate] picks the deepest candidate containing a position.
//
//  3. Synchronize: a [Synchronizer] reacts to document activation, cursor
//     moves and edits, re-extracting only when the text may have changed,
//     and notifies listeners when the active scope's identity changes.
//
// # Usage
//
//	e := scopelens.New()
//	s := scopelens.NewSynchronizer(e)
//	s.OnActiveScopeChanged(func(a scopelens.ActiveScope) { ... })
//
//	ctx := context.Background()
//	s.DocumentActivated(ctx, &doc, scopelens.Position{Line: 10})
//	s.CursorMoved(doc.ID, scopelens.Position{Line: 12, Column: 4})
//
// # Gaps between functions
//
// Regex matches only know where a header starts. [GapNone] (the default)
// ends each body at the last non-blank character before the next header, so
// a cursor on the blank lines between two functions has no scope.
// [GapPreceding] leaves the matches as point-scopes, so the gap belongs to
// the function above it.
//
// # Index
//
// [Open] attaches a SQLite index. [Engine.IndexDirectory] extracts every
// supported file under a tree and [Engine.Query] answers scope lookups from
// the stored forests without re-reading the files.
//
// # Scripts
//
// Outline scripts live at outline/{language}.risor in the scripts directory
// or filesystem. They receive the document text as source and report symbols
// with emit_symbol. See the internal/runtime package for the full set of
// globals exposed to scripts.
package scopelens
