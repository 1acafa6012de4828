package scopelens

import (
	"github.com/jward/scopelens/internal/store"
)

// JournalListener returns a Listener that records every scope change in the
// index under session. Write failures are logged and dropped.
func (e *Engine) JournalListener(session string) Listener {
	return func(a ActiveScope) {
		if e.store == nil {
			return
		}
		ev := &store.ScopeEvent{
			Session:    session,
			DocumentID: a.DocumentID,
			CursorLine: a.Cursor.Line,
			CursorCol:  a.Cursor.Column,
		}
		if a.Scope != nil {
			ev.Name = a.Scope.Name
			ev.Kind = a.Scope.Kind.String()
			ev.StartLine, ev.StartCol = a.Scope.Range.Start.Line, a.Scope.Range.Start.Column
			ev.EndLine, ev.EndCol = a.Scope.Range.End.Line, a.Scope.Range.End.Column
		}
		if _, err := e.store.InsertScopeEvent(ev); err != nil {
			e.logger.Warn("journal write failed", "session", session, "error", err)
		}
	}
}
