package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertScopeEvent appends an active-scope change to the journal.
func (s *Store) InsertScopeEvent(e *ScopeEvent) (int64, error) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	var name, kind sql.NullString
	var sl, sc, el, ec sql.NullInt64
	if e.HasScope() {
		name = sql.NullString{String: e.Name, Valid: true}
		kind = sql.NullString{String: e.Kind, Valid: true}
		sl = sql.NullInt64{Int64: int64(e.StartLine), Valid: true}
		sc = sql.NullInt64{Int64: int64(e.StartCol), Valid: true}
		el = sql.NullInt64{Int64: int64(e.EndLine), Valid: true}
		ec = sql.NullInt64{Int64: int64(e.EndCol), Valid: true}
	}

	res, err := s.db.Exec(
		`INSERT INTO scope_events (session, document_id, recorded_at, cursor_line, cursor_col,
			name, kind, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.DocumentID, e.RecordedAt, e.CursorLine, e.CursorCol,
		name, kind, sl, sc, el, ec,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert scope event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

// ScopeEvents returns a session's events in the order they were recorded.
func (s *Store) ScopeEvents(session string) ([]*ScopeEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session, document_id, recorded_at, cursor_line, cursor_col,
			name, kind, start_line, start_col, end_line, end_col
		 FROM scope_events WHERE session = ? ORDER BY id`, session)
	if err != nil {
		return nil, fmt.Errorf("store: scope events: %w", err)
	}
	defer rows.Close()

	var events []*ScopeEvent
	for rows.Next() {
		e := &ScopeEvent{}
		var name, kind sql.NullString
		var sl, sc, el, ec sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Session, &e.DocumentID, &e.RecordedAt, &e.CursorLine, &e.CursorCol,
			&name, &kind, &sl, &sc, &el, &ec); err != nil {
			return nil, fmt.Errorf("store: scan scope event: %w", err)
		}
		e.Name, e.Kind = name.String, kind.String
		e.StartLine, e.StartCol = int(sl.Int64), int(sc.Int64)
		e.EndLine, e.EndCol = int(el.Int64), int(ec.Int64)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Sessions lists journal sessions, most recent first.
func (s *Store) Sessions() ([]*Session, error) {
	rows, err := s.db.Query(
		`SELECT session, COUNT(*), MIN(id), MAX(id) FROM scope_events
		 GROUP BY session ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: sessions: %w", err)
	}
	defer rows.Close()

	type span struct {
		session     *Session
		first, last int64
	}
	var spans []span
	for rows.Next() {
		sp := span{session: &Session{}}
		if err := rows.Scan(&sp.session.ID, &sp.session.Events, &sp.first, &sp.last); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		spans = append(spans, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Session, 0, len(spans))
	for _, sp := range spans {
		if err := s.db.QueryRow("SELECT recorded_at FROM scope_events WHERE id = ?", sp.first).Scan(&sp.session.First); err != nil {
			return nil, fmt.Errorf("store: session %s start: %w", sp.session.ID, err)
		}
		if err := s.db.QueryRow("SELECT recorded_at FROM scope_events WHERE id = ?", sp.last).Scan(&sp.session.Last); err != nil {
			return nil, fmt.Errorf("store: session %s end: %w", sp.session.ID, err)
		}
		out = append(out, sp.session)
	}
	return out, nil
}
