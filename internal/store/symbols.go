package store

import (
	"database/sql"
	"fmt"
)

const symbolColumns = `id, file_id, parent_symbol_id, name, kind, depth,
	start_line, start_col, end_line, end_col`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	var parent sql.NullInt64
	err := scanner.Scan(&sym.ID, &sym.FileID, &parent, &sym.Name, &sym.Kind, &sym.Depth,
		&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		sym.ParentSymbolID = &parent.Int64
	}
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query symbols: %w", err)
	}
	defer rows.Close()
	var syms []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan symbol: %w", err)
		}
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertSymbol(db execer, sym *Symbol) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO symbols (file_id, parent_symbol_id, name, kind, depth,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.ParentSymbolID, sym.Name, sym.Kind, sym.Depth,
		sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert symbol %q: %w", sym.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	sym.ID = id
	return id, nil
}

// SymbolsByFile returns a file's symbols in pre-order: by start position,
// parents before children.
func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols(
		"SELECT "+symbolColumns+" FROM symbols WHERE file_id = ? ORDER BY start_line, start_col, depth", fileID)
}

func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+symbolColumns+" FROM symbols WHERE name = ? ORDER BY file_id, start_line", name)
}
