package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/scopelens/internal/outline"
)

// CommitFile replaces everything stored for f.Path with f and the given
// candidate forest inside a single transaction. Parent links follow the
// forest's nesting. f.ID is set to the file's row id.
func (s *Store) CommitFile(f *File, forest []*outline.Candidate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: commit %s: begin: %w", f.Path, err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			"INSERT INTO files (path, language, hash, provider, last_indexed) VALUES (?, ?, ?, ?, ?)",
			f.Path, f.Language, f.Hash, f.Provider, f.LastIndexed,
		)
		if err != nil {
			return fmt.Errorf("store: commit %s: insert file: %w", f.Path, err)
		}
		if f.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store: commit %s: last insert id: %w", f.Path, err)
		}
	case err != nil:
		return fmt.Errorf("store: commit %s: lookup: %w", f.Path, err)
	default:
		f.ID = existing
		if _, err := tx.Exec("DELETE FROM symbols WHERE file_id = ?", f.ID); err != nil {
			return fmt.Errorf("store: commit %s: clear symbols: %w", f.Path, err)
		}
		_, err := tx.Exec(
			"UPDATE files SET language = ?, hash = ?, provider = ?, last_indexed = ? WHERE id = ?",
			f.Language, f.Hash, f.Provider, f.LastIndexed, f.ID,
		)
		if err != nil {
			return fmt.Errorf("store: commit %s: update file: %w", f.Path, err)
		}
	}

	if err := insertForest(tx, f.ID, nil, 0, forest); err != nil {
		return fmt.Errorf("store: commit %s: %w", f.Path, err)
	}
	return tx.Commit()
}

func insertForest(tx *sql.Tx, fileID int64, parent *int64, depth int, forest []*outline.Candidate) error {
	for _, c := range forest {
		sym := &Symbol{
			FileID:         fileID,
			ParentSymbolID: parent,
			Name:           c.Name,
			Kind:           c.Kind.String(),
			Depth:          depth,
			StartLine:      c.Range.Start.Line,
			StartCol:       c.Range.Start.Column,
			EndLine:        c.Range.End.Line,
			EndCol:         c.Range.End.Column,
		}
		id, err := insertSymbol(tx, sym)
		if err != nil {
			return err
		}
		if err := insertForest(tx, fileID, &id, depth+1, c.Children); err != nil {
			return err
		}
	}
	return nil
}

// Forest rebuilds the candidate forest stored for a file.
func (s *Store) Forest(fileID int64) ([]*outline.Candidate, error) {
	syms, err := s.SymbolsByFile(fileID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*outline.Candidate, len(syms))
	var roots []*outline.Candidate
	for _, sym := range syms {
		c := &outline.Candidate{
			Name: sym.Name,
			Kind: outline.ParseKind(sym.Kind),
			Range: outline.Range{
				Start: outline.Position{Line: sym.StartLine, Column: sym.StartCol},
				End:   outline.Position{Line: sym.EndLine, Column: sym.EndCol},
			},
		}
		byID[sym.ID] = c
		if sym.ParentSymbolID == nil {
			roots = append(roots, c)
			continue
		}
		p, ok := byID[*sym.ParentSymbolID]
		if !ok {
			return nil, fmt.Errorf("store: symbol %d: parent %d not found before child", sym.ID, *sym.ParentSymbolID)
		}
		p.Children = append(p.Children, c)
	}
	return roots, nil
}
