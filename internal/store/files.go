package store

import (
	"database/sql"
	"fmt"
)

const fileColumns = "id, path, language, hash, provider, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash, provider sql.NullString
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &hash, &provider, &indexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.Provider = provider.String
	f.LastIndexed = indexed.Time
	return f, nil
}

// FileByPath returns the file indexed at path, or nil if there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by path: %w", err)
	}
	return f, nil
}

// FileByID returns the file with the given id, or nil if there is none.
func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by id: %w", err)
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() ([]*File, error) {
	return s.queryFiles("SELECT " + fileColumns + " FROM files ORDER BY path")
}

// FilesByLanguage returns the files of one canonical language ordered by path.
func (s *Store) FilesByLanguage(language string) ([]*File, error) {
	return s.queryFiles("SELECT "+fileColumns+" FROM files WHERE language = ? ORDER BY path", language)
}
