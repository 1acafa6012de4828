package scopelens

import (
	"fmt"
	"sort"

	"github.com/jward/scopelens/internal/runtime"
	"github.com/jward/scopelens/internal/store"
)

// QueryBuilder answers scope questions from the index without re-reading or
// re-extracting files.
type QueryBuilder struct {
	store *store.Store
}

// Location is an indexed candidate and the file it was found in.
type Location struct {
	File      string
	Name      string
	Kind      string
	Depth     int
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// ScopeAt returns the deepest indexed candidate of file containing
// (line, col), using the same rules as Locate. It returns nil when the file
// is not indexed or no candidate contains the position.
func (q *QueryBuilder) ScopeAt(file string, line, col int) (*Candidate, error) {
	forest, err := q.forest(file)
	if err != nil {
		return nil, fmt.Errorf("scope at: %w", err)
	}
	return Locate(forest, Position{Line: line, Column: col}), nil
}

// Functions lists the indexed candidates of file in order of appearance.
// It returns nil when the file is not indexed.
func (q *QueryBuilder) Functions(file string) ([]Entry, error) {
	forest, err := q.forest(file)
	if err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}
	return Flatten(forest), nil
}

func (q *QueryBuilder) forest(file string) ([]*Candidate, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	f, err := q.store.FileByPath(file)
	if err != nil {
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return q.store.Forest(f.ID)
}

// FindByName returns every indexed candidate called name, across files.
func (q *QueryBuilder) FindByName(name string) ([]Location, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	syms, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}

	paths := make(map[int64]string)
	var locs []Location
	for _, sym := range syms {
		path, ok := paths[sym.FileID]
		if !ok {
			f, err := q.store.FileByID(sym.FileID)
			if err != nil {
				return nil, fmt.Errorf("find by name: lookup file: %w", err)
			}
			if f == nil {
				continue
			}
			path = f.Path
			paths[sym.FileID] = path
		}
		locs = append(locs, Location{
			File:      path,
			Name:      sym.Name,
			Kind:      sym.Kind,
			Depth:     sym.Depth,
			StartLine: sym.StartLine,
			StartCol:  sym.StartCol,
			EndLine:   sym.EndLine,
			EndCol:    sym.EndCol,
		})
	}
	return locs, nil
}

// Files lists indexed files ordered by path. When languages are given only
// files of those languages are listed.
func (q *QueryBuilder) Files(languages ...string) ([]*File, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	if len(languages) == 0 {
		return q.store.Files()
	}

	seen := make(map[string]bool, len(languages))
	var files []*File
	for _, lang := range languages {
		lang = runtime.CanonicalLanguage(lang)
		if seen[lang] {
			continue
		}
		seen[lang] = true
		fs, err := q.store.FilesByLanguage(lang)
		if err != nil {
			return nil, fmt.Errorf("files: %w", err)
		}
		files = append(files, fs...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Stale reports whether file is indexed from content other than content.
// A file that is not indexed is not stale.
func (q *QueryBuilder) Stale(file string, content []byte) (bool, error) {
	if q.store == nil {
		return false, ErrNoIndex
	}
	f, err := q.store.FileByPath(file)
	if err != nil {
		return false, fmt.Errorf("stale: %w", err)
	}
	return f != nil && f.Hash != store.ContentHash(content), nil
}

// Sessions lists journal sessions, most recent first.
func (q *QueryBuilder) Sessions() ([]*Session, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	return q.store.Sessions()
}

// History returns the scope changes journaled in session, oldest first.
func (q *QueryBuilder) History(session string) ([]*ScopeEvent, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	return q.store.ScopeEvents(session)
}
