package scopelens

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/scopelens/internal/fallback"
	"github.com/jward/scopelens/internal/outline"
	"github.com/jward/scopelens/internal/runtime"
	"github.com/jward/scopelens/internal/slogutil"
	"github.com/jward/scopelens/internal/store"
	"github.com/jward/scopelens/scripts"
)

// ErrNoIndex is returned by index operations on an Engine created with New.
var ErrNoIndex = errors.New("scopelens: engine has no index")

// providerFallback names the regex matcher in index records.
const providerFallback = "fallback"

// Engine extracts candidate forests from documents and, when opened with a
// database, maintains an index of them.
type Engine struct {
	store      *store.Store
	scriptsDir string
	scriptsFS  fs.FS
	languages  map[string]bool // nil means all languages
	gap        GapPolicy
	logger     *slog.Logger

	providers    []namedProvider
	providersSet bool

	// useParallel enables concurrent extraction during indexing.
	useParallel bool
}

type namedProvider struct {
	name string
	OutlineProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will index.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		if len(languages) == 0 {
			e.languages = nil
			return
		}
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[runtime.CanonicalLanguage(lang)] = true
		}
	}
}

// WithParallel controls parallel extraction during indexing. Commits to the
// index always happen on a single goroutine.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithScriptsFS replaces the embedded outline scripts with fsys.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir adds a directory of user outline scripts. They are consulted
// before the embedded ones.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithGapPolicy sets how regex-matched bodies are bounded.
func WithGapPolicy(g GapPolicy) Option {
	return func(e *Engine) {
		e.gap = g
	}
}

// WithLogger sets the Engine's logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProviders replaces the default outline providers. With no arguments
// every document goes straight to the regex matcher.
func WithProviders(providers ...OutlineProvider) Option {
	return func(e *Engine) {
		e.providersSet = true
		e.providers = e.providers[:0]
		for i, p := range providers {
			e.providers = append(e.providers, namedProvider{name: providerName(p, i), OutlineProvider: p})
		}
	}
}

func providerName(p OutlineProvider, i int) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("provider%d", i)
}

// New creates an Engine without an index.
//
// Unless WithProviders is given, the provider chain is:
//  1. user scripts from WithScriptsDir, if set
//  2. the embedded outline scripts, or those from WithScriptsFS
//  3. tree-sitter grammars
func New(opts ...Option) *Engine {
	e := &Engine{
		scriptsFS:   scripts.FS,
		logger:      slogutil.NewDiscardLogger(),
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if !e.providersSet {
		if e.scriptsDir != "" {
			rt := runtime.NewRuntime(e.scriptsDir, runtime.WithRuntimeLogger(e.logger))
			e.providers = append(e.providers, namedProvider{name: "user-script", OutlineProvider: rt})
		}
		if e.scriptsFS != nil {
			rt := runtime.NewRuntime("", runtime.WithRuntimeFS(e.scriptsFS), runtime.WithRuntimeLogger(e.logger))
			e.providers = append(e.providers, namedProvider{name: rt.Name(), OutlineProvider: rt})
		}
		ts := runtime.NewTreeSitterProvider()
		e.providers = append(e.providers, namedProvider{name: ts.Name(), OutlineProvider: ts})
	}
	return e
}

// Open creates an Engine backed by a SQLite index at dbPath.
func Open(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("scopelens: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("scopelens: migrate: %w", err)
	}
	e := New(opts...)
	e.store = s
	return e, nil
}

// Close releases the index, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying index, or nil for an Engine created with New.
func (e *Engine) Store() *store.Store {
	return e.store
}

// GapPolicy returns the policy applied to regex-matched candidates.
func (e *Engine) GapPolicy() GapPolicy { return e.gap }

// Query returns a QueryBuilder over the index.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Extract returns the candidate forest for doc, ordered by appearance.
//
// Provider errors are logged and returned wrapped in ErrExtractionFailed
// together with an empty forest. A language nobody recognizes yields an
// empty forest and no error.
func (e *Engine) Extract(ctx context.Context, doc Document) ([]*Candidate, error) {
	cands, _, err := e.extract(ctx, doc)
	return cands, err
}

// extract also reports which provider produced the forest.
func (e *Engine) extract(ctx context.Context, doc Document) ([]*Candidate, string, error) {
	doc.Language = runtime.CanonicalLanguage(doc.Language)

	for _, p := range e.providers {
		out, err := p.Outline(ctx, doc)
		if errors.Is(err, ErrOutlineUnavailable) {
			continue
		}
		if err == nil {
			var cands []*Candidate
			cands, err = fromOutline(out)
			if err == nil {
				e.logger.Debug("extracted", "document", doc.ID, "provider", p.name, "candidates", len(cands))
				return cands, p.name, nil
			}
		}
		if !errors.Is(err, ErrExtractionFailed) {
			err = fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}
		e.logger.Warn("extraction failed", "document", doc.ID, "provider", p.name, "error", err)
		return []*Candidate{}, p.name, fmt.Errorf("scopelens: extract %s: %w", doc.ID, err)
	}

	cands := fallback.Match(doc.Text, doc.Language)
	if e.gap == GapNone {
		fallback.Bound(cands, doc.Text)
	}
	if cands == nil {
		cands = []*Candidate{}
	}
	e.logger.Debug("extracted", "document", doc.ID, "provider", providerFallback, "candidates", len(cands))
	return cands, providerFallback, nil
}

func fromOutline(out *Outline) ([]*Candidate, error) {
	if out == nil {
		return []*Candidate{}, nil
	}
	var (
		cands []*Candidate
		err   error
	)
	if out.Hierarchical {
		cands, err = outline.FromTree(out.Symbols)
	} else {
		cands, err = outline.FromFlat(out.Symbols)
	}
	if err != nil {
		return nil, err
	}
	if err := outline.Validate(cands); err != nil {
		return nil, err
	}
	if cands == nil {
		cands = []*Candidate{}
	}
	return cands, nil
}

// scriptsHash computes a SHA-256 over every outline script the Engine can
// load, so an index built with different scripts can be detected.
func (e *Engine) scriptsHash() string {
	type script struct{ path, src string }
	var all []script

	if e.scriptsFS != nil {
		fs.WalkDir(e.scriptsFS, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".risor") {
				return nil
			}
			if data, err := fs.ReadFile(e.scriptsFS, path); err == nil {
				all = append(all, script{"fs:" + path, string(data)})
			}
			return nil
		})
	}
	if e.scriptsDir != "" {
		rt := runtime.NewRuntime(e.scriptsDir)
		filepath.WalkDir(e.scriptsDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".risor") {
				return nil
			}
			rel, _ := filepath.Rel(e.scriptsDir, path)
			if src, err := rt.LoadScript(rel); err == nil {
				all = append(all, script{"dir:" + filepath.ToSlash(rel), src})
			}
			return nil
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].path < all[j].path })

	h := sha256.New()
	fmt.Fprintf(h, "gap=%s\n", e.gap)
	for _, s := range all {
		h.Write([]byte(s.path))
		h.Write([]byte(s.src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ScriptsChanged reports whether the outline scripts or gap policy differ
// from those used to build the index. It is true for a fresh index.
func (e *Engine) ScriptsChanged() bool {
	if e.store == nil {
		return false
	}
	stored, err := e.store.GetMetadata("scripts_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.scriptsHash()
}

func (e *Engine) storeScriptsHash() {
	if err := e.store.SetMetadata("scripts_hash", e.scriptsHash()); err != nil {
		e.logger.Warn("storing scripts hash", "error", err)
	}
}
