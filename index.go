package scopelens

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/scopelens/internal/runtime"
	"github.com/jward/scopelens/internal/store"
)

// workItem is one file that needs extraction.
type workItem struct {
	path    string
	lang    string
	content []byte
	hash    string
}

type extractResult struct {
	forest   []*Candidate
	provider string
	err      error
}

// IndexFiles extracts the given files and stores their forests.
//
// For each file:
//  1. Detect language from extension
//  2. Skip unsupported or filtered-out languages
//  3. Skip unchanged files (same content hash), unless the outline scripts
//     changed since the index was built
//  4. Extract, in parallel when enabled
//  5. Commit the forest, replacing whatever was stored for the path
//
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	if e.store == nil {
		return ErrNoIndex
	}
	force := e.ScriptsChanged()

	var (
		items []workItem
		errs  []error
	)
	for _, path := range paths {
		item, skip, err := e.prepareFile(path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			if ferr := e.forget(path); ferr != nil {
				errs = append(errs, ferr)
			}
			continue
		}
		if !skip {
			items = append(items, item)
		}
	}

	results, err := e.extractAll(ctx, items)
	if err != nil {
		return err
	}

	for i, item := range items {
		res := results[i]
		if res.err != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", item.path, res.err))
			if ferr := e.forget(item.path); ferr != nil {
				errs = append(errs, ferr)
			}
			continue
		}
		f := &store.File{
			Path:        item.path,
			Language:    item.lang,
			Hash:        item.hash,
			Provider:    res.provider,
			LastIndexed: time.Now(),
		}
		if err := e.store.CommitFile(f, res.forest); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
			continue
		}
		e.logger.Debug("indexed", "path", item.path, "provider", res.provider, "candidates", len(Flatten(res.forest)))
	}

	// Failed files were forgotten above, so they are retried on the next run
	// even though the hash now matches the scripts.
	e.storeScriptsHash()
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// forget drops whatever the index holds for path.
func (e *Engine) forget(path string) error {
	f, err := e.store.FileByPath(path)
	if err != nil {
		return fmt.Errorf("forget %s: %w", path, err)
	}
	if f == nil {
		return nil
	}
	if err := e.store.DeleteFileData(f.ID); err != nil {
		return fmt.Errorf("forget %s: %w", path, err)
	}
	return nil
}

// prepareFile reads a file and decides whether it needs extraction.
// skip=true means the file is unsupported, filtered out or unchanged.
func (e *Engine) prepareFile(path string, force bool) (workItem, bool, error) {
	lang, ok := runtime.LanguageForFile(path)
	if !ok {
		return workItem{}, true, nil
	}
	if e.languages != nil && !e.languages[lang] {
		return workItem{}, true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)

	if !force {
		existing, err := e.store.FileByPath(path)
		if err != nil {
			return workItem{}, false, fmt.Errorf("lookup file: %w", err)
		}
		if existing != nil && existing.Hash == hash {
			return workItem{}, true, nil
		}
	}
	return workItem{path: path, lang: lang, content: content, hash: hash}, false, nil
}

// extractAll runs extraction for every item. Results are index-aligned with
// items. Only context cancellation aborts the whole batch.
func (e *Engine) extractAll(ctx context.Context, items []workItem) ([]extractResult, error) {
	results := make([]extractResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := 1
	if e.useParallel {
		workers = max(1, min(goruntime.NumCPU(), len(items)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc := Document{ID: item.path, Language: item.lang, Text: string(item.content)}
			forest, provider, err := e.extract(gctx, doc)
			results[i] = extractResult{forest: forest, provider: provider, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scopelens: indexing: %w", err)
	}
	return results, nil
}

// skipDirs are directories excluded from the filesystem walk.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"target":       true,
}

// IndexDirectory indexes every supported file under root. Inside a git
// repository git ls-files is used so .gitignore is respected; otherwise the
// tree is walked, skipping hidden directories and the usual dependency
// folders. Indexed files under root that are no longer found are removed.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	if e.store == nil {
		return ErrNoIndex
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("scopelens: resolve %s: %w", root, err)
	}
	paths, err := gitListFiles(root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", "root", root, "error", err)
		paths, err = walkListFiles(root)
		if err != nil {
			return err
		}
	}
	if err := e.pruneMissing(root, paths); err != nil {
		return err
	}
	return e.IndexFiles(ctx, paths)
}

// pruneMissing removes indexed files under root that are not in present.
func (e *Engine) pruneMissing(root string, present []string) error {
	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("scopelens: prune: %w", err)
	}
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		keep[p] = true
	}
	prefix := root + string(filepath.Separator)
	for _, f := range files {
		if keep[f.Path] || !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		if err := e.store.DeleteFileData(f.ID); err != nil {
			return fmt.Errorf("scopelens: prune %s: %w", f.Path, err)
		}
		e.logger.Debug("removed from index", "path", f.Path)
	}
	return nil
}

// gitListFiles lists tracked and untracked, non-ignored files under root
// that have a known language.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := runtime.LanguageForFile(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := runtime.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scopelens: walk directory: %w", err)
	}
	return paths, nil
}
