package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/scopelens/internal/outline"
)

// Runtime embeds a Risor VM and runs outline scripts. A script for language
// L lives at outline/L.risor under the scripts directory or fs.FS and reports
// symbols through the emit_symbol host function.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a Runtime that loads scripts from scriptsDir, unless an
// fs.FS is supplied with WithRuntimeFS.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OutlineScriptPath returns the path to a language's outline script.
func OutlineScriptPath(language string) string {
	return path.Join("outline", language+".risor")
}

// Name identifies the provider in index records.
func (r *Runtime) Name() string { return "script" }

// ScriptError is a failure raised while evaluating a loaded script.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("runtime: script %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Outline runs the outline script for doc's language. A missing script
// yields outline.ErrUnavailable; a script error yields
// outline.ErrExtractionFailed.
func (r *Runtime) Outline(ctx context.Context, doc outline.Document) (*outline.Outline, error) {
	if r.fsys == nil && r.scriptsDir == "" {
		return nil, fmt.Errorf("runtime: no scripts configured: %w", outline.ErrUnavailable)
	}
	scriptPath := OutlineScriptPath(doc.Language)
	c := &collector{}
	err := r.RunScript(ctx, scriptPath, map[string]any{
		"source":      doc.Text,
		"language":    doc.Language,
		"document_id": doc.ID,
		"emit_symbol": makeEmitSymbolFn(c),
	})
	var scriptErr *ScriptError
	switch {
	case err == nil:
		return c.outline(), nil
	case errors.As(err, &scriptErr):
		return nil, fmt.Errorf("%w: %w", outline.ErrExtractionFailed, err)
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("runtime: %s: %w", scriptPath, outline.ErrUnavailable)
	default:
		return nil, err
	}
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller. Evaluation failures are
// returned as *ScriptError.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return &ScriptError{Script: label, Err: err}
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. Paths are
// relative to the fs.FS root when one is configured, otherwise to
// scriptsDir.
func (r *Runtime) LoadScript(p string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(p), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := filepath.FromSlash(p)
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(r.scriptsDir, fullPath)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to a script. Each run gets its
// own source store so parsed trees are released with the run.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	sources := newSourceStore()
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(sources),
		"node_text":  makeNodeTextFn(sources),
		"node_child": makeNodeChildFn(),
		"node_range": makeNodeRangeFn(),
		"query":      makeQueryFn(sources),
		"log":        mustProxy(&logObject{logger: r.logger, script: label}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
