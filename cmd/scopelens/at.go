package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jward/scopelens"
	"github.com/jward/scopelens/internal/runtime"
	"github.com/spf13/cobra"
)

var (
	flagIndexed  bool
	flagLanguage string
)

var atCmd = &cobra.Command{
	Use:   "at <file> <line> <col>",
	Short: "Show the function or method containing a position",
	Long:  "Extracts the candidate forest of <file> and prints the deepest candidate containing the 0-based <line> and byte <col>, with its source text. --indexed answers from the database instead.",
	Args:  cobra.ExactArgs(3),
	RunE:  runAt,
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "List the functions and methods of a file",
	Long:  "Lists every candidate of <file> in order of appearance with its nesting depth.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSymbols,
}

func init() {
	for _, c := range []*cobra.Command{atCmd, symbolsCmd} {
		c.Flags().BoolVar(&flagIndexed, "indexed", false, "answer from the index instead of extracting")
		c.Flags().StringVar(&flagLanguage, "language", "", "language ID (default: from the file extension)")
	}
}

func runAt(cmd *cobra.Command, args []string) error {
	path, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("at", err)
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return outputError("at", err)
	}
	col, err := parseIntArg(args[2], "col")
	if err != nil {
		return outputError("at", err)
	}

	doc, err := readDocument(path)
	if err != nil {
		return outputError("at", err)
	}
	env, err := loadEnvFromCwd()
	if err != nil {
		return outputError("at", err)
	}

	pos := scopelens.Position{Line: line, Column: col}
	var (
		scope *scopelens.Candidate
		stale bool
	)
	if flagIndexed {
		engine, err := env.openIndex()
		if err != nil {
			return outputError("at", err)
		}
		defer engine.Close()
		scope, err = engine.Query().ScopeAt(path, line, col)
		if err != nil {
			return outputError("at", err)
		}
		if stale, err = engine.Query().Stale(path, []byte(doc.Text)); err != nil {
			return outputError("at", err)
		}
		if stale {
			env.logger.Warn("file changed since indexing, run 'scopelens index' to refresh", "path", path)
		}
	} else {
		forest, err := extractDocument(cmd, env, doc)
		if err != nil {
			return outputError("at", err)
		}
		scope = scopelens.Locate(forest, pos)
	}

	if scope == nil {
		return outputResult(CLIResult{Command: "at", Results: nil})
	}
	active := scopelens.ActiveScope{DocumentID: path, Scope: scope, Cursor: pos}
	result := scopeToCLI(path, scope)
	if stale {
		result.Stale = true
	} else {
		result.Snippet = active.Snippet(doc.Text)
	}
	return outputResult(CLIResult{Command: "at", Results: result})
}

func runSymbols(cmd *cobra.Command, args []string) error {
	path, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("symbols", err)
	}
	env, err := loadEnvFromCwd()
	if err != nil {
		return outputError("symbols", err)
	}

	var entries []scopelens.Entry
	if flagIndexed {
		engine, err := env.openIndex()
		if err != nil {
			return outputError("symbols", err)
		}
		defer engine.Close()
		entries, err = engine.Query().Functions(path)
		if err != nil {
			return outputError("symbols", err)
		}
	} else {
		doc, err := readDocument(path)
		if err != nil {
			return outputError("symbols", err)
		}
		forest, err := extractDocument(cmd, env, doc)
		if err != nil {
			return outputError("symbols", err)
		}
		entries = scopelens.Flatten(forest)
	}

	out := make([]CLIEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToCLI(e))
	}
	total := len(out)
	return outputResult(CLIResult{Command: "symbols", Results: out, TotalCount: &total})
}

// readDocument loads path as a Document whose ID is the path and whose
// language is --language or the one implied by the extension.
func readDocument(path string) (scopelens.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scopelens.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	lang := flagLanguage
	if lang == "" {
		var ok bool
		if lang, ok = runtime.LanguageForFile(path); !ok {
			return scopelens.Document{}, fmt.Errorf("unknown language for %s (use --language)", path)
		}
	}
	return scopelens.Document{ID: path, Language: lang, Text: string(data)}, nil
}

func extractDocument(cmd *cobra.Command, env *cliEnv, doc scopelens.Document) ([]*scopelens.Candidate, error) {
	opts, err := env.engineOptions()
	if err != nil {
		return nil, err
	}
	return scopelens.New(opts...).Extract(cmd.Context(), doc)
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}
