package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/scopelens"
	"github.com/jward/scopelens/internal/config"
	"github.com/jward/scopelens/internal/slogutil"
	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose int
	flagQuiet   bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "scopelens",
	Short:         "Track the function or method under the cursor",
	Long:          "Scopelens extracts function and method scopes from source documents with Risor outline scripts, tree-sitter and regex fallbacks, locates the scope at a cursor, and indexes scopes into SQLite.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .scopelens/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(atCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(filesCmd)
}

var (
	flagForce      bool
	flagLanguages  string
	flagScriptsDir string
	flagGap        string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the function scopes of a repository",
	Long:  "Extracts the candidate forest of every supported source file and writes it to the SQLite database. Unchanged files are skipped unless outline scripts or the gap policy changed.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	indexCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	for _, c := range []*cobra.Command{indexCmd, atCmd, symbolsCmd, replayCmd} {
		c.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "directory of outline/<lang>.risor scripts consulted before the embedded ones")
		c.Flags().StringVar(&flagGap, "gap", "", "regex fallback gap policy: none|preceding (default from config)")
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	env, err := loadEnv(repoRoot)
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(repoRoot, env.cfg)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	opts, err := env.engineOptions()
	if err != nil {
		return err
	}
	engine, err := scopelens.Open(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	if engine.ScriptsChanged() {
		env.logger.Info("outline scripts or gap policy changed, reindexing all files")
	}
	if err := engine.IndexDirectory(cmd.Context(), targetDir); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	files, err := engine.Query().Files()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Indexed %s in %s (%d files)\n", targetDir, time.Since(start).Round(time.Millisecond), len(files))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

// cliEnv is the per-invocation configuration: repo root, loaded config and
// the logger built from it.
type cliEnv struct {
	repoRoot string
	cfg      *config.Config
	logger   *slog.Logger
}

// loadEnv loads repoRoot's config and builds the logger. -v and -q override
// the configured logging level.
func loadEnv(repoRoot string) (*cliEnv, error) {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if flagVerbose > 0 || flagQuiet {
		level = slogutil.LevelFromVerbosity(flagVerbose, flagQuiet)
	}
	return &cliEnv{
		repoRoot: repoRoot,
		cfg:      cfg,
		logger:   slogutil.NewLogger(os.Stderr, level),
	}, nil
}

// loadEnvFromCwd loads the config of the repository containing the working
// directory.
func loadEnvFromCwd() (*cliEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	return loadEnv(findRepoRoot(cwd))
}

// engineOptions builds Engine options from the config, with command flags
// taking precedence.
func (e *cliEnv) engineOptions() ([]scopelens.Option, error) {
	gapName := e.cfg.GapPolicy
	if flagGap != "" {
		gapName = flagGap
	}
	gap, err := scopelens.ParseGapPolicy(gapName)
	if err != nil {
		return nil, err
	}

	langs := e.cfg.Languages
	if flagLanguages != "" {
		langs = splitList(flagLanguages)
	}

	scriptsDir := e.cfg.ScriptsDir
	if flagScriptsDir != "" {
		scriptsDir = flagScriptsDir
	}
	if scriptsDir != "" && !filepath.IsAbs(scriptsDir) {
		scriptsDir = filepath.Join(e.repoRoot, scriptsDir)
	}

	opts := []scopelens.Option{
		scopelens.WithGapPolicy(gap),
		scopelens.WithLanguages(langs...),
		scopelens.WithParallel(e.cfg.Parallel),
		scopelens.WithLogger(e.logger),
	}
	if scriptsDir != "" {
		opts = append(opts, scopelens.WithScriptsDir(scriptsDir))
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from --db, or the configured one.
func resolveDBPath(repoRoot string, cfg *config.Config) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return cfg.DBPath(repoRoot)
}

// openIndex opens an existing index for the repository containing the
// working directory.
func (e *cliEnv) openIndex() (*scopelens.Engine, error) {
	dbPath := resolveDBPath(e.repoRoot, e.cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'scopelens index' first)", dbPath)
	}
	return scopelens.Open(dbPath, scopelens.WithLogger(e.logger))
}
