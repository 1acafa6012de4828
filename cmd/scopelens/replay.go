package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jward/scopelens"
	"github.com/jward/scopelens/internal/runtime"
	"github.com/spf13/cobra"
)

var flagNoJournal bool

var replayCmd = &cobra.Command{
	Use:   "replay [events.jsonl]",
	Short: "Drive the scope synchronizer from a recorded event stream",
	Long: `Reads editor events as JSON lines from a file or stdin and feeds them to a
synchronizer, printing every active scope change. Each line is an object with
"type" (activate, cursor, edit or reset), "doc", "language", "text" or "file",
"line" and "col". Changes are journaled under a new session ID unless
--no-journal is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "List journaled sessions, or the scope changes of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	replayCmd.Flags().BoolVar(&flagNoJournal, "no-journal", false, "do not record scope changes in the database")
}

// replayEvent is one line of a replay stream. Text wins over File; Doc
// defaults to File.
type replayEvent struct {
	Type     string  `json:"type"`
	Doc      string  `json:"doc"`
	Language string  `json:"language"`
	Text     *string `json:"text"`
	File     string  `json:"file"`
	Line     int     `json:"line"`
	Col      int     `json:"col"`
}

// parseReplayEvents reads a JSON-lines stream. Blank lines and lines
// starting with # are skipped.
func parseReplayEvents(r io.Reader) ([]replayEvent, error) {
	var events []replayEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var ev replayEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ev.Doc == "" {
			ev.Doc = ev.File
		}
		switch ev.Type {
		case "reset":
		case "activate", "edit":
			if ev.Doc == "" {
				return nil, fmt.Errorf("line %d: %s event needs doc or file", lineNo, ev.Type)
			}
			if ev.Text == nil && ev.File == "" {
				return nil, fmt.Errorf("line %d: %s event needs text or file", lineNo, ev.Type)
			}
		case "cursor":
			if ev.Doc == "" {
				return nil, fmt.Errorf("line %d: cursor event needs doc", lineNo)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown event type %q", lineNo, ev.Type)
		}
		if ev.Line < 0 || ev.Col < 0 {
			return nil, fmt.Errorf("line %d: negative position", lineNo)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return events, nil
}

// document builds the snapshot an activate or edit event carries. Relative
// files resolve against baseDir.
func (ev replayEvent) document(baseDir string) (scopelens.Document, error) {
	text := ""
	if ev.Text != nil {
		text = *ev.Text
	} else {
		path := ev.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return scopelens.Document{}, fmt.Errorf("reading %s: %w", ev.File, err)
		}
		text = string(data)
	}
	lang := ev.Language
	if lang == "" {
		name := ev.File
		if name == "" {
			name = ev.Doc
		}
		lang, _ = runtime.LanguageForFile(name)
	}
	return scopelens.Document{ID: ev.Doc, Language: lang, Text: text}, nil
}

func (ev replayEvent) position() scopelens.Position {
	return scopelens.Position{Line: ev.Line, Column: ev.Col}
}

// scopeRecorder collects notifications; debounced edits deliver them from a
// timer goroutine.
type scopeRecorder struct {
	mu    sync.Mutex
	items []CLINotification
}

func (r *scopeRecorder) listen(a scopelens.ActiveScope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, notificationToCLI(len(r.items)+1, a))
}

func (r *scopeRecorder) notifications() []CLINotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CLINotification(nil), r.items...)
}

func runReplay(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	baseDir, err := os.Getwd()
	if err != nil {
		return outputError("replay", fmt.Errorf("getting cwd: %w", err))
	}
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return outputError("replay", err)
		}
		defer f.Close()
		in = f
		baseDir = filepath.Dir(args[0])
	}
	events, err := parseReplayEvents(in)
	if err != nil {
		return outputError("replay", err)
	}

	env, err := loadEnvFromCwd()
	if err != nil {
		return outputError("replay", err)
	}
	opts, err := env.engineOptions()
	if err != nil {
		return outputError("replay", err)
	}

	var engine *scopelens.Engine
	if flagNoJournal {
		engine = scopelens.New(opts...)
	} else {
		dbPath := resolveDBPath(env.repoRoot, env.cfg)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return outputError("replay", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
		}
		if engine, err = scopelens.Open(dbPath, opts...); err != nil {
			return outputError("replay", err)
		}
	}
	defer engine.Close()

	syncer := scopelens.NewSynchronizer(engine,
		scopelens.WithEditDebounce(env.cfg.EditDebounce()),
		scopelens.WithSyncLogger(env.logger),
	)
	rec := &scopeRecorder{}
	syncer.OnActiveScopeChanged(rec.listen)

	result := CLIReplay{Events: len(events)}
	if !flagNoJournal {
		result.Session = uuid.New().String()
		syncer.OnActiveScopeChanged(engine.JournalListener(result.Session))
	}

	ctx := cmd.Context()
	for _, ev := range events {
		switch ev.Type {
		case "activate", "edit":
			doc, err := ev.document(baseDir)
			if err != nil {
				return outputError("replay", err)
			}
			if ev.Type == "activate" {
				syncer.DocumentActivated(ctx, &doc, ev.position())
			} else {
				syncer.DocumentEdited(ctx, doc, ev.position())
			}
		case "cursor":
			syncer.CursorMoved(ev.Doc, ev.position())
		case "reset":
			syncer.Reset()
		}
	}
	syncer.Flush()

	result.Notifications = rec.notifications()
	return outputResult(CLIResult{Command: "replay", Results: result})
}

func runHistory(cmd *cobra.Command, args []string) error {
	env, err := loadEnvFromCwd()
	if err != nil {
		return outputError("history", err)
	}
	engine, err := env.openIndex()
	if err != nil {
		return outputError("history", err)
	}
	defer engine.Close()

	if len(args) == 0 {
		sessions, err := engine.Query().Sessions()
		if err != nil {
			return outputError("history", err)
		}
		out := make([]CLISession, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionToCLI(s))
		}
		total := len(out)
		return outputResult(CLIResult{Command: "history", Results: out, TotalCount: &total})
	}

	events, err := engine.Query().History(args[0])
	if err != nil {
		return outputError("history", err)
	}
	out := make([]CLIEvent, 0, len(events))
	for _, e := range events {
		out = append(out, eventToCLI(e))
	}
	total := len(out)
	return outputResult(CLIResult{Command: "history", Results: out, TotalCount: &total})
}
