package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatScopeText prints the scope header followed by its source text.
func formatScopeText(w io.Writer, s CLIScope) {
	fmt.Fprintf(w, "%s %s %s:%d:%d-%d:%d\n", s.Kind, s.Name, s.File, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
	if s.Stale {
		fmt.Fprintln(w, "(file changed since indexing, source omitted)")
	}
	if s.Snippet != "" {
		fmt.Fprintln(w, strings.TrimRight(s.Snippet, "\n"))
	}
}

func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tPROVIDER\tINDEXED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.Language, orDash(f.Provider),
			f.LastIndexed.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

// formatEntriesText indents each candidate by its depth.
func formatEntriesText(w io.Writer, entries []CLIEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSTART\tEND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s%s\t%s\t%d:%d\t%d:%d\n",
			strings.Repeat("  ", e.Depth), e.Name, e.Kind, e.StartLine, e.StartCol, e.EndLine, e.EndCol)
	}
	tw.Flush()
}

func formatReplayText(w io.Writer, r CLIReplay) {
	if r.Session != "" {
		fmt.Fprintf(w, "Session: %s\n", r.Session)
	}
	fmt.Fprintf(w, "Events: %d, scope changes: %d\n\n", r.Events, len(r.Notifications))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDOCUMENT\tCURSOR\tSCOPE")
	for _, n := range r.Notifications {
		fmt.Fprintf(tw, "%d\t%s\t%d:%d\t%s\n", n.Seq, orDash(n.Document), n.CursorLine, n.CursorCol, scopeLabel(n.Name, n.Kind, n.StartLine, n.StartCol))
	}
	tw.Flush()
}

func formatSessionsText(w io.Writer, sessions []CLISession) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tEVENTS\tFIRST\tLAST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ID, s.Events,
			s.First.Local().Format("2006-01-02 15:04:05"), s.Last.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func formatEventsText(w io.Writer, events []CLIEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDOCUMENT\tCURSOR\tSCOPE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%d:%d\t%s\n", e.RecordedAt.Local().Format("15:04:05.000"),
			orDash(e.Document), e.CursorLine, e.CursorCol, scopeLabel(e.Name, e.Kind, e.StartLine, e.StartCol))
	}
	tw.Flush()
}

func scopeLabel(name, kind string, line, col int) string {
	if name == "" {
		return "-"
	}
	return fmt.Sprintf("%s %s @%d:%d", kind, name, line, col)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// outputResult writes result as indented JSON or, with --format text, as
// human-readable text on stdout.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case nil:
		fmt.Fprintln(w, "No scope.")
	case CLIScope:
		formatScopeText(w, r)
	case []CLIEntry:
		if len(r) == 0 {
			fmt.Fprintln(w, "No functions.")
			return nil
		}
		formatEntriesText(w, r)
	case []CLIFile:
		if len(r) == 0 {
			fmt.Fprintln(w, "No files.")
			return nil
		}
		formatFilesText(w, r)
	case CLIReplay:
		formatReplayText(w, r)
	case []CLISession:
		if len(r) == 0 {
			fmt.Fprintln(w, "No sessions.")
			return nil
		}
		formatSessionsText(w, r)
	case []CLIEvent:
		if len(r) == 0 {
			fmt.Fprintln(w, "No events.")
			return nil
		}
		formatEventsText(w, r)
	default:
		return fmt.Errorf("no text format for %T", result.Results)
	}
	return nil
}

var validFormats = map[string]bool{"json": true, "text": true}

// validateFormat returns an error for unknown --format values.
func validateFormat(format string) error {
	if !validFormats[format] {
		names := make([]string, 0, len(validFormats))
		for k := range validFormats {
			names = append(names, k)
		}
		sort.Strings(names)
		return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(names, ", "))
	}
	return nil
}
