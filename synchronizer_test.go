package scopelens

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopelens/internal/slogutil"
)

func at(line, col int) Position { return Position{Line: line, Column: col} }

func cand(name string, kind Kind, sl, sc, el, ec int, children ...*Candidate) *Candidate {
	return &Candidate{
		Name:     name,
		Kind:     kind,
		Range:    Range{Start: at(sl, sc), End: at(el, ec)},
		Children: children,
	}
}

// fakeExtractor returns the forest registered for a document's text and
// counts calls. hook, when set, runs inside Extract before it returns.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	texts   []string
	forests map[string][]*Candidate
	err     error
	hook    func(doc Document)
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{forests: make(map[string][]*Candidate)}
}

func (f *fakeExtractor) Extract(_ context.Context, doc Document) ([]*Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, doc.Text)
	forest, err, hook := f.forests[doc.Text], f.err, f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(doc)
	}
	if err != nil {
		return []*Candidate{}, err
	}
	return forest, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []ActiveScope
}

func (r *recorder) listen(a ActiveScope) {
	r.mu.Lock()
	r.events = append(r.events, a)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e.Scope == nil {
			out = append(out, e.DocumentID+":-")
		} else {
			out = append(out, e.DocumentID+":"+e.Scope.Name)
		}
	}
	return out
}

func scopeName(a ActiveScope) string {
	if a.Scope == nil {
		return ""
	}
	return a.Scope.Name
}

// fooBar is the forest of two sibling functions with a gap between them.
func fooBar() []*Candidate {
	return []*Candidate{
		cand("foo", Function, 0, 0, 2, 1),
		cand("bar", Function, 4, 0, 6, 1),
	}
}

func newTracked(t *testing.T, x *fakeExtractor, opts ...SyncOption) (*Synchronizer, *recorder) {
	t.Helper()
	s := NewSynchronizer(x, opts...)
	r := &recorder{}
	s.OnActiveScopeChanged(r.listen)
	return s, r
}

func TestSynchronizer_StartsIdle(t *testing.T) {
	t.Parallel()
	s := NewSynchronizer(newFakeExtractor())
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, ActiveScope{}, s.ActiveScope())
	assert.Equal(t, "idle", s.State().String())
}

func TestSynchronizer_ActivationExtractsAndLocates(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, r := newTracked(t, x)

	s.DocumentActivated(context.Background(), &Document{ID: "a.js", Text: "v1"}, at(1, 2))

	assert.Equal(t, Tracking, s.State())
	assert.Equal(t, "foo", scopeName(s.ActiveScope()))
	assert.Equal(t, at(1, 2), s.ActiveScope().Cursor)
	assert.Equal(t, []string{"a.js:foo"}, r.names())
	assert.Equal(t, 1, x.Calls())
}

func TestSynchronizer_CursorMoveDoesNotReExtract(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, r := newTracked(t, x)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(0, 0))
	s.CursorMoved("a.js", at(1, 0))
	s.CursorMoved("a.js", at(1, 5))
	s.CursorMoved("a.js", at(2, 0))

	assert.Equal(t, 1, x.Calls(), "cursor moves only re-locate")
	assert.Equal(t, []string{"a.js:foo"}, r.names(), "staying inside foo must not re-notify")

	s.CursorMoved("a.js", at(5, 0))
	assert.Equal(t, 1, x.Calls())
	assert.Equal(t, []string{"a.js:foo", "a.js:bar"}, r.names())

	s.CursorMoved("a.js", at(3, 0))
	assert.Equal(t, []string{"a.js:foo", "a.js:bar", "a.js:-"}, r.names())
	assert.Nil(t, s.ActiveScope().Scope)
}

func TestSynchronizer_CursorMoveForOtherDocumentIgnored(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, r := newTracked(t, x)

	s.CursorMoved("a.js", at(1, 0))
	assert.Equal(t, Idle, s.State())

	s.DocumentActivated(context.Background(), &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.CursorMoved("b.js", at(5, 0))

	assert.Equal(t, "foo", scopeName(s.ActiveScope()))
	assert.Equal(t, []string{"a.js:foo"}, r.names())
}

func TestSynchronizer_EditReExtracts(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	x.forests["v2"] = []*Candidate{cand("baz", Function, 0, 0, 3, 1)}
	s, r := newTracked(t, x)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v2"}, at(1, 1))

	assert.Equal(t, 2, x.Calls())
	assert.Equal(t, "baz", scopeName(s.ActiveScope()))
	assert.Equal(t, []string{"a.js:foo", "a.js:baz"}, r.names())
}

func TestSynchronizer_EditForInactiveDocumentIgnored(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, _ := newTracked(t, x)
	ctx := context.Background()

	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v1"}, at(0, 0))
	assert.Equal(t, 0, x.Calls(), "idle synchronizer ignores edits")

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(0, 0))
	s.DocumentEdited(ctx, Document{ID: "other.js", Text: "v1"}, at(0, 0))
	assert.Equal(t, 1, x.Calls())
}

func TestSynchronizer_IdentitySuppression(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = []*Candidate{cand("foo", Function, 0, 0, 2, 1)}
	// Body grew; name and start unchanged.
	x.forests["v2"] = []*Candidate{cand("foo", Function, 0, 0, 5, 1)}
	// A line was inserted above; the start moved.
	x.forests["v3"] = []*Candidate{cand("foo", Function, 1, 0, 6, 1)}
	s, r := newTracked(t, x)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v2"}, at(1, 0))

	assert.Equal(t, []string{"a.js:foo"}, r.names(), "same name and start is the same scope")
	assert.Equal(t, at(5, 1), s.ActiveScope().Scope.Range.End, "active scope still carries the new range")

	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v3"}, at(2, 0))
	assert.Equal(t, []string{"a.js:foo", "a.js:foo"}, r.names(), "a shifted start is a new identity")
}

func TestSynchronizer_DocumentSwitchNotifiesEvenWithoutScope(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	s, r := newTracked(t, x)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.txt", Text: "plain"}, at(0, 0))
	s.DocumentActivated(ctx, &Document{ID: "b.txt", Text: "plain"}, at(0, 0))
	s.DocumentActivated(ctx, &Document{ID: "b.txt", Text: "plain"}, at(0, 0))

	assert.Equal(t, []string{"a.txt:-", "b.txt:-"}, r.names())
}

func TestSynchronizer_ResetReturnsToIdle(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, r := newTracked(t, x)

	s.Reset()
	assert.Empty(t, r.names(), "reset while idle with no scope changes nothing")

	s.DocumentActivated(context.Background(), &Document{ID: "a.js", Text: "v1"}, at(5, 0))
	s.Reset()

	assert.Equal(t, Idle, s.State())
	assert.Equal(t, ActiveScope{}, s.ActiveScope())
	assert.Equal(t, []string{"a.js:bar", ":-"}, r.names())
}

func TestSynchronizer_NilDocumentResets(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, _ := newTracked(t, x)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentActivated(ctx, nil, at(0, 0))

	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.ActiveScope().Scope)
	assert.Equal(t, 1, x.Calls())
}

func TestSynchronizer_ExtractionFailureDegradesToNone(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	var buf bytes.Buffer
	s, r := newTracked(t, x, WithSyncLogger(slogutil.NewLogger(&buf, slog.LevelDebug)))
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	require.Equal(t, "foo", scopeName(s.ActiveScope()))

	x.mu.Lock()
	x.err = errors.New("language server crashed")
	x.mu.Unlock()
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v1"}, at(1, 0))

	assert.Equal(t, Tracking, s.State())
	assert.Nil(t, s.ActiveScope().Scope)
	assert.Equal(t, []string{"a.js:foo", "a.js:-"}, r.names())
	assert.Contains(t, buf.String(), "extraction failed")
	assert.Contains(t, buf.String(), "language server crashed")

	// Candidates were dropped, so a cursor move finds nothing either.
	s.CursorMoved("a.js", at(5, 0))
	assert.Nil(t, s.ActiveScope().Scope)
}

func TestSynchronizer_StaleExtractionIsSuperseded(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["slow"] = []*Candidate{cand("stale", Function, 0, 0, 9, 0)}
	x.forests["fast"] = []*Candidate{cand("fresh", Function, 0, 0, 9, 0)}

	started := make(chan struct{})
	release := make(chan struct{})
	x.hook = func(doc Document) {
		if doc.Text == "slow" {
			close(started)
			<-release
		}
	}
	s, r := newTracked(t, x)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "slow"}, at(1, 0))
	}()
	<-started

	s.DocumentActivated(ctx, &Document{ID: "b.js", Text: "fast"}, at(1, 0))
	require.Equal(t, "fresh", scopeName(s.ActiveScope()))

	close(release)
	<-done

	assert.Equal(t, "b.js", s.ActiveScope().DocumentID)
	assert.Equal(t, "fresh", scopeName(s.ActiveScope()))
	assert.Equal(t, []string{"b.js:fresh"}, r.names(), "the stale result is never published")
}

func TestSynchronizer_ResetSupersedesInFlightExtraction(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["slow"] = fooBar()

	started := make(chan struct{})
	release := make(chan struct{})
	x.hook = func(Document) {
		close(started)
		<-release
	}
	s, r := newTracked(t, x)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.DocumentActivated(context.Background(), &Document{ID: "a.js", Text: "slow"}, at(1, 0))
	}()
	<-started
	s.Reset()
	close(release)
	<-done

	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.ActiveScope().Scope)
	assert.Empty(t, r.names())
}

func TestSynchronizer_CursorDuringExtractionUsesLatestCursor(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()

	started := make(chan struct{})
	release := make(chan struct{})
	x.hook = func(Document) {
		close(started)
		<-release
	}
	s, r := newTracked(t, x)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.DocumentActivated(context.Background(), &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	}()
	<-started
	s.CursorMoved("a.js", at(5, 2))
	close(release)
	<-done

	assert.Equal(t, "bar", scopeName(s.ActiveScope()))
	assert.Equal(t, at(5, 2), s.ActiveScope().Cursor)
	assert.Equal(t, []string{"a.js:bar"}, r.names())
}

func TestSynchronizer_DebouncedEditsCoalesce(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	x.forests["v4"] = []*Candidate{cand("last", Function, 0, 0, 9, 0)}
	s, r := newTracked(t, x, WithEditDebounce(time.Hour))
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v2"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v3"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v4"}, at(2, 0))

	assert.Equal(t, 1, x.Calls(), "edits wait for the quiet period")
	s.Flush()

	assert.Equal(t, 2, x.Calls())
	x.mu.Lock()
	assert.Equal(t, []string{"v1", "v4"}, x.texts)
	x.mu.Unlock()
	assert.Equal(t, []string{"a.js:foo", "a.js:last"}, r.names())
}

func TestSynchronizer_DebouncedEditFiresAfterQuietPeriod(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, _ := newTracked(t, x, WithEditDebounce(10*time.Millisecond))
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v1"}, at(5, 0))

	assert.Eventually(t, func() bool { return x.Calls() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return scopeName(s.ActiveScope()) == "bar" }, time.Second, 5*time.Millisecond)
}

func TestSynchronizer_ActivationCancelsPendingEdit(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s, _ := newTracked(t, x, WithEditDebounce(time.Hour))
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "edited"}, at(1, 0))
	s.DocumentActivated(ctx, &Document{ID: "b.js", Text: "v1"}, at(5, 0))
	s.Flush()

	assert.Equal(t, 2, x.Calls())
	assert.Equal(t, "b.js", s.ActiveScope().DocumentID)
	assert.Equal(t, "bar", scopeName(s.ActiveScope()))
}

func TestSynchronizer_EditIsOrderedWhenItArrives(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	x.forests["old-edit"] = []*Candidate{cand("stale", Function, 0, 0, 9, 0)}
	x.forests["v2"] = []*Candidate{cand("fresh", Function, 0, 0, 9, 0)}
	s, r := newTracked(t, x, WithEditDebounce(time.Hour))
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))

	// The debounce timer has taken the edit but not yet run it when the
	// same document is activated again.
	old := Document{ID: "a.js", Text: "old-edit"}
	seq, ok := s.beginEdit(old, at(1, 0))
	require.True(t, ok)
	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v2"}, at(1, 0))
	s.applyEdit(ctx, old, seq)

	assert.Equal(t, 2, x.Calls(), "the older edit is never extracted")
	assert.Equal(t, "fresh", scopeName(s.ActiveScope()))
	assert.Equal(t, []string{"a.js:foo", "a.js:fresh"}, r.names())
}

func TestSynchronizer_NewerEditSupersedesInFlightExtraction(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["slow"] = []*Candidate{cand("stale", Function, 0, 0, 9, 0)}
	x.forests["v2"] = []*Candidate{cand("fresh", Function, 0, 0, 9, 0)}

	started := make(chan struct{})
	release := make(chan struct{})
	x.hook = func(doc Document) {
		if doc.Text == "slow" {
			close(started)
			<-release
		}
	}
	s, r := newTracked(t, x, WithEditDebounce(time.Hour))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "slow"}, at(1, 0))
	}()
	<-started
	s.DocumentEdited(ctx, Document{ID: "a.js", Text: "v2"}, at(1, 0))
	close(release)
	<-done
	assert.Empty(t, r.names(), "the activation result predates the edit")

	s.Flush()
	assert.Equal(t, "fresh", scopeName(s.ActiveScope()))
	assert.Equal(t, []string{"a.js:fresh"}, r.names())
}

func TestSynchronizer_Unsubscribe(t *testing.T) {
	t.Parallel()
	x := newFakeExtractor()
	x.forests["v1"] = fooBar()
	s := NewSynchronizer(x)
	r := &recorder{}
	unsubscribe := s.OnActiveScopeChanged(r.listen)
	ctx := context.Background()

	s.DocumentActivated(ctx, &Document{ID: "a.js", Text: "v1"}, at(1, 0))
	unsubscribe()
	s.CursorMoved("a.js", at(5, 0))

	assert.Equal(t, []string{"a.js:foo"}, r.names())
	assert.Equal(t, "bar", scopeName(s.ActiveScope()))
}

func TestActiveScope_Snippet(t *testing.T) {
	t.Parallel()
	text := "function foo() {\n  return 1;\n}\n\nfunction bar() {\n  return 2;\n}\n"

	assert.Empty(t, ActiveScope{}.Snippet(text))

	bounded := ActiveScope{Scope: cand("foo", Function, 0, 0, 2, 1)}
	assert.Equal(t, "function foo() {\n  return 1;\n}", bounded.Snippet(text))

	point := ActiveScope{Scope: cand("bar", Function, 4, 0, 4, 0)}
	assert.Equal(t, "function bar() {", point.Snippet(text))
}

func TestActiveScope_Identity(t *testing.T) {
	t.Parallel()
	_, ok := ActiveScope{}.Identity()
	assert.False(t, ok)

	id, ok := ActiveScope{Scope: cand("foo", Method, 3, 4, 9, 0)}.Identity()
	assert.True(t, ok)
	assert.Equal(t, Identity{Name: "foo", Start: at(3, 4)}, id)
}
