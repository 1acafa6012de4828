package scopelens

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jward/scopelens/internal/debounce"
	"github.com/jward/scopelens/internal/outline"
	"github.com/jward/scopelens/internal/slogutil"
)

// Extractor produces the candidate forest for a document. *Engine is the
// usual implementation.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]*Candidate, error)
}

// State is the synchronizer's state.
type State int

const (
	// Idle means no document is active.
	Idle State = iota
	// Tracking means a document is active; its scope may still be none.
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// ActiveScope is the synchronizer's output. Scope is nil when the cursor is
// outside every candidate or no document is active.
type ActiveScope struct {
	DocumentID string
	Scope      *Candidate
	// Cursor is the position Scope was located at.
	Cursor Position
}

// Identity returns the scope's identity; ok is false when there is no scope.
func (a ActiveScope) Identity() (id Identity, ok bool) {
	if a.Scope == nil {
		return Identity{}, false
	}
	return a.Scope.Identity(), true
}

// same reports whether a and b name the same document and scope identity.
func (a ActiveScope) same(b ActiveScope) bool {
	if a.DocumentID != b.DocumentID {
		return false
	}
	ia, oka := a.Identity()
	ib, okb := b.Identity()
	return oka == okb && ia == ib
}

// Snippet returns the text of the active scope within text, the snapshot it
// was extracted from. A point-scope yields its header line.
func (a ActiveScope) Snippet(text string) string {
	if a.Scope == nil {
		return ""
	}
	idx := outline.NewLineIndex(text)
	r := a.Scope.Range
	if r.IsZero() {
		line := idx.LineText(r.Start.Line)
		r.End = Position{Line: r.Start.Line, Column: len(line)}
	}
	return idx.Slice(r)
}

// Listener receives the new ActiveScope after its identity changes.
type Listener func(ActiveScope)

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithEditDebounce coalesces DocumentEdited events arriving within d of each
// other into one extraction of the latest snapshot. Zero extracts on every
// edit.
func WithEditDebounce(d time.Duration) SyncOption {
	return func(s *Synchronizer) {
		if d > 0 {
			s.debouncer = debounce.New(d)
		}
	}
}

// WithSyncLogger sets the logger used for degraded extractions.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Synchronizer owns the ActiveScope and decides when to recompute it.
//
// Document activation and edits re-extract; cursor moves only re-locate
// against the candidates already held. Every extraction takes a sequence
// number and its result is discarded if a newer activation, edit or reset
// started in the meantime, so a slow extraction never overwrites the result
// of a newer one.
//
// Listeners run on the goroutine whose event committed the change and must
// not block.
type Synchronizer struct {
	extractor Extractor
	logger    *slog.Logger
	debouncer *debounce.Debouncer

	mu         sync.Mutex
	seq        uint64
	state      State
	docID      string
	cursor     Position
	candidates []*Candidate
	extracting bool
	active     ActiveScope

	listeners map[int]Listener
	nextID    int
}

// NewSynchronizer returns an Idle synchronizer that extracts with x.
func NewSynchronizer(x Extractor, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		extractor: x,
		logger:    slogutil.NewDiscardLogger(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnActiveScopeChanged registers l and returns a function that removes it.
func (s *Synchronizer) OnActiveScopeChanged(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ActiveScope returns the current ActiveScope.
func (s *Synchronizer) ActiveScope() ActiveScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns Idle or Tracking.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DocumentActivated switches to doc and locates the scope at cursor. A nil
// doc means no document is active and resets to Idle.
func (s *Synchronizer) DocumentActivated(ctx context.Context, doc *Document, cursor Position) {
	if doc == nil {
		s.Reset()
		return
	}
	if s.debouncer != nil {
		s.debouncer.Cancel()
	}
	s.refresh(ctx, *doc, &cursor, 0)
}

// DocumentEdited re-extracts the active document from the snapshot doc.
// Edits to a document other than the active one are ignored. The edit is
// ordered when it arrives: a debounced edit that runs after a newer
// activation, edit or reset is dropped.
func (s *Synchronizer) DocumentEdited(ctx context.Context, doc Document, cursor Position) {
	seq, ok := s.beginEdit(doc, cursor)
	if !ok {
		s.logger.Debug("edit ignored", "document", doc.ID)
		return
	}
	if s.debouncer == nil {
		s.applyEdit(ctx, doc, seq)
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.debouncer.Trigger(func() { s.applyEdit(ctx, doc, seq) })
}

// beginEdit records the cursor and takes the edit's sequence number.
func (s *Synchronizer) beginEdit(doc Document, cursor Position) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Tracking || doc.ID != s.docID {
		return 0, false
	}
	s.seq++
	s.cursor = cursor
	return s.seq, true
}

// applyEdit extracts an edit taken by beginEdit, unless a newer event has
// arrived since.
func (s *Synchronizer) applyEdit(ctx context.Context, doc Document, seq uint64) {
	s.refresh(ctx, doc, nil, seq)
}

// Flush runs a debounced edit now, if one is pending.
func (s *Synchronizer) Flush() {
	if s.debouncer != nil {
		s.debouncer.Flush()
	}
}

// CursorMoved re-locates the scope at pos without re-extracting. While an
// extraction for the document is in flight only the cursor is recorded;
// the extraction locates at the latest cursor when it commits.
func (s *Synchronizer) CursorMoved(documentID string, pos Position) {
	s.mu.Lock()
	if s.state != Tracking || documentID != s.docID {
		s.mu.Unlock()
		return
	}
	s.cursor = pos
	if s.extracting {
		s.mu.Unlock()
		return
	}
	next := ActiveScope{DocumentID: s.docID, Scope: Locate(s.candidates, pos), Cursor: pos}
	notify := s.commitLocked(next)
	s.mu.Unlock()

	notify()
}

// Reset returns to Idle, clears the scope and discards any extraction in
// flight or pending edit.
func (s *Synchronizer) Reset() {
	if s.debouncer != nil {
		s.debouncer.Cancel()
	}
	s.mu.Lock()
	s.seq++
	s.state = Idle
	s.docID = ""
	s.cursor = Position{}
	s.candidates = nil
	s.extracting = false
	notify := s.commitLocked(ActiveScope{})
	s.mu.Unlock()

	notify()
}

// refresh extracts doc and commits the scope at the latest cursor, unless a
// newer refresh or reset started while extracting. A nil cursor marks an
// edit: it keeps the recorded cursor and is dropped unless editSeq is still
// the newest sequence number.
func (s *Synchronizer) refresh(ctx context.Context, doc Document, cursor *Position, editSeq uint64) {
	s.mu.Lock()
	if cursor == nil && (s.seq != editSeq || s.state != Tracking || s.docID != doc.ID) {
		s.mu.Unlock()
		s.logger.Debug("edit superseded", "document", doc.ID, "seq", editSeq)
		return
	}
	s.seq++
	seq := s.seq
	s.state = Tracking
	s.docID = doc.ID
	if cursor != nil {
		s.cursor = *cursor
	}
	s.extracting = true
	s.mu.Unlock()

	cands, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.logger.Warn("extraction failed, scope cleared", "document", doc.ID, "error", err)
		cands = nil
	}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("superseded extraction discarded", "document", doc.ID, "seq", seq)
		return
	}
	s.extracting = false
	s.candidates = cands
	next := ActiveScope{DocumentID: doc.ID, Scope: Locate(cands, s.cursor), Cursor: s.cursor}
	notify := s.commitLocked(next)
	s.mu.Unlock()

	notify()
}

// commitLocked replaces the active scope and returns a function that
// notifies listeners if the identity changed. s.mu must be held; the
// returned function must be called without it.
func (s *Synchronizer) commitLocked(next ActiveScope) func() {
	changed := !s.active.same(next)
	s.active = next
	if !changed || len(s.listeners) == 0 {
		return func() {}
	}
	ls := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			ls = append(ls, l)
		}
	}
	return func() {
		for _, l := range ls {
			l(next)
		}
	}
}
