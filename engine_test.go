package scopelens

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopelens/internal/slogutil"
)

const fooBarJS = "function foo() {\n  return 1;\n}\n\nfunction bar() {\n  return 2;\n}\n"

// stubProvider returns a fixed outline or error.
type stubProvider struct {
	out   *Outline
	err   error
	calls int
}

func (p *stubProvider) Outline(context.Context, Document) (*Outline, error) {
	p.calls++
	return p.out, p.err
}

func sym(name string, kind SymbolKind, sl, sc, el, ec int, children ...*Symbol) *Symbol {
	return &Symbol{
		Name:     name,
		Kind:     kind,
		Range:    Range{Start: at(sl, sc), End: at(el, ec)},
		Children: children,
	}
}

func names(cs []*Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

// assertContainment checks that every child lies within its parent.
func assertContainment(t *testing.T, forest []*Candidate) {
	t.Helper()
	for _, c := range forest {
		for _, child := range c.Children {
			assert.True(t, c.Range.ContainsRange(child.Range), "%s %s escapes %s %s", child.Name, child.Range, c.Name, c.Range)
		}
		assertContainment(t, c.Children)
	}
}

func TestNew_DefaultProviders(t *testing.T) {
	t.Parallel()
	e := New()
	require.Len(t, e.providers, 2)
	assert.Equal(t, "script", e.providers[0].name)
	assert.Equal(t, "tree-sitter", e.providers[1].name)
	assert.Nil(t, e.Store())
	assert.Equal(t, GapNone, e.GapPolicy())
	assert.NoError(t, e.Close())
}

func TestNew_ScriptsDirComesFirst(t *testing.T) {
	t.Parallel()
	e := New(WithScriptsDir(t.TempDir()))
	require.Len(t, e.providers, 3)
	assert.Equal(t, "user-script", e.providers[0].name)
}

func TestNew_WithProvidersReplacesChain(t *testing.T) {
	t.Parallel()
	e := New(WithProviders(&stubProvider{}))
	require.Len(t, e.providers, 1)
	assert.Equal(t, "provider0", e.providers[0].name)

	e = New(WithProviders())
	assert.Empty(t, e.providers)
}

func TestWithLanguages_Canonicalizes(t *testing.T) {
	t.Parallel()
	e := New(WithLanguages("golang", "Python"))
	assert.True(t, e.languages["go"])
	assert.True(t, e.languages["python"])
	assert.False(t, e.languages["rust"])

	assert.Nil(t, New(WithLanguages()).languages)
}

func TestParseGapPolicy(t *testing.T) {
	t.Parallel()
	g, err := ParseGapPolicy("Preceding")
	require.NoError(t, err)
	assert.Equal(t, GapPreceding, g)
	assert.Equal(t, "preceding", g.String())

	g, err = ParseGapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, GapNone, g)

	_, err = ParseGapPolicy("following")
	assert.Error(t, err)
}

func TestExtract_FallbackFooBarUnderBothGapPolicies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		policy GapPolicy
		line3  string
	}{
		{"gap resolves to none", GapNone, ""},
		{"gap resolves to preceding", GapPreceding, "foo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := New(WithProviders(), WithGapPolicy(tt.policy))
			cands, err := e.Extract(context.Background(), Document{ID: "a.js", Language: "javascript", Text: fooBarJS})
			require.NoError(t, err)

			require.Equal(t, []string{"foo", "bar"}, names(cands))
			assert.Equal(t, 0, cands[0].Range.Start.Line)
			assert.Equal(t, 4, cands[1].Range.Start.Line)

			assert.Equal(t, "foo", Locate(cands, at(1, 2)).Name)
			assert.Equal(t, "bar", Locate(cands, at(4, 0)).Name)
			got := Locate(cands, at(3, 0))
			if tt.line3 == "" {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.line3, got.Name)
			}
		})
	}
}

func TestExtract_FallbackEndToEndWithSynchronizer(t *testing.T) {
	t.Parallel()
	e := New(WithProviders())
	s := NewSynchronizer(e)
	doc := Document{ID: "a.js", Language: "javascript", Text: fooBarJS}

	s.DocumentActivated(context.Background(), &doc, at(1, 0))
	assert.Equal(t, "foo", scopeName(s.ActiveScope()))
	s.CursorMoved("a.js", at(3, 0))
	assert.Nil(t, s.ActiveScope().Scope)
	s.CursorMoved("a.js", at(5, 3))
	assert.Equal(t, "bar", scopeName(s.ActiveScope()))
	assert.Equal(t, "function bar() {\n  return 2;\n}", s.ActiveScope().Snippet(doc.Text))
}

func TestExtract_CanonicalizesLanguage(t *testing.T) {
	t.Parallel()
	e := New(WithProviders())
	cands, err := e.Extract(context.Background(), Document{ID: "a", Language: " JS ", Text: fooBarJS})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, names(cands))
}

func TestExtract_UnknownLanguageIsEmpty(t *testing.T) {
	t.Parallel()
	e := New()
	cands, err := e.Extract(context.Background(), Document{ID: "a", Language: "cobol", Text: fooBarJS})
	require.NoError(t, err)
	assert.NotNil(t, cands)
	assert.Empty(t, cands)
}

func TestExtract_ClassWithTwoMethods(t *testing.T) {
	t.Parallel()
	p := &stubProvider{out: &Outline{
		Hierarchical: true,
		Symbols: []*Symbol{
			sym("Animal", SymbolClass, 0, 0, 8, 1,
				sym("name", SymbolField, 1, 2, 1, 14),
				sym("speak", SymbolMethod, 2, 2, 4, 3),
				sym("run", SymbolMethod, 5, 2, 7, 3),
			),
		},
	}}
	e := New(WithProviders(p))

	cands, err := e.Extract(context.Background(), Document{ID: "a.js", Language: "javascript"})
	require.NoError(t, err)

	require.Equal(t, []string{"speak", "run"}, names(cands), "the class is a container, not a candidate")
	for _, c := range cands {
		assert.Equal(t, Method, c.Kind)
		assert.Empty(t, c.Children)
	}
	assert.False(t, cands[0].Range.ContainsRange(cands[1].Range))
	assert.False(t, cands[1].Range.ContainsRange(cands[0].Range))
	assert.Nil(t, Locate(cands, at(1, 5)), "class body outside methods has no scope")
}

func TestExtract_FlatOutlineInfersNesting(t *testing.T) {
	t.Parallel()
	p := &stubProvider{out: &Outline{Symbols: []*Symbol{
		sym("inner", SymbolFunction, 2, 2, 4, 3),
		sym("outer", SymbolFunction, 0, 0, 6, 1),
		sym("Thing", SymbolClass, 8, 0, 12, 1),
		sym("method", SymbolMethod, 9, 2, 11, 3),
	}}}
	e := New(WithProviders(p))

	cands, err := e.Extract(context.Background(), Document{ID: "a.ts", Language: "typescript"})
	require.NoError(t, err)

	require.Equal(t, []string{"outer", "method"}, names(cands))
	require.Equal(t, []string{"inner"}, names(cands[0].Children))
	assertContainment(t, cands)
	assert.Equal(t, "inner", Locate(cands, at(3, 0)).Name)
}

func TestExtract_UnavailableProviderFallsThrough(t *testing.T) {
	t.Parallel()
	first := &stubProvider{err: ErrOutlineUnavailable}
	second := &stubProvider{out: &Outline{Symbols: []*Symbol{sym("only", SymbolFunction, 0, 0, 1, 0)}}}
	e := New(WithProviders(first, second))

	cands, provider, err := e.extract(context.Background(), Document{ID: "a.go", Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, names(cands))
	assert.Equal(t, "provider1", provider)
	assert.Equal(t, 1, first.calls)
}

func TestExtract_AllUnavailableUsesFallback(t *testing.T) {
	t.Parallel()
	e := New(WithProviders(&stubProvider{err: ErrOutlineUnavailable}))
	cands, provider, err := e.extract(context.Background(), Document{ID: "a.js", Language: "javascript", Text: fooBarJS})
	require.NoError(t, err)
	assert.Equal(t, "fallback", provider)
	assert.Len(t, cands, 2)
}

func TestExtract_ProviderErrorIsExtractionFailed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	boom := errors.New("outline service timed out")
	e := New(
		WithProviders(&stubProvider{err: boom}),
		WithLogger(slogutil.NewLogger(&buf, slog.LevelWarn)),
	)

	cands, err := e.Extract(context.Background(), Document{ID: "a.js", Language: "javascript", Text: fooBarJS})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, cands)
	assert.Empty(t, cands, "a failing provider does not fall back")
	assert.Contains(t, buf.String(), "extraction failed")
}

func TestExtract_MalformedOutlineIsExtractionFailed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		out  *Outline
	}{
		{"child escapes parent", &Outline{Hierarchical: true, Symbols: []*Symbol{
			sym("outer", SymbolFunction, 0, 0, 2, 0, sym("inner", SymbolFunction, 1, 0, 5, 0)),
		}}},
		{"inverted range", &Outline{Symbols: []*Symbol{sym("bad", SymbolFunction, 4, 0, 1, 0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := New(WithProviders(&stubProvider{out: tt.out}))
			cands, err := e.Extract(context.Background(), Document{ID: "x", Language: "go"})
			assert.ErrorIs(t, err, ErrExtractionFailed)
			assert.Empty(t, cands)
		})
	}
}

func TestExtract_NilOutlineIsEmpty(t *testing.T) {
	t.Parallel()
	e := New(WithProviders(&stubProvider{}))
	cands, err := e.Extract(context.Background(), Document{ID: "x", Language: "go"})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestExtract_TreeSitterJavaScriptClass(t *testing.T) {
	t.Parallel()
	src := `class Animal {
  speak() {
    return 1;
  }
  run() {
    return 2;
  }
}
`
	e := New()
	cands, provider, err := e.extract(context.Background(), Document{ID: "a.js", Language: "javascriptreact", Text: src})
	require.NoError(t, err)

	assert.Equal(t, "tree-sitter", provider)
	require.Equal(t, []string{"speak", "run"}, names(cands))
	assert.Equal(t, Method, cands[0].Kind)
	assert.Equal(t, at(1, 2), cands[0].Range.Start)
	assert.Equal(t, "run", Locate(cands, at(5, 4)).Name)
	assert.Nil(t, Locate(cands, at(0, 3)))
}

func TestExtract_TreeSitterPythonNesting(t *testing.T) {
	t.Parallel()
	src := "def outer():\n    def inner():\n        return 1\n    return inner\n"
	e := New()
	cands, err := e.Extract(context.Background(), Document{ID: "a.py", Language: "python", Text: src})
	require.NoError(t, err)

	require.Equal(t, []string{"outer"}, names(cands))
	require.Equal(t, []string{"inner"}, names(cands[0].Children))
	assertContainment(t, cands)
	assert.Equal(t, "inner", Locate(cands, at(2, 8)).Name)
	assert.Equal(t, "outer", Locate(cands, at(3, 4)).Name)
	assert.Equal(t, Locate(cands, at(2, 8)), Locate(cands, at(2, 8)), "locate is idempotent")
}

func TestExtract_EmbeddedGoScript(t *testing.T) {
	t.Parallel()
	src := "package main\n\nfunc Greet(name string) string {\n\treturn name\n}\n\nfunc (s *Server) Address() string {\n\treturn s.Host\n}\n"
	e := New()
	cands, provider, err := e.extract(context.Background(), Document{ID: "main.go", Language: "golang", Text: src})
	require.NoError(t, err)

	assert.Equal(t, "script", provider)
	require.Equal(t, []string{"Greet", "Address"}, names(cands))
	assert.Equal(t, Function, cands[0].Kind)
	assert.Equal(t, Method, cands[1].Kind)
	assert.Equal(t, "Address", Locate(cands, at(7, 1)).Name)
}

func TestExtract_ScriptsFSOverride(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"outline/ruby.risor": &fstest.MapFile{Data: []byte(
			`emit_symbol({"name": "scripted", "kind": "method", "start_line": 0, "start_col": 0, "end_line": 2, "end_col": 3})`,
		)},
	}
	e := New(WithScriptsFS(fsys))
	cands, provider, err := e.extract(context.Background(), Document{ID: "a.rb", Language: "ruby", Text: "def x\n  1\nend\n"})
	require.NoError(t, err)
	assert.Equal(t, "script", provider)
	require.Equal(t, []string{"scripted"}, names(cands))
	assert.Equal(t, Method, cands[0].Kind)
}

func TestExtract_FailingScriptIsExtractionFailed(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"outline/ruby.risor": &fstest.MapFile{Data: []byte(`emit_symbol({"kind": "function"})`)},
	}
	e := New(WithScriptsFS(fsys))
	cands, err := e.Extract(context.Background(), Document{ID: "a.rb", Language: "ruby", Text: "def x\nend\n"})
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Empty(t, cands)
}
