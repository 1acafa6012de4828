package scopelens

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format: the scopes every file of a case is expected to index,
// in order of appearance.
type goldenFile struct {
	Scopes []goldenScope `json:"scopes"`
}

type goldenScope struct {
	File  string `json:"file"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Line  int    `json:"line"`
	Depth int    `json:"depth"`
}

// TestGolden walks testdata/{language}/{case}/ directories, indexes src/ and
// compares the stored scopes with golden.json.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		langRoot := filepath.Join("testdata", langDir.Name())
		cases, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}
		for _, c := range cases {
			if !c.IsDir() {
				continue
			}
			dir := filepath.Join(langRoot, c.Name())
			t.Run(langDir.Name()+"/"+c.Name(), func(t *testing.T) {
				t.Parallel()
				runGoldenCase(t, dir)
			})
		}
	}
}

func runGoldenCase(t *testing.T, dir string) {
	data, err := os.ReadFile(filepath.Join(dir, "golden.json"))
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(data, &golden))

	srcDir, err := filepath.Abs(filepath.Join(dir, "src"))
	require.NoError(t, err)
	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(srcDir, e.Name()))
		}
	}

	e := newTestEngine(t)
	require.NoError(t, e.IndexFiles(context.Background(), paths))

	var got []goldenScope
	for _, p := range paths {
		fns, err := e.Query().Functions(p)
		require.NoError(t, err)
		for _, fn := range fns {
			got = append(got, goldenScope{
				File:  filepath.Base(p),
				Name:  fn.Candidate.Name,
				Kind:  fn.Candidate.Kind.String(),
				Line:  fn.Candidate.Range.Start.Line,
				Depth: fn.Depth,
			})
		}
	}
	assert.Equal(t, golden.Scopes, got)

	// Every scope is the one reported at its own header.
	for _, s := range golden.Scopes {
		at, err := e.Query().ScopeAt(filepath.Join(srcDir, s.File), s.Line, 0)
		require.NoError(t, err)
		require.NotNil(t, at, "%s:%d", s.File, s.Line)
		assert.Equal(t, s.Name, at.Name)
	}
}
