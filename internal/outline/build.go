package outline

import (
	"fmt"
	"sort"
)

// FromTree converts a hierarchical outline into a candidate forest. Only
// function and method nodes become candidates; other nodes are containers
// whose callable descendants are attached to the nearest callable ancestor,
// or promoted to the top level when there is none.
func FromTree(symbols []*Symbol) ([]*Candidate, error) {
	var out []*Candidate
	for _, s := range symbols {
		cs, err := collect(s, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	sortByStart(out)
	return out, nil
}

func collect(s *Symbol, parent *Symbol) ([]*Candidate, error) {
	if !s.Range.Valid() {
		return nil, fmt.Errorf("%w: %q has inverted range %s", ErrExtractionFailed, s.Name, s.Range)
	}
	if parent != nil && !parent.Range.ContainsRange(s.Range) {
		return nil, fmt.Errorf("%w: %q %s escapes parent %q %s",
			ErrExtractionFailed, s.Name, s.Range, parent.Name, parent.Range)
	}

	var kids []*Candidate
	for _, child := range s.Children {
		cs, err := collect(child, s)
		if err != nil {
			return nil, err
		}
		kids = append(kids, cs...)
	}
	if !s.Kind.Callable() {
		return kids, nil
	}

	sortByStart(kids)
	return []*Candidate{{
		Name:     s.Name,
		Kind:     candidateKind(s.Kind),
		Range:    s.Range,
		Children: kids,
	}}, nil
}

// FromFlat converts a flat symbol list into a candidate forest. Nesting is
// inferred from ranges: a candidate's parent is the smallest other candidate
// whose range contains it.
func FromFlat(symbols []*Symbol) ([]*Candidate, error) {
	var cands []*Candidate
	for _, s := range symbols {
		if !s.Kind.Callable() {
			continue
		}
		if !s.Range.Valid() {
			return nil, fmt.Errorf("%w: %q has inverted range %s", ErrExtractionFailed, s.Name, s.Range)
		}
		cands = append(cands, &Candidate{Name: s.Name, Kind: candidateKind(s.Kind), Range: s.Range})
	}

	// Outer ranges first: start ascending, end descending. Every container of
	// cands[i] then sits at a lower index.
	sort.SliceStable(cands, func(i, j int) bool {
		if c := cands[i].Range.Start.Compare(cands[j].Range.Start); c != 0 {
			return c < 0
		}
		return cands[i].Range.End.Compare(cands[j].Range.End) > 0
	})

	var roots []*Candidate
	for i, c := range cands {
		var parent *Candidate
		for j := 0; j < i; j++ {
			p := cands[j]
			if !p.Range.ContainsRange(c.Range) {
				continue
			}
			if parent == nil || parent.Range.ContainsRange(p.Range) {
				parent = p
			}
		}
		if parent == nil {
			roots = append(roots, c)
		} else {
			parent.Children = append(parent.Children, c)
		}
	}
	return roots, nil
}

func candidateKind(k SymbolKind) Kind {
	if k == SymbolMethod {
		return Method
	}
	return Function
}

func sortByStart(cs []*Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Range.Start.Before(cs[j].Range.Start)
	})
}

// Entry is one candidate of a flattened forest.
type Entry struct {
	Candidate *Candidate
	Depth     int
}

// Flatten returns the forest in pre-order, i.e. in order of appearance.
func Flatten(forest []*Candidate) []Entry {
	var out []Entry
	var walk func(cs []*Candidate, depth int)
	walk = func(cs []*Candidate, depth int) {
		for _, c := range cs {
			out = append(out, Entry{Candidate: c, Depth: depth})
			walk(c.Children, depth+1)
		}
	}
	walk(forest, 0)
	return out
}

// Validate checks that every range is ordered and every child lies within
// its parent.
func Validate(forest []*Candidate) error {
	for _, c := range forest {
		if !c.Range.Valid() {
			return fmt.Errorf("%w: %q has inverted range %s", ErrExtractionFailed, c.Name, c.Range)
		}
		for _, child := range c.Children {
			if !c.Range.ContainsRange(child.Range) {
				return fmt.Errorf("%w: %q %s escapes parent %q %s",
					ErrExtractionFailed, child.Name, child.Range, c.Name, c.Range)
			}
		}
		if err := Validate(c.Children); err != nil {
			return err
		}
	}
	return nil
}
