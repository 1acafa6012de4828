package outline

// Locate returns the deepest candidate whose range contains pos, or nil.
//
// At each level the candidates containing pos are compared and the one with
// the latest start wins (for equal starts, the one ending first). The search
// then continues in that candidate's children.
//
// A zero-width candidate is a point-scope: it covers pos when
// start <= pos < start of the next sibling that starts later. The last such
// candidate stays open to the end of the document.
func Locate(candidates []*Candidate, pos Position) *Candidate {
	var found *Candidate
	level := candidates
	for {
		best := pick(level, pos)
		if best == nil {
			return found
		}
		found = best
		level = best.Children
	}
}

func pick(level []*Candidate, pos Position) *Candidate {
	var best *Candidate
	for _, c := range level {
		if !covers(level, c, pos) {
			continue
		}
		if best == nil || better(c, best) {
			best = c
		}
	}
	return best
}

func better(c, best *Candidate) bool {
	switch c.Range.Start.Compare(best.Range.Start) {
	case 1:
		return true
	case -1:
		return false
	}
	return c.Range.End.Compare(best.Range.End) <= 0
}

func covers(level []*Candidate, c *Candidate, pos Position) bool {
	if !c.Range.IsZero() {
		return c.Range.Contains(pos)
	}
	if pos.Before(c.Range.Start) {
		return false
	}
	next, ok := nextStart(level, c.Range.Start)
	return !ok || pos.Before(next)
}

// nextStart returns the earliest sibling start strictly after start.
func nextStart(level []*Candidate, start Position) (Position, bool) {
	var next Position
	found := false
	for _, s := range level {
		if !start.Before(s.Range.Start) {
			continue
		}
		if !found || s.Range.Start.Before(next) {
			next = s.Range.Start
			found = true
		}
	}
	return next, found
}
