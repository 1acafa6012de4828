package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/scopelens/internal/outline"
)

// collector gathers the symbols an outline script emits. Scripts cannot
// construct Go structs, so emit_symbol accepts a map of primitives (or a
// node for the range) and the collector builds the outline Go-side.
type collector struct {
	symbols []*outline.Symbol
	parents []int
	nested  bool
}

// makeEmitSymbolFn creates the "emit_symbol" host function.
//
// emit_symbol({"name": s, "kind": s, "node": n}) → int
// emit_symbol({"name": s, "kind": s, "start_line": i, "start_col": i,
//
//	"end_line": i, "end_col": i, "parent": i}) → int
//
// The returned index can be passed as "parent" to nest a later symbol.
func makeEmitSymbolFn(c *collector) *object.Builtin {
	return object.NewBuiltin("emit_symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_symbol", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_symbol: %v", err)
		}

		sym := &outline.Symbol{
			Name: getString(m, "name"),
			Kind: outline.SymbolKind(getStringDefault(m, "kind", string(outline.SymbolFunction))),
		}
		if sym.Name == "" {
			return object.Errorf("emit_symbol: name is required")
		}

		if n, ok := m["node"]; ok {
			node, err := toNode(n)
			if err != nil {
				return object.Errorf("emit_symbol: %v", err)
			}
			sym.Range = nodeRange(node)
		} else {
			sym.Range = outline.Range{
				Start: outline.Position{Line: getInt(m, "start_line"), Column: getInt(m, "start_col")},
				End:   outline.Position{Line: getInt(m, "end_line"), Column: getInt(m, "end_col")},
			}
		}

		parent := -1
		if p, ok := getOptionalInt64(m, "parent"); ok {
			if p < 0 || int(p) >= len(c.symbols) {
				return object.Errorf("emit_symbol: parent %d does not refer to an earlier symbol", p)
			}
			parent = int(p)
			c.nested = true
		}

		c.symbols = append(c.symbols, sym)
		c.parents = append(c.parents, parent)
		return object.NewInt(int64(len(c.symbols) - 1))
	})
}

// outline assembles the emitted symbols. Scripts that never pass "parent"
// produce a flat outline whose nesting is inferred later from ranges.
func (c *collector) outline() *outline.Outline {
	if !c.nested {
		return &outline.Outline{Symbols: c.symbols}
	}
	var roots []*outline.Symbol
	for i, sym := range c.symbols {
		if p := c.parents[i]; p >= 0 {
			c.symbols[p].Children = append(c.symbols[p].Children, sym)
			continue
		}
		roots = append(roots, sym)
	}
	return &outline.Outline{Symbols: roots, Hierarchical: true}
}

// makeNodeRangeFn creates "node_range", which returns a node's 0-based
// range as a map with start_line, start_col, end_line and end_col keys.
func makeNodeRangeFn() *object.Builtin {
	return object.NewBuiltin("node_range", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_range", 1, len(args))
		}
		node, err := toNode(args[0])
		if err != nil {
			return object.Errorf("node_range: %v", err)
		}
		r := nodeRange(node)
		return object.NewMap(map[string]object.Object{
			"start_line": object.NewInt(int64(r.Start.Line)),
			"start_col":  object.NewInt(int64(r.Start.Column)),
			"end_line":   object.NewInt(int64(r.End.Line)),
			"end_col":    object.NewInt(int64(r.End.Column)),
		})
	})
}

// --- Object conversion helpers ---

func toNode(obj object.Object) (*sitter.Node, error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, fmt.Errorf("expected proxy (Node), got %s", obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, fmt.Errorf("expected *sitter.Node, got %T", proxy.Interface())
	}
	return node, nil
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}

func getInt(m map[string]object.Object, key string) int {
	switch v := m[key].(type) {
	case *object.Int:
		return int(v.Value())
	case *object.Float:
		return int(v.Value())
	}
	return 0
}

func getOptionalInt64(m map[string]object.Object, key string) (int64, bool) {
	switch v := m[key].(type) {
	case *object.Int:
		return v.Value(), true
	case *object.Float:
		return int64(v.Value()), true
	}
	return 0, false
}
