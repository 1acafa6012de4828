package runtime

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/scopelens/internal/outline"
)

// nodeRules maps tree-sitter node types to the outline kind they produce
// for one language. Nodes not listed are transparent: their descendants are
// attached to the nearest listed ancestor.
type nodeRules map[string]outline.SymbolKind

var jsRules = nodeRules{
	"function_declaration":           outline.SymbolFunction,
	"generator_function_declaration": outline.SymbolFunction,
	"method_definition":              outline.SymbolMethod,
	"class_declaration":              outline.SymbolClass,
	"abstract_class_declaration":     outline.SymbolClass,
	"class":                          outline.SymbolClass,
	"interface_declaration":          outline.SymbolInterface,
	"variable_declarator":            outline.SymbolVariable,
}

var languageRules = map[string]nodeRules{
	"go": {
		"function_declaration": outline.SymbolFunction,
		"method_declaration":   outline.SymbolMethod,
	},
	"javascript": jsRules,
	"typescript": jsRules,
	"tsx":        jsRules,
	"python": {
		"function_definition": outline.SymbolFunction,
		"class_definition":    outline.SymbolClass,
	},
	"rust": {
		"function_item": outline.SymbolFunction,
		"impl_item":     outline.SymbolStruct,
		"trait_item":    outline.SymbolInterface,
		"mod_item":      outline.SymbolModule,
	},
	"c": {
		"function_definition": outline.SymbolFunction,
	},
	"cpp": {
		"function_definition":  outline.SymbolFunction,
		"class_specifier":      outline.SymbolClass,
		"struct_specifier":     outline.SymbolStruct,
		"namespace_definition": outline.SymbolModule,
	},
	"java": {
		"method_declaration":      outline.SymbolMethod,
		"constructor_declaration": outline.SymbolMethod,
		"class_declaration":       outline.SymbolClass,
		"interface_declaration":   outline.SymbolInterface,
		"enum_declaration":        outline.SymbolClass,
		"record_declaration":      outline.SymbolClass,
	},
	"kotlin": {
		"function_declaration": outline.SymbolFunction,
		"class_declaration":    outline.SymbolClass,
		"object_declaration":   outline.SymbolClass,
	},
	"php": {
		"function_definition":   outline.SymbolFunction,
		"method_declaration":    outline.SymbolMethod,
		"class_declaration":     outline.SymbolClass,
		"interface_declaration": outline.SymbolInterface,
		"trait_declaration":     outline.SymbolClass,
	},
	"ruby": {
		"method":           outline.SymbolFunction,
		"singleton_method": outline.SymbolMethod,
		"class":            outline.SymbolClass,
		"module":           outline.SymbolModule,
	},
}

// functionValues are the JavaScript expression node types that turn a
// variable declarator into a function.
var functionValues = map[string]bool{
	"arrow_function":      true,
	"function":            true,
	"function_expression": true,
	"generator_function":  true,
}

// TreeSitterProvider produces hierarchical outlines by parsing documents with
// tree-sitter grammars.
type TreeSitterProvider struct{}

// NewTreeSitterProvider returns a provider covering every language that has
// both a grammar and node rules.
func NewTreeSitterProvider() *TreeSitterProvider { return &TreeSitterProvider{} }

// Name identifies the provider in index records.
func (p *TreeSitterProvider) Name() string { return "tree-sitter" }

// Supports reports whether the provider can outline language.
func (p *TreeSitterProvider) Supports(language string) bool {
	if _, ok := languageRules[language]; !ok {
		return false
	}
	_, ok := ParserForLanguage(language)
	return ok
}

// Outline parses doc and returns its symbol tree. Languages without a
// grammar yield outline.ErrUnavailable.
func (p *TreeSitterProvider) Outline(ctx context.Context, doc outline.Document) (*outline.Outline, error) {
	rules, ok := languageRules[doc.Language]
	if !ok {
		return nil, fmt.Errorf("runtime: tree-sitter %q: %w", doc.Language, outline.ErrUnavailable)
	}
	lang, ok := ParserForLanguage(doc.Language)
	if !ok {
		return nil, fmt.Errorf("runtime: tree-sitter %q: %w", doc.Language, outline.ErrUnavailable)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	src := []byte(doc.Text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("runtime: parsing %s: %w", doc.ID, err)
	}
	defer tree.Close()

	w := &walker{src: src, language: doc.Language, rules: rules}
	return &outline.Outline{
		Symbols:      w.children(tree.RootNode(), ""),
		Hierarchical: true,
	}, nil
}

type walker struct {
	src      []byte
	language string
	rules    nodeRules
}

// children returns the outline symbols found below node. container is the
// kind of the nearest enclosing symbol, or "" at the top level.
func (w *walker) children(node *sitter.Node, container outline.SymbolKind) []*outline.Symbol {
	var out []*outline.Symbol
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if sym := w.symbol(child, container); sym != nil {
			out = append(out, sym)
			continue
		}
		out = append(out, w.children(child, container)...)
	}
	return out
}

func (w *walker) symbol(node *sitter.Node, container outline.SymbolKind) *outline.Symbol {
	kind, ok := w.rules[node.Type()]
	if !ok {
		return nil
	}

	if node.Type() == "variable_declarator" {
		value := node.ChildByFieldName("value")
		if value == nil || !functionValues[value.Type()] {
			return nil
		}
		kind = outline.SymbolFunction
	}

	name := w.name(node)
	if name == "" {
		return nil
	}
	if kind == outline.SymbolFunction && isTypeContainer(container) {
		kind = outline.SymbolMethod
	}
	if kind == outline.SymbolFunction && w.language == "cpp" && strings.Contains(name, "::") {
		kind = outline.SymbolMethod
	}

	return &outline.Symbol{
		Name:     name,
		Kind:     kind,
		Range:    nodeRange(node),
		Children: w.children(node, kind),
	}
}

func (w *walker) name(node *sitter.Node) string {
	switch w.language {
	case "c", "cpp":
		if node.Type() == "function_definition" {
			return w.declaratorName(node.ChildByFieldName("declarator"))
		}
	case "kotlin":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "simple_identifier" || child.Type() == "type_identifier" {
				return child.Content(w.src)
			}
		}
		return ""
	case "rust":
		if node.Type() == "impl_item" {
			if t := node.ChildByFieldName("type"); t != nil {
				return t.Content(w.src)
			}
		}
	}
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(w.src)
	}
	return ""
}

// declaratorName unwraps pointer, reference and function declarators down
// to the identifier that names a C or C++ function.
func (w *walker) declaratorName(node *sitter.Node) string {
	for node != nil {
		switch node.Type() {
		case "identifier", "field_identifier", "qualified_identifier",
			"destructor_name", "operator_name":
			return node.Content(w.src)
		}
		next := node.ChildByFieldName("declarator")
		if next == nil && node.NamedChildCount() > 0 {
			next = node.NamedChild(0)
		}
		node = next
	}
	return ""
}

func isTypeContainer(k outline.SymbolKind) bool {
	switch k {
	case outline.SymbolClass, outline.SymbolStruct, outline.SymbolInterface:
		return true
	}
	return false
}

func nodeRange(node *sitter.Node) outline.Range {
	sp, ep := node.StartPoint(), node.EndPoint()
	return outline.Range{
		Start: outline.Position{Line: int(sp.Row), Column: int(sp.Column)},
		End:   outline.Position{Line: int(ep.Row), Column: int(ep.Column)},
	}
}
