// Package symbols extracts a structural outline (functions, types, classes,
// methods) from source files with tree-sitter. It backs the get_symbols tool.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupported is returned for files with no registered grammar.
var ErrUnsupported = errors.New("unsupported language")

// Kind classifies a symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindType      Kind = "type"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindConst     Kind = "const"
)

// Symbol is one outline entry. Lines are 1-based and inclusive.
type Symbol struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Signature string `json:"signature"`
	Container string `json:"container,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	startByte uint32
	endByte   uint32
}

// Outliner produces outlines using a language registry.
type Outliner struct {
	registry *Registry
}

// NewOutliner creates an outliner. A nil registry uses DefaultRegistry.
func NewOutliner(r *Registry) *Outliner {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Outliner{registry: r}
}

// Supports reports whether p has a registered grammar.
func (o *Outliner) Supports(p string) bool {
	return o.registry.Lookup(p) != nil
}

// Outline parses content and returns its symbols in source order.
func (o *Outliner) Outline(ctx context.Context, p, content string) ([]Symbol, error) {
	spec := o.registry.Lookup(p)
	if spec == nil {
		return nil, fmt.Errorf("%s: %w", p, ErrUnsupported)
	}
	q, err := spec.query()
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", spec.Name, err)
	}

	src := []byte(content)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var syms []Symbol
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, c := range m.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "symbol":
				node = c.Node
			case "name":
				name = c.Node.Content(src)
			}
		}
		if node == nil || name == "" {
			continue
		}
		syms = append(syms, Symbol{
			Name:      name,
			Kind:      kindOf(node),
			Signature: signature(node, src),
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		})
	}

	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].startByte != syms[j].startByte {
			return syms[i].startByte < syms[j].startByte
		}
		return syms[i].endByte > syms[j].endByte
	})
	assignContainers(syms)
	return syms, nil
}

func kindOf(node *sitter.Node) Kind {
	switch node.Type() {
	case "method_declaration", "method_definition":
		return KindMethod
	case "class_declaration", "class_definition":
		return KindClass
	case "interface_declaration":
		return KindInterface
	case "type_spec", "type_alias_declaration":
		if t := node.ChildByFieldName("type"); t != nil && t.Type() == "interface_type" {
			return KindInterface
		}
		return KindType
	case "const_spec":
		return KindConst
	case "function_definition":
		if p := node.Parent(); p != nil && p.Type() == "block" {
			if gp := p.Parent(); gp != nil && gp.Type() == "class_definition" {
				return KindMethod
			}
		}
		return KindFunction
	default:
		return KindFunction
	}
}

// assignContainers records the innermost enclosing symbol of nested symbols.
// syms must be sorted by start byte, outer first.
func assignContainers(syms []Symbol) {
	var stack []int
	for i := range syms {
		for len(stack) > 0 && syms[stack[len(stack)-1]].endByte <= syms[i].startByte {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			syms[i].Container = syms[stack[len(stack)-1]].Name
		}
		stack = append(stack, i)
	}
}

// signature returns the first line of a definition without its opening brace.
// Go type and const specs get their keyword back.
func signature(node *sitter.Node, src []byte) string {
	line, _, _ := strings.Cut(node.Content(src), "\n")
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, "{")
	line = strings.TrimSuffix(line, ":")
	line = strings.TrimSpace(line)
	switch node.Type() {
	case "type_spec":
		line = "type " + line
	case "const_spec":
		line = "const " + line
	}
	return line
}

// Format renders an outline as one line per symbol, indented by nesting.
func Format(syms []Symbol) string {
	if len(syms) == 0 {
		return "(no symbols)"
	}
	depth := make(map[string]int, len(syms))
	var sb strings.Builder
	for i := range syms {
		s := &syms[i]
		d := 0
		if s.Container != "" {
			d = depth[s.Container] + 1
		}
		depth[s.Name] = d
		fmt.Fprintf(&sb, "%sL%d-%d %s %s\n", strings.Repeat("  ", d), s.StartLine, s.EndLine, s.Kind, s.Signature)
	}
	return strings.TrimRight(sb.String(), "\n")
}
