package symbols

import (
	"path"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageSpec pairs a tree-sitter grammar with an outline query. The query
// captures the definition node as @symbol and its identifier as @name.
type LanguageSpec struct {
	Name       string
	Language   *sitter.Language
	Query      string
	Extensions []string

	once     sync.Once
	compiled *sitter.Query
	err      error
}

func (s *LanguageSpec) query() (*sitter.Query, error) {
	s.once.Do(func() {
		s.compiled, s.err = sitter.NewQuery([]byte(s.Query), s.Language)
	})
	return s.compiled, s.err
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]*LanguageSpec)}
}

// DefaultRegistry returns a registry with Go, Python, JavaScript and TypeScript.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&LanguageSpec{
		Name:     "go",
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @symbol
			(method_declaration name: (field_identifier) @name) @symbol
			(type_spec name: (type_identifier) @name) @symbol
			(const_spec name: (identifier) @name) @symbol
		`,
		Extensions: []string{"go"},
	})
	r.Register(&LanguageSpec{
		Name:     "python",
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @symbol
			(class_definition name: (identifier) @name) @symbol
		`,
		Extensions: []string{"py", "pyi"},
	})
	r.Register(&LanguageSpec{
		Name:     "javascript",
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @symbol
			(class_declaration name: (identifier) @name) @symbol
			(method_definition name: (property_identifier) @name) @symbol
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @symbol
		`,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
	})
	tsQuery := `
			(function_declaration name: (identifier) @name) @symbol
			(class_declaration name: (type_identifier) @name) @symbol
			(method_definition name: (property_identifier) @name) @symbol
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @symbol
			(interface_declaration name: (type_identifier) @name) @symbol
			(type_alias_declaration name: (type_identifier) @name) @symbol
		`
	r.Register(&LanguageSpec{
		Name:       "typescript",
		Language:   typescript.GetLanguage(),
		Query:      tsQuery,
		Extensions: []string{"ts"},
	})
	r.Register(&LanguageSpec{
		Name:       "tsx",
		Language:   tsx.GetLanguage(),
		Query:      tsQuery,
		Extensions: []string{"tsx"},
	})
	return r
}

// Register adds spec under each of its extensions.
func (r *Registry) Register(spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the language spec for a file path based on its extension, or nil.
func (r *Registry) Lookup(p string) *LanguageSpec {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}
