// Package retrieval implements the semantic code-retrieval engine: line-window chunking,
// a TF-IDF index over chunks and cosine-similarity search.
package retrieval

import (
	"strings"
	"unicode"
)

// stopWords holds natural-language filler plus common code keywords so that
// ranking is driven by identifiers rather than syntax.
//
//nolint:gochecknoglobals // static lookup table
var stopWords = buildStopWords(
	// English
	"the", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
	"from", "as", "is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
	"do", "does", "did", "will", "would", "should", "could", "may", "might", "must", "can",
	"this", "that", "these", "those", "it", "its", "we", "you", "they", "he", "she", "what",
	"which", "who", "when", "where", "why", "how", "not", "no", "so", "if", "then", "than",
	"there", "here", "all", "any", "some", "each", "into", "out", "up", "down", "about",
	// code keywords
	"func", "function", "return", "var", "let", "const", "type", "struct", "interface",
	"class", "def", "import", "from", "package", "export", "default", "public", "private",
	"protected", "static", "void", "int", "string", "bool", "true", "false", "null", "nil",
	"none", "new", "else", "elif", "for", "while", "switch", "case", "break", "continue",
	"try", "catch", "finally", "throw", "throws", "async", "await", "self", "end",
	"range", "map", "go", "defer", "err",
)

func buildStopWords(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether token is filtered out of the index.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Tokenize lower-cases text, splits it on runs of non-alphanumeric characters and
// drops single-character tokens and stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
