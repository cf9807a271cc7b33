package preflight

import (
	"fmt"
	"strings"

	"agentforge/pkg/lint"
)

// conflictMarkers open a line left behind by an unresolved merge.
//
//nolint:gochecknoglobals // static lookup table
var conflictMarkers = []string{"<<<<<<< ", "<<<<<<<\t", ">>>>>>> ", ">>>>>>>\t", "|||||||"}

// simulateBuild returns human-readable problems that would stop a build.
func simulateBuild(content, language string) []string {
	var problems []string

	for i, line := range strings.Split(content, "\n") {
		if isConflictMarker(line) {
			problems = append(problems, fmt.Sprintf("merge conflict marker at line %d", i+1))
		}
	}

	if bracketLanguage(language) {
		if msg := checkBrackets(content, language); msg != "" {
			problems = append(problems, msg)
		}
	}
	return problems
}

func isConflictMarker(line string) bool {
	if line == "<<<<<<<" || line == ">>>>>>>" || line == "=======" {
		return true
	}
	for _, m := range conflictMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

func bracketLanguage(language string) bool {
	switch language {
	case lint.LangGo, lint.LangJavaScript, lint.LangTypeScript, lint.LangJSON, lint.LangPython:
		return true
	}
	return false
}

//nolint:gochecknoglobals // static lookup table
var closers = map[rune]rune{')': '(', ']': '[', '}': '{'}

// checkBrackets matches (), [] and {} outside string literals and comments.
// Returns "" when balanced.
func checkBrackets(content, language string) string {
	type open struct {
		r    rune
		line int
	}
	var stack []open

	hashComments := language == lint.LangPython
	slashComments := language != lint.LangPython && language != lint.LangJSON

	line := 1
	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\n':
			line++

		case hashComments && r == '#', slashComments && r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i-- // let the newline be counted

		case slashComments && r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i++

		case hashComments && (r == '"' || r == '\'') && tripleQuote(runes, i, r):
			i += 3
			for i < len(runes) && !tripleQuote(runes, i, r) {
				switch runes[i] {
				case '\\':
					if i+1 < len(runes) && runes[i+1] == '\n' {
						line++
					}
					i++
				case '\n':
					line++
				}
				i++
			}
			i += 2

		case r == '"' || r == '\'' || r == '`':
			quote := r
			i++
			for i < len(runes) && runes[i] != quote {
				if runes[i] == '\\' && quote != '`' {
					i++
				} else if runes[i] == '\n' {
					line++
					if quote != '`' {
						break // unterminated single-line literal
					}
				}
				i++
			}

		case r == '(' || r == '[' || r == '{':
			stack = append(stack, open{r: r, line: line})

		case r == ')' || r == ']' || r == '}':
			if len(stack) == 0 {
				return fmt.Sprintf("unexpected %q at line %d", r, line)
			}
			top := stack[len(stack)-1]
			if top.r != closers[r] {
				return fmt.Sprintf("mismatched %q at line %d closes %q opened at line %d", r, line, top.r, top.line)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Sprintf("unclosed %q opened at line %d", top.r, top.line)
	}
	return ""
}

// tripleQuote reports whether runes[i:] starts with three q quotes.
func tripleQuote(runes []rune, i int, q rune) bool {
	return i+2 < len(runes) && runes[i] == q && runes[i+1] == q && runes[i+2] == q
}
