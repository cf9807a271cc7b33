package tools

import (
	"errors"
	"fmt"

	"agentforge/pkg/utils"
)

// ErrUnknownTool is returned by ParseCall for names outside the tool set.
var ErrUnknownTool = errors.New("unknown tool")

// Call is one tool invocation requested by the model.
type Call struct {
	Args map[string]any `json:"args"`
	ID   string         `json:"id"`
	Name string         `json:"name"`
}

// Invocation is a parsed, typed tool call. The set of implementations is
// closed; Gateway.Execute dispatches on the concrete type.
type Invocation interface {
	ToolName() string
	invocation()
}

// ListFiles lists effective workspace paths.
type ListFiles struct {
	Prefix string
}

// ReadFile reads effective content with numbered lines.
type ReadFile struct {
	Path   string
	Offset int
	Limit  int
}

// WriteFile proposes new content for a whole file or a line range.
type WriteFile struct {
	Path      string
	Content   string
	StartLine int // 0 when replacing the whole file
	EndLine   int
}

// DeleteFile proposes deleting a file.
type DeleteFile struct {
	Path string
}

// SearchCode queries the retrieval index.
type SearchCode struct {
	Query string
	Limit int
}

// GetSymbols outlines a source file.
type GetSymbols struct {
	Path string
}

// GitDiff diffs effective content against the last commit.
type GitDiff struct {
	Path string
}

// LintFile lints effective content.
type LintFile struct {
	Path string
}

// ExecuteScript runs code in the script evaluator.
type ExecuteScript struct {
	Code           string
	TimeoutSeconds int
}

func (ListFiles) ToolName() string     { return ToolListFiles }
func (ReadFile) ToolName() string      { return ToolReadFile }
func (WriteFile) ToolName() string     { return ToolWriteFile }
func (DeleteFile) ToolName() string    { return ToolDeleteFile }
func (SearchCode) ToolName() string    { return ToolSearchCode }
func (GetSymbols) ToolName() string    { return ToolGetSymbols }
func (GitDiff) ToolName() string       { return ToolGitDiff }
func (LintFile) ToolName() string      { return ToolLintFile }
func (ExecuteScript) ToolName() string { return ToolExecuteScript }

func (ListFiles) invocation()     {}
func (ReadFile) invocation()      {}
func (WriteFile) invocation()     {}
func (DeleteFile) invocation()    {}
func (SearchCode) invocation()    {}
func (GetSymbols) invocation()    {}
func (GitDiff) invocation()       {}
func (LintFile) invocation()      {}
func (ExecuteScript) invocation() {}

// ParseCall validates args against the named tool's schema and returns the
// typed invocation. Errors describe the problem for the model.
func ParseCall(name string, args map[string]any) (Invocation, error) {
	if args == nil {
		args = map[string]any{}
	}
	switch name {
	case ToolListFiles:
		prefix, err := optionalString(args, "prefix")
		return ListFiles{Prefix: prefix}, err

	case ToolReadFile:
		path, err := requiredString(args, "path")
		if err != nil {
			return nil, err
		}
		offset, err := intArgOrDefault(args, "offset", defaultStartOffset)
		if err != nil {
			return nil, err
		}
		limit, err := intArgOrDefault(args, "limit", defaultReadLines)
		if err != nil {
			return nil, err
		}
		return ReadFile{Path: path, Offset: offset, Limit: limit}, nil

	case ToolWriteFile:
		return parseWrite(args)

	case ToolDeleteFile:
		path, err := requiredString(args, "path")
		return DeleteFile{Path: path}, err

	case ToolSearchCode:
		query, err := requiredString(args, "query")
		if err != nil {
			return nil, err
		}
		limit, err := intArgOrDefault(args, "limit", defaultSearchLimit)
		if err != nil {
			return nil, err
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		return SearchCode{Query: query, Limit: limit}, nil

	case ToolGetSymbols:
		path, err := requiredString(args, "path")
		return GetSymbols{Path: path}, err

	case ToolGitDiff:
		path, err := requiredString(args, "path")
		return GitDiff{Path: path}, err

	case ToolLintFile:
		path, err := requiredString(args, "path")
		return LintFile{Path: path}, err

	case ToolExecuteScript:
		code, err := requiredString(args, "code")
		if err != nil {
			return nil, err
		}
		timeout, err := intArgOrDefault(args, "timeout_seconds", 0)
		if err != nil {
			return nil, err
		}
		if timeout > maxScriptTimeout {
			timeout = maxScriptTimeout
		}
		return ExecuteScript{Code: code, TimeoutSeconds: timeout}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

func parseWrite(args map[string]any) (Invocation, error) {
	path, err := requiredString(args, "path")
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required and must be a string")
	}
	start, err := intArgOrDefault(args, "start_line", 0)
	if err != nil {
		return nil, err
	}
	end, err := intArgOrDefault(args, "end_line", 0)
	if err != nil {
		return nil, err
	}
	if (start == 0) != (end == 0) {
		return nil, fmt.Errorf("start_line and end_line must be given together")
	}
	if start > end {
		return nil, fmt.Errorf("start_line %d is after end_line %d", start, end)
	}
	return WriteFile{Path: path, Content: content, StartLine: start, EndLine: end}, nil
}

func requiredString(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s is required and must be a string", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) (string, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// intArgOrDefault extracts a positive integer argument, returning defaultVal
// when it is missing. Non-integral or non-positive values are rejected.
func intArgOrDefault(args map[string]any, key string, defaultVal int) (int, error) {
	n, ok, err := utils.GetIntField(args, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultVal, nil
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
