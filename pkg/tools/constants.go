package tools

// Tool name constants - use these instead of magic strings to prevent typos
// and enable compile-time checking.
const (
	// Filesystem tools.
	ToolListFiles  = "fs_listFiles"
	ToolReadFile   = "fs_readFile"
	ToolWriteFile  = "fs_writeFile"
	ToolDeleteFile = "fs_deleteFile"

	// Introspection tools.
	ToolSearchCode = "search_code"
	ToolGetSymbols = "get_symbols"
	ToolGitDiff    = "git_diff"
	ToolLintFile   = "lint_file"

	// Execution tools.
	ToolExecuteScript = "execute_script"
)

// Limits applied to tool output.
const (
	defaultReadLines   = 2000 // Default number of lines to read
	maxLineLength      = 2000 // Truncate lines longer than this
	defaultStartOffset = 1    // 1-based line numbering
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	maxListResults     = 1000
	maxScriptTimeout   = 60 // seconds
)

// AllTools lists every tool in the order they are offered to the model.
//
//nolint:gochecknoglobals // These are constants that need to be globally accessible
var AllTools = []string{
	ToolListFiles,
	ToolReadFile,
	ToolWriteFile,
	ToolDeleteFile,
	ToolSearchCode,
	ToolGetSymbols,
	ToolGitDiff,
	ToolLintFile,
	ToolExecuteScript,
}
