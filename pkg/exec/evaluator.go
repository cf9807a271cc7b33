// Package exec evaluates short Go programs for the execute_script tool using the
// yaegi interpreter. Evaluation is in-process and best-effort: it is NOT a
// security boundary. Imports are restricted to a list of pure stdlib packages,
// but a timed-out program keeps running until it returns on its own.
package exec

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// EvaluatorType names an evaluator implementation.
type EvaluatorType string

// EvaluatorTypeYaegi is the embedded Go interpreter.
const EvaluatorTypeYaegi EvaluatorType = "yaegi"

// Defaults.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
)

// ErrForbiddenImport is returned when code imports a package outside the allow list.
var ErrForbiddenImport = errors.New("forbidden import")

// Evaluator runs source code and captures its output.
type Evaluator interface {
	// Run evaluates code. Compile and runtime errors are reported in Result.Err;
	// the returned error is reserved for rejected input.
	Run(ctx context.Context, code string, opts *Opts) (Result, error)

	// Name returns the evaluator type for logging.
	Name() EvaluatorType
}

// Opts contains options for a single evaluation.
type Opts struct {
	// Timeout bounds the evaluation. Zero uses DefaultTimeout.
	Timeout time.Duration

	// MaxOutputBytes caps captured stdout and stderr each. Zero uses DefaultMaxOutputBytes.
	MaxOutputBytes int
}

// Result is the outcome of an evaluation.
type Result struct {
	Stdout   string
	Stderr   string
	Value    string // formatted value of the final expression, if any
	Err      string // compile or runtime error text
	Duration time.Duration
	TimedOut bool
}

// Format renders the result as tool output text.
func (r *Result) Format() string {
	var sb strings.Builder
	if r.Stdout != "" {
		sb.WriteString(r.Stdout)
		if !strings.HasSuffix(r.Stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if r.Stderr != "" {
		sb.WriteString("[stderr]\n")
		sb.WriteString(r.Stderr)
		if !strings.HasSuffix(r.Stderr, "\n") {
			sb.WriteString("\n")
		}
	}
	if r.Value != "" {
		sb.WriteString("=> ")
		sb.WriteString(r.Value)
		sb.WriteString("\n")
	}
	switch {
	case r.TimedOut:
		sb.WriteString(fmt.Sprintf("[timed out after %s]\n", r.Duration.Round(time.Millisecond)))
	case r.Err != "":
		sb.WriteString("[error] ")
		sb.WriteString(r.Err)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "(no output)"
	}
	return strings.TrimRight(sb.String(), "\n")
}

// allowedPackages are stdlib packages without filesystem, network or process access.
//
//nolint:gochecknoglobals // static lookup table
var allowedPackages = map[string]bool{
	"bytes":           true,
	"container/heap":  true,
	"container/list":  true,
	"crypto/md5":      true,
	"crypto/sha1":     true,
	"crypto/sha256":   true,
	"encoding/base64": true,
	"encoding/csv":    true,
	"encoding/hex":    true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"math/big":        true,
	"math/bits":       true,
	"math/rand":       true,
	"path":            true,
	"regexp":          true,
	"slices":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"text/tabwriter":  true,
	"text/template":   true,
	"time":            true,
	"unicode":         true,
	"unicode/utf8":    true,
}

// AllowedPackages returns the importable packages, sorted.
func AllowedPackages() []string {
	out := make([]string, 0, len(allowedPackages))
	for pkg := range allowedPackages {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// YaegiEvaluator evaluates Go source with yaegi. Each run gets a fresh interpreter.
type YaegiEvaluator struct {
	defaults Opts
}

var _ Evaluator = (*YaegiEvaluator)(nil)

// NewYaegiEvaluator creates an evaluator with default options.
func NewYaegiEvaluator(defaults Opts) *YaegiEvaluator {
	return &YaegiEvaluator{defaults: defaults}
}

// Name implements Evaluator.
func (y *YaegiEvaluator) Name() EvaluatorType { return EvaluatorTypeYaegi }

// Run implements Evaluator. Code may be a complete file ("package main" with a
// main function, which is executed) or a bare statement list.
func (y *YaegiEvaluator) Run(ctx context.Context, code string, opts *Opts) (Result, error) {
	o := y.effective(opts)
	if strings.TrimSpace(code) == "" {
		return Result{}, errors.New("code is empty")
	}
	if err := ValidateImports(code); err != nil {
		return Result{}, err
	}

	stdout := &cappedBuffer{limit: o.MaxOutputBytes}
	stderr := &cappedBuffer{limit: o.MaxOutputBytes}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Result{}, fmt.Errorf("failed to load stdlib: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	start := time.Now()
	v, err := evalGuarded(runCtx, i, code)
	res := Result{Duration: time.Since(start)}

	switch {
	case err == nil:
		res.Value = formatValue(v)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case errors.Is(err, context.Canceled):
		res.Err = "cancelled"
	default:
		res.Err = err.Error()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, nil
}

func (y *YaegiEvaluator) effective(opts *Opts) Opts {
	o := y.defaults
	if opts != nil {
		if opts.Timeout > 0 {
			o.Timeout = opts.Timeout
		}
		if opts.MaxOutputBytes > 0 {
			o.MaxOutputBytes = opts.MaxOutputBytes
		}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return o
}

// evalGuarded turns interpreter panics into errors.
func evalGuarded(ctx context.Context, i *interp.Interpreter, code string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return i.EvalWithContext(ctx, code)
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	if v.Kind() == reflect.Func {
		return ""
	}
	return fmt.Sprintf("%v", v.Interface())
}

// ValidateImports rejects code importing packages outside the allow list.
// Code without a package clause is parsed as the body of package main.
func ValidateImports(code string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", code, parser.ImportsOnly)
	if err != nil {
		f, err = parser.ParseFile(fset, "", "package main\n"+code, parser.ImportsOnly)
		if err != nil {
			// Statement lists cannot be parsed as a file; fall back to scanning
			// import lines and let the interpreter report syntax errors.
			return checkImports(scanImports(code))
		}
	}

	paths := make([]string, 0, len(f.Imports))
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("invalid import %s: %w", spec.Path.Value, err)
		}
		paths = append(paths, p)
	}
	return checkImports(paths)
}

func checkImports(paths []string) error {
	var forbidden []string
	for _, p := range paths {
		if !allowedPackages[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %s (allowed: %s)", ErrForbiddenImport,
			strings.Join(forbidden, ", "), strings.Join(AllowedPackages(), ", "))
	}
	return nil
}

// scanImports extracts import paths line by line.
func scanImports(code string) []string {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if p := lastQuoted(trimmed); p != "" {
				imports = append(imports, p)
			}
		case strings.HasPrefix(trimmed, "import "):
			if p := lastQuoted(trimmed); p != "" {
				imports = append(imports, p)
			}
		}
	}
	return imports
}

func lastQuoted(s string) string {
	end := strings.LastIndexByte(s, '"')
	if end <= 0 {
		return ""
	}
	start := strings.LastIndexByte(s[:end], '"')
	if start < 0 {
		return ""
	}
	return s[start+1 : end]
}

// cappedBuffer is a goroutine-safe writer that keeps at most limit bytes.
// A timed-out program may keep writing after Run returns.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - len(c.buf)
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf = append(c.buf, p[:room]...)
		c.truncated = true
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return string(c.buf) + "\n[output truncated]"
	}
	return string(c.buf)
}
