// Package preflight validates proposed file content before a human reviews it.
// Validation is advisory: it never blocks a proposal, and its results are data.
//
// A run has three ordered phases. Each phase short-circuits the ones after it:
//
//  1. syntax: diagnostics from the lint collaborator; any error fails the phase.
//  2. build:  merge-conflict markers and unbalanced brackets.
//  3. secrets: a gitleaks scan of the content.
package preflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"

	"agentforge/pkg/lint"
	"agentforge/pkg/logx"
)

// CheckStatus is the state of one check within a run.
type CheckStatus string

const (
	StatusPending CheckStatus = "pending"
	StatusRunning CheckStatus = "running"
	StatusSuccess CheckStatus = "success"
	StatusFailure CheckStatus = "failure"
	StatusSkipped CheckStatus = "skipped"
)

// Check IDs in execution order.
const (
	CheckSyntax  = "syntax"
	CheckBuild   = "build"
	CheckSecrets = "secrets"
)

// Check is one phase of a run.
type Check struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// SecretFinding locates a detected secret. The secret itself is never stored.
type SecretFinding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	StartColumn int    `json:"start_column"`
	EndColumn   int    `json:"end_column"`
}

// Result is a snapshot of a run. A new run for the same path replaces it wholesale.
type Result struct {
	Path        string            `json:"path"`
	Checks      []Check           `json:"checks"`
	HasErrors   bool              `json:"has_errors"`
	Diagnostics []lint.Diagnostic `json:"diagnostics,omitempty"`
	Secrets     []SecretFinding   `json:"secrets,omitempty"`
	Done        bool              `json:"done"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at,omitempty"`
}

// Check returns the check with id.
func (r *Result) Check(id string) (Check, bool) {
	for _, c := range r.Checks {
		if c.ID == id {
			return c, true
		}
	}
	return Check{}, false
}

func (r *Result) clone() Result {
	out := *r
	out.Checks = append([]Check(nil), r.Checks...)
	out.Diagnostics = append([]lint.Diagnostic(nil), r.Diagnostics...)
	out.Secrets = append([]SecretFinding(nil), r.Secrets...)
	return out
}

// Options configures a Validator.
type Options struct {
	Linter     lint.Linter
	SecretScan bool
	// OnComplete observes finished runs.
	OnComplete func(Result)
}

// Validator runs pre-flight checks and remembers the latest result per path.
type Validator struct {
	linter     lint.Linter
	secretScan bool
	onComplete func(Result)
	logger     *logx.Logger

	detectorOnce sync.Once
	detectorMu   sync.Mutex
	detector     *detect.Detector
	detectorErr  error

	mu     sync.RWMutex
	latest map[string]Result
	runs   map[string]uint64
	seq    uint64
}

// New creates a Validator. A nil Linter uses lint.Default().
func New(opts Options) *Validator {
	if opts.Linter == nil {
		opts.Linter = lint.Default()
	}
	return &Validator{
		linter:     opts.Linter,
		secretScan: opts.SecretScan,
		onComplete: opts.OnComplete,
		logger:     logx.NewLogger("preflight"),
		latest:     make(map[string]Result),
		runs:       make(map[string]uint64),
	}
}

// Validate runs all phases and returns the final result.
func (v *Validator) Validate(ctx context.Context, path, content string) Result {
	var last Result
	for snap := range v.Start(ctx, path, content) {
		last = snap
	}
	return last
}

// Start runs the phases in a new goroutine and streams a snapshot after every
// check transition. The channel is closed after the final snapshot. Starting a
// new run for the same path supersedes the previous one: Latest only ever
// reflects the newest run.
func (v *Validator) Start(ctx context.Context, path, content string) <-chan Result {
	v.mu.Lock()
	v.seq++
	gen := v.seq
	v.runs[path] = gen
	v.mu.Unlock()

	// initial + 2 transitions per check + final
	out := make(chan Result, 2+2*3)
	go v.run(ctx, gen, path, content, out)
	return out
}

// Latest returns the most recent snapshot for path.
func (v *Validator) Latest(path string) (Result, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.latest[path]
	if !ok {
		return Result{}, false
	}
	return r.clone(), true
}

// Forget drops the stored result for path.
func (v *Validator) Forget(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.latest, path)
	delete(v.runs, path)
}

func (v *Validator) run(ctx context.Context, gen uint64, path, content string, out chan<- Result) {
	defer close(out)

	res := &Result{
		Path: path,
		Checks: []Check{
			{ID: CheckSyntax, Name: "Syntax & lint", Status: StatusPending},
			{ID: CheckBuild, Name: "Build simulation", Status: StatusPending},
			{ID: CheckSecrets, Name: "Secret scan", Status: StatusPending},
		},
		StartedAt: time.Now(),
	}
	publish := func() {
		snap := res.clone()
		v.store(gen, snap)
		out <- snap
	}
	publish()

	phases := []func(*Result, string) (CheckStatus, string){
		v.syntaxPhase,
		v.buildPhase,
		v.secretPhase,
	}

	failed := false
	for i, phase := range phases {
		check := &res.Checks[i]
		switch {
		case failed:
			check.Status = StatusSkipped
			check.Message = "skipped after earlier failure"
			publish()
			continue
		case ctx.Err() != nil:
			check.Status = StatusSkipped
			check.Message = "cancelled"
			publish()
			continue
		}

		check.Status = StatusRunning
		publish()

		check.Status, check.Message = phase(res, content)
		if check.Status == StatusFailure {
			failed = true
			res.HasErrors = true
		}
		publish()
	}

	res.Done = true
	res.FinishedAt = time.Now()
	final := res.clone()
	v.store(gen, final)
	out <- final

	v.logger.Debug("Pre-flight %s: errors=%v in %s", path, res.HasErrors, res.FinishedAt.Sub(res.StartedAt))
	if v.onComplete != nil && v.current(path, gen) {
		v.onComplete(final)
	}
}

// store records snap unless a newer run for the same path has started.
func (v *Validator) store(gen uint64, snap Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.runs[snap.Path] != gen {
		return
	}
	v.latest[snap.Path] = snap
}

func (v *Validator) current(path string, gen uint64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.runs[path] == gen
}

func (v *Validator) syntaxPhase(res *Result, content string) (CheckStatus, string) {
	language := lint.LanguageForPath(res.Path)
	res.Diagnostics = v.linter.Lint(content, language)

	errs := 0
	for i := range res.Diagnostics {
		if res.Diagnostics[i].Severity == lint.SeverityError {
			errs++
		}
	}
	if errs > 0 {
		d := res.Diagnostics[0]
		return StatusFailure, fmt.Sprintf("%d error(s); first at line %d: %s", errs, d.StartLine, d.Message)
	}
	if n := len(res.Diagnostics); n > 0 {
		return StatusSuccess, fmt.Sprintf("no errors, %d warning(s)", n)
	}
	return StatusSuccess, fmt.Sprintf("no problems (%s)", language)
}

func (v *Validator) buildPhase(res *Result, content string) (CheckStatus, string) {
	if problems := simulateBuild(content, lint.LanguageForPath(res.Path)); len(problems) > 0 {
		return StatusFailure, problems[0]
	}
	return StatusSuccess, "no conflict markers or unbalanced brackets"
}

func (v *Validator) secretPhase(res *Result, content string) (CheckStatus, string) {
	if !v.secretScan {
		return StatusSkipped, "secret scanning disabled"
	}
	findings, err := v.scanSecrets(content)
	if err != nil {
		v.logger.Warn("Secret scanner unavailable: %v", err)
		return StatusSkipped, fmt.Sprintf("secret scanner unavailable: %v", err)
	}
	res.Secrets = findings
	if len(findings) > 0 {
		f := findings[0]
		return StatusFailure, fmt.Sprintf("%d potential secret(s); first: %s at line %d", len(findings), f.RuleID, f.Line)
	}
	return StatusSuccess, "no secrets detected"
}

// scanSecrets runs gitleaks' default rule set over content.
func (v *Validator) scanSecrets(content string) ([]SecretFinding, error) {
	v.detectorOnce.Do(func() {
		v.detector, v.detectorErr = detect.NewDetectorDefaultConfig()
	})
	if v.detectorErr != nil {
		return nil, v.detectorErr
	}

	v.detectorMu.Lock()
	found := v.detector.DetectString(content)
	v.detectorMu.Unlock()

	out := make([]SecretFinding, 0, len(found))
	for i := range found {
		f := &found[i]
		out = append(out, SecretFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			StartColumn: f.StartColumn,
			EndColumn:   f.EndColumn,
		})
	}
	return out, nil
}
