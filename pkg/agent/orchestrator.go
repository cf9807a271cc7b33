package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentforge/pkg/config"
	execpkg "agentforge/pkg/exec"
	"agentforge/pkg/lint"
	"agentforge/pkg/llm"
	llmmetrics "agentforge/pkg/llm/middleware/metrics"
	"agentforge/pkg/logx"
	"agentforge/pkg/metrics"
	"agentforge/pkg/patch"
	"agentforge/pkg/persistence"
	"agentforge/pkg/plan"
	"agentforge/pkg/preflight"
	"agentforge/pkg/retrieval"
	"agentforge/pkg/templates"
	"agentforge/pkg/tools"
	"agentforge/pkg/utils"
	"agentforge/pkg/vcs"
	"agentforge/pkg/workspace"
)

// SessionLog persists a session's status enum, plan and step log.
type SessionLog interface {
	CreateSession(ctx context.Context, sessionID, goal, status string) error
	UpdateStatus(ctx context.Context, sessionID, status, reason string) error
	SavePlan(ctx context.Context, sessionID string, steps []plan.Step) error
	SaveUsage(ctx context.Context, sessionID string, promptTokens, completionTokens int) error
	AppendStep(ctx context.Context, sessionID string, step persistence.Step) (int, error)
}

var _ SessionLog = (*persistence.Store)(nil)

// ClientFactory builds the session's LLM client. labels identify the session
// and its current state to metrics middleware.
type ClientFactory func(labels llmmetrics.LabelProvider) (llm.Client, error)

// Options configures an Orchestrator. Base and one of Client or NewClient are required.
//
//nolint:govet // fieldalignment: grouped by concern
type Options struct {
	SessionID string         // generated when empty
	Config    *config.Config // defaults when nil

	Client    llm.Client
	NewClient ClientFactory

	Base      workspace.Store
	Index     *retrieval.Service // a private index over Base is built when nil
	Repo      vcs.Repository
	Linter    lint.Linter
	Evaluator execpkg.Evaluator
	Validator *preflight.Validator

	Log     SessionLog
	Metrics *metrics.Collector

	OnTransition func(StateTransition)
	OnStep       func(AgentStep)
}

// Orchestrator owns one session: its conversation, patch ledger, plan and status.
type Orchestrator struct {
	id       string
	cfg      *config.Config
	conv     *llm.Session
	ledger   *patch.Ledger
	overlay  *workspace.Overlay
	gateway  *tools.Gateway
	index    *retrieval.Service
	ownIndex bool
	context  *retrieval.ContextBuilder
	validate *preflight.Validator
	renderer *templates.Renderer
	log      SessionLog
	metrics  *metrics.Collector
	table    TransitionTable
	logger   *logx.Logger

	onTransition func(StateTransition)
	onStep       func(AgentStep)

	mu            sync.Mutex
	status        Status
	goal          string
	failureReason string
	steps         []AgentStep
	transitions   []StateTransition
	sched         *plan.Scheduler
	files         map[string]struct{}
	usage         llm.Usage
	dangling      []llm.ToolCall // tool calls of the last reply not yet answered
	runID         uint64
	cancel        context.CancelFunc
	done          chan struct{}

	bg sync.WaitGroup // background pre-flight runs
}

// events collects notifications produced under the lock and delivered after it is released.
type events struct {
	steps       []AgentStep
	transitions []StateTransition
}

// New creates an idle orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Base == nil {
		return nil, errors.New("orchestrator requires a workspace store")
	}
	if opts.Client == nil && opts.NewClient == nil {
		return nil, errors.New("orchestrator requires an LLM client")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	o := &Orchestrator{
		id:           id,
		cfg:          cfg,
		log:          opts.Log,
		metrics:      opts.Metrics,
		table:        ValidTransitions,
		logger:       logx.NewLogger(id),
		onTransition: opts.OnTransition,
		onStep:       opts.OnStep,
		status:       StatusIdle,
		files:        make(map[string]struct{}),
	}

	o.ledger = patch.NewLedger(opts.Base)
	o.overlay = workspace.NewOverlay(opts.Base, o.ledger)

	o.index = opts.Index
	if o.index == nil {
		ropts := retrieval.Options{
			WindowLines: cfg.Retrieval.ChunkLines,
			StrideLines: cfg.Retrieval.ChunkStride,
			MinScore:    cfg.Retrieval.MinScore,
			Debounce:    cfg.Retrieval.RebuildDebounce,
		}
		if o.metrics != nil {
			ropts.OnRebuild = o.metrics.ObserveRebuild
		}
		o.index = retrieval.NewService(ropts)
		o.ownIndex = true
		o.index.Reindex(o.overlay.IndexFiles())
	}
	counter, err := utils.NewTokenCounter(cfg.LLM.Model)
	if err != nil {
		o.logger.Debug("Token counter unavailable, estimating from characters: %v", err)
	}
	o.context = retrieval.NewContextBuilder(o.index, counter, cfg.Retrieval.SearchLimit)

	o.validate = opts.Validator
	if o.validate == nil {
		popts := preflight.Options{Linter: opts.Linter, SecretScan: cfg.Preflight.SecretScan}
		if o.metrics != nil {
			popts.OnComplete = func(r preflight.Result) { o.metrics.ObservePreflight(r.HasErrors) }
		}
		o.validate = preflight.New(popts)
	}

	evaluator := opts.Evaluator
	if evaluator == nil && cfg.Execute.Enabled {
		evaluator = execpkg.NewYaegiEvaluator(execpkg.Opts{Timeout: cfg.Execute.Timeout})
	}
	gcfg := &tools.Config{
		Overlay:   o.overlay,
		Ledger:    o.ledger,
		Index:     o.index,
		Repo:      opts.Repo,
		Linter:    opts.Linter,
		Evaluator: evaluator,
		Logger:    o.logger,
	}
	if o.metrics != nil {
		gcfg.Observe = o.metrics.ObserveTool
	}
	if o.gateway, err = tools.New(gcfg); err != nil {
		return nil, fmt.Errorf("failed to create tool gateway: %w", err)
	}

	o.ledger.OnResolve(func(p patch.Patch) {
		o.validate.Forget(p.FileID)
		o.index.ScheduleFunc(o.overlay.IndexFiles)
	})

	if o.renderer, err = templates.NewRenderer(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	defs := o.toolDefinitions()
	configDir := ""
	if cfg.ProjectDir != "" {
		configDir = filepath.Join(cfg.ProjectDir, config.ProjectConfigDir)
	}
	system, err := o.renderer.RenderWithUserInstructions(templates.SystemTemplate,
		&templates.TemplateData{ToolDocumentation: tools.GenerateToolDocumentation(defs)}, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	client := opts.Client
	if client == nil {
		if client, err = opts.NewClient(o); err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	}
	o.conv = llm.NewSession(client, llm.SessionOptions{
		System:      system,
		Tools:       defs,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Logger:      o.logger,
	})

	return o, nil
}

// toolDefinitions returns the tools offered to the model.
func (o *Orchestrator) toolDefinitions() []tools.ToolDefinition {
	all := o.gateway.Definitions()
	if o.cfg.Execute.Enabled {
		return all
	}
	defs := make([]tools.ToolDefinition, 0, len(all))
	for i := range all {
		if all[i].Name != tools.ToolExecuteScript {
			defs = append(defs, all[i])
		}
	}
	return defs
}

// GetSessionID returns the session ID.
func (o *Orchestrator) GetSessionID() string {
	return o.id
}

// GetCurrentState returns the current status as a string.
func (o *Orchestrator) GetCurrentState() string {
	return string(o.Status())
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Overlay returns the session's effective view of the workspace.
func (o *Orchestrator) Overlay() *workspace.Overlay {
	return o.overlay
}

// Start runs goal on an idle session. The run proceeds in the background;
// use Wait to block until it comes to rest.
func (o *Orchestrator) Start(ctx context.Context, goal string) error {
	return o.begin(ctx, goal, false)
}

// Instruct starts a new planning round with text on a session at rest. The
// conversation and pending patches carry over.
func (o *Orchestrator) Instruct(ctx context.Context, text string) error {
	return o.begin(ctx, text, true)
}

func (o *Orchestrator) begin(ctx context.Context, goal string, instruct bool) error {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return errors.New("goal must not be empty")
	}

	var ev events
	o.mu.Lock()
	if o.status.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	if !instruct && o.status != StatusIdle {
		o.mu.Unlock()
		return fmt.Errorf("%w: session is %s; use Instruct", ErrInvalidTransition, o.status)
	}

	o.goal = goal
	o.failureReason = ""
	if o.log != nil {
		if err := o.log.CreateSession(context.Background(), o.id, goal, string(o.status)); err != nil {
			o.logger.Warn("Failed to persist session: %v", err)
		}
	}
	if err := o.transitionLocked(&ev, StatusPlanning, map[string]any{"goal": goal}); err != nil {
		o.mu.Unlock()
		return err
	}
	o.appendStepLocked(&ev, AgentStep{Kind: StepUser, Content: goal})

	o.runID++
	runID := o.runID
	runCtx, cancel := context.WithCancel(ctx)
	prev := o.done
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()
	o.emit(ev)

	go o.run(runCtx, runID, prev, done)
	return nil
}

// Stop cancels the active run. In-flight requests are aborted and any reply
// that still arrives is discarded. Stop on a session at rest does nothing.
func (o *Orchestrator) Stop() {
	var ev events
	o.mu.Lock()
	if !o.status.Active() {
		o.mu.Unlock()
		return
	}
	o.conv.Cancel()
	if o.cancel != nil {
		o.cancel()
	}
	o.runID++
	o.failureReason = "stopped by user"
	if err := o.transitionLocked(&ev, StatusStopped, nil); err != nil {
		o.logger.Error("Stop: %v", err)
	}
	o.appendStepLocked(&ev, AgentStep{Kind: StepError, Content: "Stopped by user"})
	o.mu.Unlock()
	o.emit(ev)
}

// Wait blocks until the latest run has finished and returns a snapshot.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return Snapshot{}, ErrNotRunning
	}
	select {
	case <-done:
		return o.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("wait for session: %w", ctx.Err())
	}
}

// Run starts goal and waits for the run to finish.
func (o *Orchestrator) Run(ctx context.Context, goal string) (Snapshot, error) {
	if err := o.Start(ctx, goal); err != nil {
		return Snapshot{}, err
	}
	return o.Wait(ctx)
}

// Close stops any active run, waits for background work and releases the
// session's private index.
func (o *Orchestrator) Close() {
	o.Stop()
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
	o.bg.Wait()
	if o.ownIndex {
		o.index.Close()
	}
}

// Accept commits the pending patch id.
func (o *Orchestrator) Accept(id string) (patch.Patch, error) {
	return o.review(func() ([]patch.Patch, error) {
		p, err := o.ledger.Accept(id)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{p}, nil
	}, "Accepted")
}

// Reject discards the pending patch id.
func (o *Orchestrator) Reject(id string) (patch.Patch, error) {
	return o.review(func() ([]patch.Patch, error) {
		p, err := o.ledger.Reject(id)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{p}, nil
	}, "Rejected")
}

// AcceptAll commits every pending patch.
func (o *Orchestrator) AcceptAll() ([]patch.Patch, error) {
	var out []patch.Patch
	_, err := o.review(func() ([]patch.Patch, error) {
		var err error
		out, err = o.ledger.AcceptAll()
		return out, err
	}, "Accepted")
	return out, err
}

// RejectAll discards every pending patch.
func (o *Orchestrator) RejectAll() ([]patch.Patch, error) {
	var out []patch.Patch
	_, err := o.review(func() ([]patch.Patch, error) {
		out = o.ledger.RejectAll()
		return out, nil
	}, "Rejected")
	return out, err
}

// review applies a ledger decision while the session is at rest. A session
// awaiting review completes once no patch is left.
func (o *Orchestrator) review(apply func() ([]patch.Patch, error), verb string) (patch.Patch, error) {
	var ev events
	o.mu.Lock()
	if o.status.Active() {
		o.mu.Unlock()
		return patch.Patch{}, ErrBusy
	}

	resolved, err := apply()
	for i := range resolved {
		o.appendStepLocked(&ev, AgentStep{Kind: StepUser, Content: fmt.Sprintf("%s change to %s", verb, resolved[i].FileID)})
	}
	if o.status == StatusAwaitingReview && o.ledger.Len() == 0 {
		if terr := o.transitionLocked(&ev, StatusCompleted, map[string]any{"reason": "review finished"}); terr != nil {
			o.logger.Error("Review: %v", terr)
		}
	}
	o.mu.Unlock()
	o.emit(ev)

	if err != nil {
		return patch.Patch{}, fmt.Errorf("review: %w", err)
	}
	if len(resolved) == 0 {
		return patch.Patch{}, nil
	}
	return resolved[0], nil
}

// PreFlight validates the effective content of path and returns the final result.
func (o *Orchestrator) PreFlight(ctx context.Context, path string) (preflight.Result, error) {
	cleaned, err := workspace.CleanPath(path)
	if err != nil {
		return preflight.Result{}, err
	}
	content, err := o.overlay.Read(cleaned)
	if err != nil {
		return preflight.Result{}, fmt.Errorf("pre-flight %s: %w", cleaned, err)
	}
	return o.validate.Validate(ctx, cleaned, content), nil
}

// LatestPreFlight returns the most recent pre-flight result for path.
func (o *Orchestrator) LatestPreFlight(path string) (preflight.Result, bool) {
	return o.validate.Latest(path)
}

// Snapshot returns a consistent copy of the session state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		SessionID:     o.id,
		Goal:          o.goal,
		Status:        o.status,
		FailureReason: o.failureReason,
		Steps:         append([]AgentStep(nil), o.steps...),
		Transitions:   append([]StateTransition(nil), o.transitions...),
		Patches:       o.ledger.Pending(),
		Usage:         o.usage,
	}
	if o.sched != nil {
		snap.Plan = o.sched.Steps()
	}
	for f := range o.files {
		snap.Files = append(snap.Files, f)
	}
	sort.Strings(snap.Files)
	return snap
}

// Restore loads a persisted session into an idle orchestrator. A session that
// was interrupted mid-run is restored as failed. The conversation itself is
// not persisted; the next instruction starts a fresh one.
func (o *Orchestrator) Restore(sess *persistence.Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusIdle {
		return fmt.Errorf("%w: restore requires an idle session", ErrInvalidTransition)
	}

	o.goal = sess.Goal
	o.failureReason = sess.FailureReason
	o.status = Status(sess.Status)
	if o.status.Active() || o.status == StatusIdle {
		o.status = StatusFailed
		if o.failureReason == "" {
			o.failureReason = "interrupted"
		}
	}
	if o.status == StatusAwaitingReview {
		// pending patches were not persisted
		o.status = StatusCompleted
	}
	o.sched = plan.Restore(sess.Plan)
	o.usage = llm.Usage{InputTokens: sess.PromptTokens, OutputTokens: sess.CompletionTokens}
	o.steps = o.steps[:0]
	for _, s := range sess.Steps {
		o.steps = append(o.steps, AgentStep{
			Kind:       StepKind(s.Kind),
			Content:    s.Content,
			PlanStepID: s.PlanStepID,
			Tool:       s.Tool,
			Failed:     StepKind(s.Kind) == StepResult && strings.HasPrefix(s.Content, "Error: "),
			Timestamp:  s.CreatedAt,
		})
	}
	o.logger.Info("Restored session %s (%s, %d steps)", o.id, o.status, len(o.steps))
	return nil
}

// transitionLocked moves to newState and records the transition.
func (o *Orchestrator) transitionLocked(ev *events, newState Status, metadata map[string]any) error {
	oldState := o.status
	if !o.table.IsValidTransition(oldState, newState) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, oldState, newState)
	}

	transition := StateTransition{
		FromState: oldState,
		ToState:   newState,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	o.transitions = append(o.transitions, transition)
	o.status = newState
	o.logger.Info("🔄 State machine transition: %s → %s", oldState, newState)

	if o.log != nil {
		ctx := context.Background()
		if err := o.log.UpdateStatus(ctx, o.id, string(newState), o.failureReason); err != nil {
			o.logger.Warn("Failed to persist status %s: %v", newState, err)
		}
		if newState.Terminal() {
			if err := o.log.SaveUsage(ctx, o.id, o.usage.InputTokens, o.usage.OutputTokens); err != nil {
				o.logger.Warn("Failed to persist usage: %v", err)
			}
		}
	}
	if o.metrics != nil && newState.Terminal() {
		o.metrics.ObserveSession(string(newState))
	}

	ev.transitions = append(ev.transitions, transition)
	return nil
}

// appendStepLocked adds step to the log and persists it.
func (o *Orchestrator) appendStepLocked(ev *events, step AgentStep) {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	o.steps = append(o.steps, step)
	if o.log != nil {
		_, err := o.log.AppendStep(context.Background(), o.id, persistence.Step{
			Kind:       string(step.Kind),
			PlanStepID: step.PlanStepID,
			Tool:       step.Tool,
			Content:    step.Content,
			CreatedAt:  step.Timestamp,
		})
		if err != nil {
			o.logger.Warn("Failed to persist step: %v", err)
		}
	}
	ev.steps = append(ev.steps, step)
}

// emit delivers notifications collected under the lock.
func (o *Orchestrator) emit(ev events) {
	if o.onTransition != nil {
		for _, t := range ev.transitions {
			o.onTransition(t)
		}
	}
	if o.onStep != nil {
		for _, s := range ev.steps {
			o.onStep(s)
		}
	}
}
