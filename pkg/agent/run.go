package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentforge/pkg/config"
	"agentforge/pkg/llm"
	"agentforge/pkg/logx"
	"agentforge/pkg/patch"
	"agentforge/pkg/plan"
	"agentforge/pkg/templates"
	"agentforge/pkg/tools"
)

// maxPlanningFiles bounds the file list shown to the planner.
const maxPlanningFiles = 200

// errStaleRun is returned when a run was stopped or superseded; the run
// goroutine exits without touching session state.
var errStaleRun = errors.New("run superseded")

// run drives one goal from planning to rest. It is the only goroutine that
// advances the plan.
func (o *Orchestrator) run(ctx context.Context, runID uint64, prev, done chan struct{}) {
	defer close(done)
	defer o.releaseRun(runID)
	ctx = context.WithValue(ctx, logx.SessionIDKey, o.id)

	if prev != nil {
		<-prev
	}

	steps, err := o.planGoal(ctx, runID)
	if err != nil {
		o.abort(ctx, runID, err)
		return
	}
	sched := plan.NewScheduler(steps)
	if err := o.setPlan(runID, sched); err != nil {
		return
	}

	for number := 1; ; number++ {
		step, ok, err := sched.Next()
		if err != nil {
			o.fail(runID, fmt.Sprintf("deadlock: %v", err))
			return
		}
		if !ok {
			break
		}
		logx.Debug(ctx, "agent", "Step %s activated (%d of %d)", step.ID, number, sched.Len())
		o.savePlan(runID, sched)
		if err := o.advance(runID, StatusThinking, map[string]any{"step": step.ID}); err != nil {
			return
		}

		if err := o.runStep(ctx, runID, sched, step, number); err != nil {
			o.failStep(ctx, runID, sched, step.ID)
			o.abort(ctx, runID, fmt.Errorf("step %s (%s): %w", step.ID, step.Title, err))
			return
		}
		if err := sched.Complete(step.ID); err != nil {
			o.abort(ctx, runID, err)
			return
		}
		o.savePlan(runID, sched)
	}

	o.summarize(ctx, runID, sched)
}

// planGoal asks the model for a plan. A reply that does not parse yields an
// empty plan.
func (o *Orchestrator) planGoal(ctx context.Context, runID uint64) ([]plan.Step, error) {
	o.mu.Lock()
	goal := o.goal
	o.mu.Unlock()

	data := &templates.TemplateData{
		Goal:    goal,
		Context: o.context.BuildContext(goal, o.cfg.Retrieval.ContextTokenBudget),
	}
	if files, err := o.overlay.List(""); err == nil {
		if len(files) > maxPlanningFiles {
			data.MoreFiles = len(files) - maxPlanningFiles
			files = files[:maxPlanningFiles]
		}
		data.ProjectFiles = files
	}
	prompt, err := o.renderer.Render(templates.PlanningTemplate, data)
	if err != nil {
		return nil, err
	}

	reply, err := o.send(ctx, llm.Message{Text: prompt})
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	steps, err := plan.Parse(reply.Text)
	if err != nil {
		o.logger.Warn("Plan could not be parsed, continuing with an empty plan: %v", err)
		o.record(runID, AgentStep{Kind: StepThought, Content: fmt.Sprintf("Could not read a plan from the reply (%v). Continuing without steps.", err)})
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan with %d step(s):", len(steps))
	for i := range steps {
		fmt.Fprintf(&sb, "\n%s. %s", steps[i].ID, steps[i].Title)
		if len(steps[i].Dependencies) > 0 {
			fmt.Fprintf(&sb, " (after %s)", strings.Join(steps[i].Dependencies, ", "))
		}
	}
	o.record(runID, AgentStep{Kind: StepThought, Content: sb.String()})
	o.logger.Info("📋 Planned %d step(s) for goal", len(steps))
	return steps, nil
}

// runStep converses about one active step until the model replies without
// a tool call.
func (o *Orchestrator) runStep(ctx context.Context, runID uint64, sched *plan.Scheduler, step plan.Step, number int) error {
	var completed []plan.Step
	for _, s := range sched.Steps() {
		if s.Status == plan.StatusCompleted || s.Status == plan.StatusSkipped {
			completed = append(completed, s)
		}
	}
	prompt, err := o.renderer.Render(templates.StepTemplate, &templates.TemplateData{
		Step:       &step,
		StepNumber: number,
		StepCount:  sched.Len(),
		Completed:  completed,
		Context:    o.context.BuildContext(step.Title+" "+step.Description, o.cfg.Retrieval.ContextTokenBudget),
	})
	if err != nil {
		return err
	}
	o.logger.Info("▶️  Step %s: %s", step.ID, step.Title)

	maxIterations := o.cfg.Agent.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = config.DefaultMaxToolIterations
	}
	msg := llm.Message{Text: prompt}
	for iteration := 0; ; iteration++ {
		reply, err := o.send(ctx, msg)
		if err != nil {
			return err
		}
		if text := strings.TrimSpace(reply.Text); text != "" {
			o.record(runID, AgentStep{Kind: StepThought, Content: text, PlanStepID: step.ID})
		}
		if len(reply.ToolCalls) == 0 {
			o.logger.Info("✅ Step %s complete after %d tool round(s)", step.ID, iteration)
			return nil
		}
		if iteration >= maxIterations {
			return fmt.Errorf("%w (%d)", ErrToolIterations, maxIterations)
		}

		if err := o.advance(runID, StatusExecuting, map[string]any{"step": step.ID, "calls": len(reply.ToolCalls)}); err != nil {
			return err
		}
		results, err := o.executeCalls(ctx, runID, step.ID, reply.ToolCalls)
		if err != nil {
			return err
		}
		if err := o.advance(runID, StatusThinking, map[string]any{"step": step.ID}); err != nil {
			return err
		}
		msg = llm.Message{ToolResponses: results}
	}
}

// executeCalls runs every call of one reply in order. Tool failures become
// error results for the model; only a failure to carry out a call returns an error.
func (o *Orchestrator) executeCalls(ctx context.Context, runID uint64, stepID string, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for i := range calls {
		call := &calls[i]
		args, err := json.Marshal(call.Parameters)
		if err != nil {
			args = []byte(fmt.Sprintf("%v", call.Parameters))
		}
		o.record(runID, AgentStep{Kind: StepCall, Content: string(args), PlanStepID: stepID, Tool: call.Name})
		o.noteFile(call.Parameters)

		var out tools.Outcome
		if call.Name == tools.ToolExecuteScript && !o.cfg.Execute.Enabled {
			out = tools.Outcome{Result: "Error: script execution is disabled for this project", Failed: true}
		} else {
			out, err = o.gateway.Execute(ctx, tools.Call{ID: call.ID, Name: call.Name, Args: call.Parameters})
			if err != nil {
				return nil, err
			}
		}

		o.record(runID, AgentStep{Kind: StepResult, Content: out.Result, PlanStepID: stepID, Tool: call.Name, Failed: out.Failed})
		if out.Patch != nil && o.cfg.Agent.AutoPreflight {
			o.preflightAsync(ctx, *out.Patch)
		}
		results = append(results, llm.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    out.Result,
			IsError:    out.Failed,
		})
	}
	return results, nil
}

// summarize requests the final summary and brings the session to rest.
func (o *Orchestrator) summarize(ctx context.Context, runID uint64, sched *plan.Scheduler) {
	if err := o.advance(runID, StatusSummarizing, nil); err != nil {
		return
	}

	o.mu.Lock()
	goal := o.goal
	o.mu.Unlock()
	prompt, err := o.renderer.Render(templates.SummaryTemplate, &templates.TemplateData{
		Goal:         goal,
		Plan:         sched.Steps(),
		PendingFiles: o.ledger.PendingPaths(),
	})
	if err != nil {
		o.abort(ctx, runID, err)
		return
	}

	reply, err := o.send(ctx, llm.Message{Text: prompt})
	if err != nil {
		o.abort(ctx, runID, fmt.Errorf("summary: %w", err))
		return
	}
	o.record(runID, AgentStep{Kind: StepSummary, Content: strings.TrimSpace(reply.Text)})

	next := StatusCompleted
	if o.ledger.Len() > 0 {
		next = StatusAwaitingReview
	}
	_ = o.advance(runID, next, map[string]any{"pending_patches": o.ledger.Len()})
}

// send issues one turn. Tool calls left unanswered by an earlier turn, for
// example after a stop, are answered with errors first so the conversation
// stays well formed.
func (o *Orchestrator) send(ctx context.Context, msg llm.Message) (llm.Reply, error) {
	o.mu.Lock()
	dangling := o.dangling
	o.mu.Unlock()
	if len(dangling) > 0 && len(msg.ToolResponses) == 0 {
		for i := range dangling {
			msg.ToolResponses = append(msg.ToolResponses, llm.ToolResult{
				ToolCallID: dangling[i].ID,
				Name:       dangling[i].Name,
				Content:    "Error: this call was not executed",
				IsError:    true,
			})
		}
	}

	reply, err := o.conv.SendMessage(ctx, msg)
	if err != nil {
		return llm.Reply{}, err
	}

	o.mu.Lock()
	o.dangling = reply.ToolCalls
	o.usage.InputTokens += reply.Usage.InputTokens
	o.usage.OutputTokens += reply.Usage.OutputTokens
	o.mu.Unlock()
	return reply, nil
}

// preflightAsync validates a proposed change in the background. Results land
// in the validator and are read through LatestPreFlight.
func (o *Orchestrator) preflightAsync(ctx context.Context, p patch.Patch) {
	if p.Kind == patch.KindDelete {
		o.validate.Forget(p.FileID)
		return
	}
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		o.validate.Validate(context.WithoutCancel(ctx), p.FileID, p.ProposedText)
	}()
}

// noteFile adds the call's path argument to the file-awareness set.
func (o *Orchestrator) noteFile(params map[string]any) {
	path, ok := params["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return
	}
	o.mu.Lock()
	o.files[strings.TrimSpace(path)] = struct{}{}
	o.mu.Unlock()
}

// advance transitions the current run to newState. Staying in the same state is a no-op.
func (o *Orchestrator) advance(runID uint64, newState Status, metadata map[string]any) error {
	var ev events
	o.mu.Lock()
	if runID != o.runID {
		o.mu.Unlock()
		return errStaleRun
	}
	if o.status == newState {
		o.mu.Unlock()
		return nil
	}
	err := o.transitionLocked(&ev, newState, metadata)
	o.mu.Unlock()
	o.emit(ev)
	return err
}

// record appends a step if runID is still current.
func (o *Orchestrator) record(runID uint64, step AgentStep) {
	var ev events
	o.mu.Lock()
	if runID != o.runID {
		o.mu.Unlock()
		return
	}
	o.appendStepLocked(&ev, step)
	o.mu.Unlock()
	o.emit(ev)
}

func (o *Orchestrator) setPlan(runID uint64, sched *plan.Scheduler) error {
	o.mu.Lock()
	if runID != o.runID {
		o.mu.Unlock()
		return errStaleRun
	}
	o.sched = sched
	o.mu.Unlock()
	o.savePlan(runID, sched)
	return nil
}

// failStep marks stepID failed. A step interrupted by a stop or a cancelled
// context stays active.
func (o *Orchestrator) failStep(ctx context.Context, runID uint64, sched *plan.Scheduler, stepID string) {
	o.mu.Lock()
	if runID != o.runID || ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	_ = sched.Fail(stepID)
	o.mu.Unlock()
	o.savePlan(runID, sched)
}

func (o *Orchestrator) savePlan(runID uint64, sched *plan.Scheduler) {
	if o.log == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if runID != o.runID {
		return
	}
	if err := o.log.SavePlan(context.Background(), o.id, sched.Steps()); err != nil {
		o.logger.Warn("Failed to persist plan: %v", err)
	}
}

// abort ends the run after err. A run that was stopped or whose context was
// cancelled ends in stopped; anything else fails the session.
func (o *Orchestrator) abort(ctx context.Context, runID uint64, err error) {
	if errors.Is(err, errStaleRun) || errors.Is(err, llm.ErrDiscarded) {
		return
	}
	if ctx.Err() != nil {
		var ev events
		o.mu.Lock()
		if runID == o.runID && o.status.Active() {
			o.conv.Cancel()
			o.failureReason = ctx.Err().Error()
			if terr := o.transitionLocked(&ev, StatusStopped, nil); terr != nil {
				o.logger.Error("Abort: %v", terr)
			}
			o.appendStepLocked(&ev, AgentStep{Kind: StepError, Content: "Stopped: " + ctx.Err().Error()})
		}
		o.mu.Unlock()
		o.emit(ev)
		return
	}
	o.fail(runID, err.Error())
}

// fail moves the current run to failed with reason.
func (o *Orchestrator) fail(runID uint64, reason string) {
	var ev events
	o.mu.Lock()
	if runID != o.runID || !o.status.Active() {
		o.mu.Unlock()
		return
	}
	o.logger.Error("❌ Session failed: %s", reason)
	o.failureReason = reason
	o.appendStepLocked(&ev, AgentStep{Kind: StepError, Content: reason})
	if err := o.transitionLocked(&ev, StatusFailed, map[string]any{"reason": reason}); err != nil {
		o.logger.Error("Fail: %v", err)
	}
	o.mu.Unlock()
	o.emit(ev)
}

// releaseRun cancels the run context once the run goroutine exits.
func (o *Orchestrator) releaseRun(runID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if runID == o.runID && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}
