// Package engine interprets compiled plans. It walks a plan's steps in
// order, maintains a context map of node outputs, drives agent steps
// through their backend turn loop, and reports every meaningful
// transition through an EventSink. The engine itself holds no run
// state; lifecycle and persistence belong to the run service feeding
// it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/minseok/weft/internal/backend"
	"github.com/minseok/weft/internal/dag"
	"github.com/minseok/weft/internal/weft"
)

var tracer = otel.Tracer("weft")

// ErrCancelled is returned when a pending cancel is observed at a step
// boundary or in the emit path.
var ErrCancelled = errors.New("run cancelled")

const (
	defaultMaxTurns = 10
	maxHandoffs     = 5
	previewLen      = 200
)

// EventSink receives the engine's trace events. Implementations assign
// sequence numbers, persist, and fan out. Emit returns ErrCancelled
// when the run has a pending cancel and the event is not terminal.
type EventSink interface {
	Emit(ctx context.Context, typ weft.EventType, payload map[string]any) error
	Cancelled(ctx context.Context) bool
}

// BackendResolver resolves a model selector to a backend and the bare
// model name.
type BackendResolver interface {
	Resolve(selector string) (backend.Backend, string, error)
}

// ToolRunner executes a named tool implementation.
type ToolRunner interface {
	Execute(ctx context.Context, name string, input any) (any, error)
}

// ExecutionError reports a failed step. The run fails; events emitted
// before the failure stay persisted.
type ExecutionError struct {
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("step %s: %v", e.NodeID, e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// GuardrailRejection reports a blocking guardrail stopping a step.
type GuardrailRejection struct {
	NodeID    string
	Guardrail string
	Rule      string
}

func (e *GuardrailRejection) Error() string {
	return fmt.Sprintf("guardrail %q blocked step %s", e.Guardrail, e.NodeID)
}

type Engine struct {
	backends    BackendResolver
	tools       ToolRunner
	maxTurns    int
	stepTimeout time.Duration
}

// New builds an engine. maxTurns bounds the backend turn loop for agent
// steps with tools; zero or negative selects the default of 10.
func New(backends BackendResolver, tools ToolRunner, maxTurns int) *Engine {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Engine{backends: backends, tools: tools, maxTurns: maxTurns}
}

// SetStepTimeout bounds each agent step's wall-clock time. Zero leaves
// steps unbounded.
func (e *Engine) SetStepTimeout(d time.Duration) { e.stepTimeout = d }

// Execute walks the plan against the given inputs and returns the final
// output. The first event is run.started and, on success, the last is
// run.completed; failure and cancellation terminals are emitted by the
// caller, which knows the run record.
func (e *Engine) Execute(ctx context.Context, plan *dag.Plan, inputs map[string]any, sink EventSink) (string, error) {
	ctx, span := tracer.Start(ctx, "weft.run",
		trace.WithAttributes(attribute.String("plan.hash", plan.Hash)))
	var err error
	defer func() { endSpan(span, err) }()

	if inputs == nil {
		inputs = map[string]any{}
	}
	x := &execution{
		engine: e,
		plan:   plan,
		sink:   sink,
		inputs: inputs,
		state:  make(map[string]any, len(inputs)+1),
	}
	for k, v := range inputs {
		x.state[k] = v
	}
	x.state["inputs"] = inputs

	if err = sink.Emit(ctx, weft.EventRunStarted, map[string]any{
		"inputs":       inputs,
		"plan_summary": plan.Summary(),
	}); err != nil {
		return "", err
	}

	if err = x.runSteps(ctx, plan.Steps); err != nil {
		return "", err
	}

	if sink.Cancelled(ctx) {
		err = ErrCancelled
		return "", err
	}
	if err = sink.Emit(ctx, weft.EventRunCompleted, map[string]any{
		"final_output_preview": preview(x.final, previewLen),
	}); err != nil {
		return "", err
	}
	return x.final, nil
}

// execution carries the per-run walk state: the context map from node
// id to latest output, and the final output selected so far.
type execution struct {
	engine *Engine
	plan   *dag.Plan
	sink   EventSink
	inputs map[string]any
	state  map[string]any
	final  string
}

func (x *execution) runSteps(ctx context.Context, steps []dag.Step) error {
	for i := range steps {
		if err := x.checkCancel(ctx); err != nil {
			return err
		}
		if err := x.runStep(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

// checkCancel implements the cooperative step boundary: a pending
// cancel or a dead context stops the walk before the next step starts.
func (x *execution) checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if x.sink.Cancelled(ctx) {
		return ErrCancelled
	}
	return nil
}

func (x *execution) runStep(ctx context.Context, step *dag.Step) error {
	switch step.Kind {
	case dag.StepInput:
		// Input nodes seed the context. Silent: no trace events.
		x.state[step.NodeID] = x.inputs
		return nil
	case dag.StepAgent:
		return x.runAgent(ctx, step)
	case dag.StepLoop:
		return x.runLoop(ctx, step)
	case dag.StepOutput:
		x.final = Stringify(x.upstreamValue(step))
		return nil
	default:
		return &ExecutionError{NodeID: step.NodeID, Err: fmt.Errorf("unknown step kind %q", step.Kind)}
	}
}

// upstreamValue returns the first upstream node output present in the
// context, in edge declaration order.
func (x *execution) upstreamValue(step *dag.Step) any {
	for _, id := range step.Upstream {
		if v, ok := x.state[id]; ok {
			return v
		}
	}
	return nil
}

func (x *execution) runAgent(ctx context.Context, step *dag.Step) error {
	ctx, span := tracer.Start(ctx, "weft.step."+step.NodeID,
		trace.WithAttributes(
			attribute.String("node.id", step.NodeID),
			attribute.String("model", step.Model),
		))
	defer span.End()

	if err := x.sink.Emit(ctx, weft.EventStepStarted, map[string]any{
		"node_id": step.NodeID, "name": step.Name,
	}); err != nil {
		return err
	}

	if err := x.applyGuardrails(ctx, step, step.InputGuardrails, "input", x.inputs); err != nil {
		return x.failStep(ctx, step, span, err)
	}

	// The step deadline covers only the turn loop; trace emission keeps
	// the outer context so a timed-out step is still recorded.
	turnCtx := ctx
	if d := x.engine.stepTimeout; d > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	output, err := x.agentTurns(turnCtx, step)
	if err != nil {
		return x.failStep(ctx, step, span, err)
	}

	if err := x.applyGuardrails(ctx, step, step.OutputGuardrails, "output", output); err != nil {
		return x.failStep(ctx, step, span, err)
	}

	if err := x.sink.Emit(ctx, weft.EventStepCompleted, map[string]any{
		"node_id": step.NodeID, "name": step.Name, "output": output,
	}); err != nil {
		return err
	}
	x.state[step.NodeID] = output
	return nil
}

// failStep records the failure as a step.failed event and wraps the
// cause. Cancellation and sink errors pass through untouched so the
// caller can classify the terminal state.
func (x *execution) failStep(ctx context.Context, step *dag.Step, span trace.Span, cause error) error {
	if errors.Is(cause, ErrCancelled) || errors.Is(cause, context.Canceled) {
		return cause
	}
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	if err := x.sink.Emit(ctx, weft.EventStepFailed, map[string]any{
		"node_id": step.NodeID, "name": step.Name, "error": cause.Error(),
	}); err != nil {
		return err
	}
	var rejection *GuardrailRejection
	if errors.As(cause, &rejection) {
		return cause
	}
	return &ExecutionError{NodeID: step.NodeID, Err: cause}
}

// applyGuardrails evaluates each rule against {input|output, inputs,
// node}. A false or erroring rule emits guardrail.triggered; a blocking
// one stops the step.
func (x *execution) applyGuardrails(ctx context.Context, step *dag.Step, rails []weft.Guardrail, phase string, value any) error {
	for _, g := range rails {
		env := map[string]any{
			phase:    value,
			"inputs": x.inputs,
			"node":   step.NodeID,
		}
		ok, evalErr := EvalCondition(g.Rule, env)
		if ok && evalErr == nil {
			continue
		}
		if err := x.sink.Emit(ctx, weft.EventGuardrailTriggered, map[string]any{
			"node_id": step.NodeID, "guardrail": g.Name, "rule": g.Rule, "blocking": g.Blocking,
		}); err != nil {
			return err
		}
		if g.Blocking {
			return &GuardrailRejection{NodeID: step.NodeID, Guardrail: g.Name, Rule: g.Rule}
		}
	}
	return nil
}

// agentParams is the mutable half of an agent step: a handoff swaps
// these for the target agent's while the step itself keeps running.
type agentParams struct {
	nodeID       string
	name         string
	instructions string
	model        string
	temperature  *float64
	tools        []dag.ToolBinding
}

func (x *execution) paramsFor(step *dag.Step) agentParams {
	return agentParams{
		nodeID:       step.NodeID,
		name:         step.Name,
		instructions: ResolveTemplate(step.Instructions, x.state),
		model:        step.Model,
		temperature:  step.Temperature,
		tools:        step.Tools,
	}
}

func (p agentParams) toolDefs() []backend.ToolDefinition {
	if len(p.tools) == 0 {
		return nil
	}
	defs := make([]backend.ToolDefinition, len(p.tools))
	for i, t := range p.tools {
		defs[i] = backend.ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema}
	}
	return defs
}

func (p agentParams) binding(name string) (dag.ToolBinding, bool) {
	for _, t := range p.tools {
		if t.Name == name {
			return t, true
		}
	}
	return dag.ToolBinding{}, false
}

// agentTurns drives the backend turn loop for one agent step. Tool
// calls consume a turn; a handoff swaps the acting agent without
// consuming one, bounded separately by maxHandoffs.
func (x *execution) agentTurns(ctx context.Context, step *dag.Step) (string, error) {
	cur := x.paramsFor(step)

	maxTurns := x.engine.maxTurns
	if len(cur.tools) == 0 {
		maxTurns = 1
	}

	var messages []backend.Message
	handoffs := 0

	for turn := 0; turn < maxTurns; {
		be, model, err := x.engine.backends.Resolve(cur.model)
		if err != nil {
			return "", err
		}
		res, err := be.Generate(ctx, backend.Request{
			Model:        model,
			Instructions: cur.instructions,
			Context:      x.state,
			Messages:     messages,
			Tools:        cur.toolDefs(),
			Temperature:  cur.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("backend %s turn %d: %w", be.Name(), turn, err)
		}

		if res.Handoff != "" {
			handoffs++
			if handoffs > maxHandoffs {
				return "", fmt.Errorf("exceeded max handoffs (%d)", maxHandoffs)
			}
			target, ok := x.plan.FindAgent(res.Handoff)
			if !ok {
				return "", fmt.Errorf("handoff target %q not found", res.Handoff)
			}
			if err := x.sink.Emit(ctx, weft.EventHandoff, map[string]any{
				"from": cur.nodeID, "to": target.NodeID,
			}); err != nil {
				return "", err
			}
			cur = x.paramsFor(target)
			continue
		}

		if len(res.ToolCalls) > 0 {
			turn++
			messages = append(messages, backend.Message{
				Role: backend.RoleAssistant, Content: res.Output, ToolCalls: res.ToolCalls,
			})
			for _, tc := range res.ToolCalls {
				result, err := x.callTool(ctx, cur, tc)
				if err != nil {
					return "", err
				}
				messages = append(messages, backend.Message{
					Role: backend.RoleTool, Content: result, ToolCallID: tc.ID,
				})
			}
			continue
		}

		return res.Output, nil
	}

	return "", fmt.Errorf("exceeded max turns (%d)", maxTurns)
}

// callTool executes one backend-requested tool call and renders its
// result for the conversation. Tool failures come back as error text
// for the backend to react to, not as step failures; only sink errors
// propagate.
func (x *execution) callTool(ctx context.Context, cur agentParams, tc backend.ToolCall) (string, error) {
	if err := x.sink.Emit(ctx, weft.EventToolCall, map[string]any{
		"node_id": cur.nodeID, "tool": tc.Name, "args": tc.Arguments,
	}); err != nil {
		return "", err
	}

	var result string
	b, ok := cur.binding(tc.Name)
	if !ok {
		result = fmt.Sprintf("Error: tool %q is not bound to this agent", tc.Name)
	} else {
		out, err := x.engine.tools.Execute(ctx, b.Impl, toolInput(tc.Arguments))
		if err != nil {
			result = fmt.Sprintf("Error: %v", err)
		} else {
			result = Stringify(out)
		}
	}

	if err := x.sink.Emit(ctx, weft.EventToolResult, map[string]any{
		"node_id": cur.nodeID, "tool": tc.Name, "result": result,
	}); err != nil {
		return "", err
	}
	return result, nil
}

func toolInput(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func (x *execution) runLoop(ctx context.Context, step *dag.Step) error {
	ctx, span := tracer.Start(ctx, "weft.loop."+step.NodeID,
		trace.WithAttributes(attribute.String("node.id", step.NodeID)))
	defer span.End()

	for iteration := 0; iteration < step.MaxIterations; iteration++ {
		if err := x.checkCancel(ctx); err != nil {
			return err
		}
		env := map[string]any{
			"iteration":      iteration,
			"last":           x.lastBodyOutput(step),
			"inputs":         x.inputs,
			"max_iterations": step.MaxIterations,
		}
		ok, err := EvalCondition(step.Condition, env)
		if err != nil {
			return x.failStep(ctx, step, span, err)
		}
		if !ok {
			break
		}
		if err := x.sink.Emit(ctx, weft.EventLoopIteration, map[string]any{
			"node_id": step.NodeID, "iteration": iteration + 1,
		}); err != nil {
			return err
		}
		if err := x.runSteps(ctx, step.Body); err != nil {
			return err
		}
	}

	// Downstream edges address the group node, so its output is the
	// body's last agent output.
	x.state[step.NodeID] = x.lastBodyOutput(step)
	return nil
}

// lastBodyOutput returns the latest output of the loop body's final
// agent step, nil before the first pass.
func (x *execution) lastBodyOutput(step *dag.Step) any {
	for i := len(step.Body) - 1; i >= 0; i-- {
		if step.Body[i].Kind == dag.StepAgent {
			return x.state[step.Body[i].NodeID]
		}
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
