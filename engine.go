package dopus

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Step is the outcome of one execution step.
type Step struct {
	Result any
	Log    *Action
	Done   bool // the provider requested no tool call
}

// Engine runs the tool-invocation loop: it holds the active tool set, the handlers bound to
// each tool, the event observers and the actions of the current run.
//
// Tool-level failures never escape the engine; they are reported as events and a nil result.
type Engine struct {
	registry *Registry
	opts     engineOptions
	logger   *slog.Logger

	mu        sync.Mutex
	active    map[string]struct{}
	bindings  map[string][]Handler
	defaults  map[string]*Descriptor // descriptor whose handler sits at bindings[id][0]
	observers map[EventKind][]Observer
	inLoop    bool
	stopped   bool
	stopValue any
	actions   []Action
}

// NewEngine creates an Engine resolving tools in registry (DefaultRegistry when nil).
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	o := engineOptions{recoverPanics: true}
	for _, opt := range opts {
		opt(&o)
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry:  registry,
		opts:      o,
		logger:    logger,
		active:    make(map[string]struct{}),
		bindings:  make(map[string][]Handler),
		defaults:  make(map[string]*Descriptor),
		observers: make(map[EventKind][]Observer),
	}
	e.AddTools(o.activeTools...)
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// OnEvent subscribes o to events of kind. Observers run synchronously in subscription order.
func (e *Engine) OnEvent(kind EventKind, o Observer) {
	if o == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers[kind] = append(e.observers[kind], o)
}

// AddTool activates id and binds the registry's handler for it ahead of any handler added
// with On. When the registry entry was replaced since the last call, the new handler takes
// the old one's place. An id unknown to the registry is still activated but has no handler.
func (e *Engine) AddTool(id string) {
	d, known := e.registry.Lookup(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[id] = struct{}{}
	if !known {
		e.logger.Debug("tool activated without registry entry", "tool", id)
		return
	}
	if prev, bound := e.defaults[id]; bound {
		if prev == d {
			return
		}
		e.logger.Debug("rebinding replaced tool", "tool", id)
		e.bindings[id] = e.bindings[id][1:]
		delete(e.defaults, id)
	}
	if h := d.Handler(); h != nil {
		e.bindings[id] = slices.Insert(e.bindings[id], 0, h)
		e.defaults[id] = d
	}
}

func (e *Engine) AddTools(ids ...string) {
	for _, id := range ids {
		e.AddTool(id)
	}
}

// RemoveTool deactivates id. Its handlers stay bound but are unreachable until re-activation.
func (e *Engine) RemoveTool(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

// On binds an additional handler to id. It only works for a registered and active tool;
// otherwise it logs and returns false.
func (e *Engine) On(id string, h Handler) bool {
	if h == nil {
		return false
	}
	known := e.registry.Contains(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, active := e.active[id]; !known || !active {
		e.logger.Warn("cannot bind handler: tool not loaded", "tool", id)
		return false
	}
	e.bindings[id] = append(e.bindings[id], h)
	return true
}

// ActiveTools returns the active tool ids, sorted.
func (e *Engine) ActiveTools() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.active))
}

// Stop ends the current loop at the next iteration boundary; the step in flight completes.
// value becomes RunResult.Value. Safe to call from any goroutine, including a handler.
func (e *Engine) Stop(value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.stopValue = value
}

// Running reports whether a loop is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inLoop
}

// Actions returns the actions of the current or last run.
func (e *Engine) Actions() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.actions)
}

// Loop performs execution steps until the provider requests no tool call, Stop is called,
// ctx is done, the step limit is reached or a provider request fails. EventStop fires once
// at the end in every case. The returned error is non-nil only for a provider failure,
// context cancellation or ErrAlreadyRunning.
func (e *Engine) Loop(ctx context.Context, conv *Conversation, p Provider, prompter Prompter) (RunResult, error) {
	e.mu.Lock()
	if e.inLoop {
		e.mu.Unlock()
		return RunResult{}, ErrAlreadyRunning
	}
	e.inLoop = true
	e.stopped = false
	e.stopValue = nil
	e.actions = nil
	e.mu.Unlock()

	var err error
	for steps := 0; ; steps++ {
		if e.stopRequested() {
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
		if e.opts.maxSteps > 0 && steps >= e.opts.maxSteps {
			e.logger.DebugContext(ctx, "step limit reached", "steps", steps)
			break
		}
		var step Step
		step, err = e.Execute(ctx, conv, p, prompter)
		if err != nil {
			break
		}
		if step.Log != nil {
			e.mu.Lock()
			e.actions = append(e.actions, *step.Log)
			e.mu.Unlock()
		}
		if step.Done {
			break
		}
	}

	e.mu.Lock()
	e.inLoop = false
	res := RunResult{Value: e.stopValue, Stopped: e.stopped, Actions: slices.Clone(e.actions)}
	e.mu.Unlock()
	e.emit(Stopped{Value: res.Value})
	return res, err
}

func (e *Engine) stopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Execute performs one step: request, take the first tool call, dispatch it, build the log.
// Only the provider request can fail.
func (e *Engine) Execute(ctx context.Context, conv *Conversation, p Provider, prompter Prompter) (Step, error) {
	messages := conv.Messages()
	tools := e.ActiveTools()
	var system string
	if prompter != nil {
		system = prompter.Prompt()
	}

	resp, err := p.Request(ctx, messages, e.registry, tools, system)
	if err != nil {
		return Step{}, fmt.Errorf("provider request: %w", err)
	}
	calls := p.ToolCalls(resp)
	if len(calls) == 0 {
		return Step{Done: true}, nil
	}
	if len(calls) > 1 {
		e.logger.DebugContext(ctx, "ignoring extra tool calls", "count", len(calls)-1)
	}
	raw := calls[0]
	e.emit(PreToolCall{Raw: raw})

	var (
		result  any
		outcome = dispatchNotFound
	)
	call, err := p.ExtractToolCall(raw)
	if err != nil {
		e.emit(ToolNotFound{Name: call.Name, Args: call.Args, Message: "Tool not found: " + err.Error()})
	} else {
		result, outcome = e.dispatch(ctx, call)
	}

	entry := p.BuildLog(resp, messages, result, tools, prompter)
	// A failed call leaves the conversation untouched. A call that found no tool is still
	// completed with a nil result so the model sees its request answered.
	if outcome != dispatchFailed {
		e.emit(ToolCallCompleted{Result: result, Call: call})
	}
	return Step{Result: result, Log: &entry}, nil
}

type dispatchOutcome int

const (
	dispatchOK dispatchOutcome = iota
	dispatchNotFound
	dispatchFailed
)

// Dispatch runs every handler bound to call.Name in binding order and returns the last
// handler's value. A nil value becomes "". The second result is false when the tool was
// not found or a handler failed; the matching event has been fired and the value is nil.
func (e *Engine) Dispatch(ctx context.Context, call ToolCall) (any, bool) {
	result, outcome := e.dispatch(ctx, call)
	return result, outcome == dispatchOK
}

func (e *Engine) dispatch(ctx context.Context, call ToolCall) (any, dispatchOutcome) {
	d, known := e.registry.Lookup(call.Name)
	e.mu.Lock()
	_, active := e.active[call.Name]
	handlers := slices.Clone(e.bindings[call.Name])
	e.mu.Unlock()

	if !known || !active {
		e.emit(ToolNotFound{Name: call.Name, Args: call.Args, Message: "Tool not found"})
		return nil, dispatchNotFound
	}
	if len(handlers) == 0 {
		e.logger.DebugContext(ctx, "tool has no handlers", "tool", call.Name)
		return "", dispatchOK
	}
	if e.opts.validateArgs {
		if err := d.Validate(call.Args); err != nil {
			e.fail(ctx, call, err)
			return nil, dispatchFailed
		}
	}

	var result any
	for _, h := range handlers {
		res, err := e.invoke(ctx, call, chain(call.Name, h, e.opts.middlewares))
		if err != nil {
			e.fail(ctx, call, err)
			return nil, dispatchFailed
		}
		result = res
	}
	if result == nil {
		result = ""
	}
	return result, dispatchOK
}

func (e *Engine) invoke(ctx context.Context, call ToolCall, h Handler) (res any, err error) {
	if e.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = nil
				err = &ExecutionError{Tool: call.Name, Err: &panicError{p: p}}
			}
		}()
	}
	res, err = h(ctx, call.Args.Clone())
	return res, wrapHandlerError(call.Name, err)
}

func (e *Engine) fail(ctx context.Context, call ToolCall, err error) {
	e.logger.DebugContext(ctx, "tool call failed", "tool", call.Name, "id", call.ID, "error", err)
	e.emit(ToolFailed{
		Name:    call.Name,
		Args:    call.Args,
		Message: "Tool call failed: " + err.Error(),
		Err:     err,
	})
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	observers := slices.Clone(e.observers[ev.Kind()])
	e.mu.Unlock()
	for _, o := range observers {
		e.notify(o, ev)
	}
}

func (e *Engine) notify(o Observer, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("observer panic", "event", ev.Kind().String(), "panic", p)
		}
	}()
	o(ev)
}
