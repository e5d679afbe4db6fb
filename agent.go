package dopus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ToolDeclarer is implemented by behaviors that bring their own tools, usually closures
// over the behavior's state. They are registered and activated by NewAgent.
type ToolDeclarer interface {
	Tools() []*Descriptor
}

// AgentOption configures an Agent.
type AgentOption func(*agentOptions)

type agentOptions struct {
	name            string
	conv            *Conversation
	registry        *Registry
	engine          *Engine
	engineOpts      []EngineOption
	logger          *slog.Logger
	failureFeedback bool
}

// WithName sets the agent name. Defaults to the behavior's type name.
func WithName(name string) AgentOption {
	return func(o *agentOptions) { o.name = name }
}

// WithConversation starts the agent on an existing conversation.
func WithConversation(conv *Conversation) AgentOption {
	return func(o *agentOptions) { o.conv = conv }
}

// WithRegistry sets the registry the agent's engine resolves tools in. Defaults to DefaultRegistry.
func WithRegistry(r *Registry) AgentOption {
	return func(o *agentOptions) { o.registry = r }
}

// WithEngine uses a preconfigured engine. WithRegistry and WithEngineOptions are ignored.
func WithEngine(e *Engine) AgentOption {
	return func(o *agentOptions) { o.engine = e }
}

// WithEngineOptions passes options to the engine the agent creates.
func WithEngineOptions(opts ...EngineOption) AgentOption {
	return func(o *agentOptions) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithAgentLogger sets the logger of the agent and of the engine it creates.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(o *agentOptions) { o.logger = logger }
}

// WithFailureFeedback appends the tool error message to the conversation as a user
// message, so the model sees that its call did not go through.
func WithFailureFeedback() AgentOption {
	return func(o *agentOptions) { o.failureFeedback = true }
}

// Agent binds one Provider, one Conversation and one Engine.
type Agent struct {
	name     string
	provider Provider
	behavior Prompter
	conv     *Conversation
	engine   *Engine
	logger   *slog.Logger
	feedback bool

	mu      sync.Mutex
	lastErr string
}

// NewAgent creates an agent talking to p. behavior supplies the system prompt and, when it
// implements ToolDeclarer, the agent's own tools. behavior may be nil.
func NewAgent(p Provider, behavior Prompter, opts ...AgentOption) *Agent {
	var o agentOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	conv := o.conv
	if conv == nil {
		conv = NewConversation()
	}
	engine := o.engine
	if engine == nil {
		engineOpts := append([]EngineOption{WithLogger(logger)}, o.engineOpts...)
		engine = NewEngine(o.registry, engineOpts...)
	}
	name := o.name
	if name == "" {
		name = typeName(behavior)
	}
	a := &Agent{
		name:     name,
		provider: p,
		behavior: behavior,
		conv:     conv,
		engine:   engine,
		logger:   logger.With("agent", name),
		feedback: o.failureFeedback,
	}
	if td, ok := behavior.(ToolDeclarer); ok {
		a.AddTools(td.Tools()...)
	}
	a.subscribe()
	return a
}

func (a *Agent) subscribe() {
	a.engine.OnEvent(EventStop, func(ev Event) {
		if s, ok := a.provider.(Stopper); ok {
			s.OnStop(a.conv, ev.(Stopped).Value)
		}
	})
	a.engine.OnEvent(EventToolFailed, func(ev Event) {
		f := ev.(ToolFailed)
		a.toolError(f.Name, f.Message)
	})
	a.engine.OnEvent(EventToolNotFound, func(ev Event) {
		nf := ev.(ToolNotFound)
		a.toolError(nf.Name, nf.Message)
	})
	a.engine.OnEvent(EventToolCallCompleted, func(ev Event) {
		c := ev.(ToolCallCompleted)
		a.conv.AddToolCall(c.Call, c.Result)
	})
	a.engine.OnEvent(EventPreToolCall, func(ev Event) {
		a.logger.Debug("tool call requested", "raw", ev.(PreToolCall).Raw)
	})
}

func (a *Agent) toolError(name, detail string) {
	msg := fmt.Sprintf("Error calling tool: %s. Are you sure the tool is loaded?", name)
	a.logger.Warn(msg, "tool", name, "error", detail)
	a.mu.Lock()
	a.lastErr = msg
	a.mu.Unlock()
	if a.feedback {
		a.conv.Append(RoleUser, msg)
	}
}

// Run appends message as a user message when it is not empty, then loops until the model
// stops requesting tools or Stop is called.
func (a *Agent) Run(ctx context.Context, message string) (RunResult, error) {
	if message != "" {
		a.conv.Append(RoleUser, message)
	}
	return a.engine.Loop(ctx, a.conv, a.provider, a)
}

// Stop ends the running loop after the current step; value is returned by Run.
func (a *Agent) Stop(value any) {
	a.engine.Stop(value)
}

// Reset clears the conversation and the last tool error.
func (a *Agent) Reset() {
	a.conv.Clear()
	a.mu.Lock()
	a.lastErr = ""
	a.mu.Unlock()
}

// AddTool registers d in the engine's registry and activates it.
func (a *Agent) AddTool(d *Descriptor) {
	if d == nil {
		return
	}
	a.engine.Registry().Register(d)
	a.engine.AddTool(d.ID())
}

func (a *Agent) AddTools(ds ...*Descriptor) {
	for _, d := range ds {
		a.AddTool(d)
	}
}

func (a *Agent) RemoveTool(id string) {
	a.engine.RemoveTool(id)
}

// OnToolUse binds an extra handler to an active tool. See Engine.On.
func (a *Agent) OnToolUse(id string, h Handler) bool {
	return a.engine.On(id, h)
}

func (a *Agent) Actions() []Action           { return a.engine.Actions() }
func (a *Agent) Conversation() *Conversation { return a.conv }
func (a *Agent) Engine() *Engine             { return a.engine }
func (a *Agent) Name() string                { return a.name }

// Prompt returns the behavior's system prompt.
func (a *Agent) Prompt() string {
	if a.behavior == nil {
		return ""
	}
	return a.behavior.Prompt()
}

// LastToolError returns the user-facing message of the most recent failed or unknown tool call.
func (a *Agent) LastToolError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func typeName(v any) string {
	if v == nil {
		return "agent"
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", v), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
