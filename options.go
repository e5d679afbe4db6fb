package dopus

import (
	"log/slog"
)

// toolOptions hold optional tool settings.
type toolOptions struct {
	id string
}

// ToolOption configures a tool built by Define or NewTool.
type ToolOption func(*toolOptions)

// WithID sets the registry key. Defaults to the tool name.
func WithID(id string) ToolOption {
	return func(o *toolOptions) {
		o.id = id
	}
}

// WithQualifiedName derives the registry key from a qualified name (see ToolID), so tools
// defined on different types do not collide.
func WithQualifiedName(qualified string) ToolOption {
	return func(o *toolOptions) {
		o.id = ToolID(qualified)
	}
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger        *slog.Logger
	maxSteps      int
	middlewares   []Middleware
	recoverPanics bool
	validateArgs  bool
	activeTools   []string
}

// WithLogger sets the logger used for engine diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMaxSteps ends a loop after n execution steps. Zero or negative means no limit.
func WithMaxSteps(n int) EngineOption {
	return func(o *engineOptions) {
		o.maxSteps = n
	}
}

// WithMiddleware wraps every handler invocation (onion order: first middleware is outermost).
func WithMiddleware(middlewares ...Middleware) EngineOption {
	return func(o *engineOptions) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// WithRecoverPanics enables panic recovery around handlers (default true). A recovered
// panic is reported as TOOL_FAILED with an *ExecutionError.
func WithRecoverPanics(enable bool) EngineOption {
	return func(o *engineOptions) {
		o.recoverPanics = enable
	}
}

// WithArgumentValidation validates raw arguments against the tool schema before any
// handler runs. A violation is reported as TOOL_FAILED.
func WithArgumentValidation() EngineOption {
	return func(o *engineOptions) {
		o.validateArgs = true
	}
}

// WithActiveTools activates the given tool ids at construction.
func WithActiveTools(ids ...string) EngineOption {
	return func(o *engineOptions) {
		o.activeTools = append(o.activeTools, ids...)
	}
}
