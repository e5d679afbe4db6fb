package dopus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Prompter supplies the system prompt for a request.
type Prompter interface {
	Prompt() string
}

// Provider translates the conversation to a vendor request and interprets the response.
// Responses and raw calls are vendor types passed back to the same Provider untouched.
type Provider interface {
	// Request sends messages plus the definitions of the active tools (looked up in registry).
	Request(ctx context.Context, messages []Message, registry *Registry, tools []string, systemPrompt string) (any, error)
	// ToolCalls returns the raw tool calls in response, empty when the model requested none.
	ToolCalls(response any) []any
	// ExtractToolCall normalizes one raw call. A malformed call returns an error.
	ExtractToolCall(raw any) (ToolCall, error)
	// BuildLog records one execution step.
	BuildLog(response any, messages []Message, result any, tools []string, prompter Prompter) Action
}

// Stopper is implemented by providers that want a hook when a loop ends.
type Stopper interface {
	OnStop(conv *Conversation, value any)
}

// Usage is the token accounting reported by a vendor.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// CalledTool is the tool part of an Action.
type CalledTool struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Args   Args   `json:"args"`
	Result any    `json:"result"`
}

// Action is the execution-log record of one step.
type Action struct {
	ID             string         `json:"id"`
	Model          string         `json:"model"`
	Created        time.Time      `json:"created"`
	Messages       []Message      `json:"messages"`
	AvailableTools []string       `json:"available_tools"`
	ToolCalled     *CalledTool    `json:"tool_called,omitempty"`
	Usage          Usage          `json:"usage"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// RunResult is what Loop returns.
type RunResult struct {
	Value   any
	Stopped bool
	Actions []Action
}

// MessageFormatter maps conversation messages to a vendor message type.
type MessageFormatter[T any] interface {
	FormatMessage(m Message) T
	FormatToolCall(c ToolCallContent) T
	FormatToolResult(r ToolResultContent) T
}

// FormatMessages converts messages with f. Tool messages whose content is not the
// matching content type are formatted as plain messages.
func FormatMessages[T any](messages []Message, f MessageFormatter[T]) []T {
	out := make([]T, 0, len(messages))
	for _, m := range messages {
		switch m.Type {
		case MessageToolCall:
			if c, ok := toolCallContent(m.Content); ok {
				out = append(out, f.FormatToolCall(c))
				continue
			}
		case MessageToolResult:
			if r, ok := toolResultContent(m.Content); ok {
				out = append(out, f.FormatToolResult(r))
				continue
			}
		}
		out = append(out, f.FormatMessage(m))
	}
	return out
}

func toolCallContent(v any) (ToolCallContent, bool) {
	switch c := v.(type) {
	case ToolCallContent:
		return c, true
	case *ToolCallContent:
		if c != nil {
			return *c, true
		}
	}
	return ToolCallContent{}, false
}

func toolResultContent(v any) (ToolResultContent, bool) {
	switch r := v.(type) {
	case ToolResultContent:
		return r, true
	case *ToolResultContent:
		if r != nil {
			return *r, true
		}
	}
	return ToolResultContent{}, false
}

// ContentString renders message content or a tool result as text for a vendor.
// Strings pass through, nil becomes "" and anything else is JSON encoded.
func ContentString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case error:
		return s.Error()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
