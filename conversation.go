package dopus

import (
	"slices"
	"sync"
	"time"
)

// Role identifies the author of a message. Vendors may use other values.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType separates dialogue from tool bookkeeping.
type MessageType string

const (
	MessageDefault    MessageType = "default"
	MessageToolCall   MessageType = "tool_call"
	MessageToolResult MessageType = "tool_result"
)

// Message is a single conversation entry.
type Message struct {
	Role      Role
	Content   any
	Timestamp time.Time
	Type      MessageType
}

// ToolCall is a normalized tool call as extracted by a provider adapter.
type ToolCall struct {
	ID   string
	Name string
	Args Args
}

// ToolCallContent is the content of a tool_call message.
type ToolCallContent struct {
	ID   string
	Name string
	Args Args
}

// ToolResultContent is the content of a tool_result message; ID matches the call.
type ToolResultContent struct {
	ID     string
	Result any
}

// Conversation is an ordered in-memory message log. Safe for concurrent use.
// The zero value is an empty conversation.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) timestamp() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Append adds a default message.
func (c *Conversation) Append(role Role, content any) {
	c.AppendOfType(role, content, MessageDefault)
}

// AppendOfType adds a message of the given type with a fresh timestamp.
func (c *Conversation) AppendOfType(role Role, content any, typ MessageType) {
	if typ == "" {
		typ = MessageDefault
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: c.timestamp(),
		Type:      typ,
	})
}

// AddToolCall appends the assistant tool_call message and the user tool_result message
// for call, in that order and under one lock.
func (c *Conversation) AddToolCall(call ToolCall, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.timestamp()
	c.messages = append(c.messages,
		Message{
			Role:      RoleAssistant,
			Content:   ToolCallContent{ID: call.ID, Name: call.Name, Args: call.Args.Clone()},
			Timestamp: ts,
			Type:      MessageToolCall,
		},
		Message{
			Role:      RoleUser,
			Content:   ToolResultContent{ID: call.ID, Result: result},
			Timestamp: ts,
			Type:      MessageToolResult,
		},
	)
}

// OfType returns the messages of type typ in order.
func (c *Conversation) OfType(typ MessageType) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, m := range c.messages {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// RemoveOfType drops every message of type typ, keeping the order of the rest.
func (c *Conversation) RemoveOfType(typ MessageType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = slices.DeleteFunc(c.messages, func(m Message) bool { return m.Type == typ })
}

// Messages returns a copy of all messages.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
