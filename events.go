package dopus

// EventKind names an engine lifecycle event.
type EventKind int

const (
	EventToolFailed EventKind = iota
	EventToolNotFound
	EventToolCallCompleted
	EventStop
	EventPreToolCall
)

func (k EventKind) String() string {
	switch k {
	case EventToolFailed:
		return "Tool call failed"
	case EventToolNotFound:
		return "Tool not found"
	case EventToolCallCompleted:
		return "Tool call completed"
	case EventStop:
		return "Tool Runner Stopped"
	case EventPreToolCall:
		return "Pre Tool Call"
	}
	return "unknown event"
}

// Event is the payload passed to observers. Switch on the concrete type or on Kind.
type Event interface {
	Kind() EventKind
}

// ToolFailed is fired when argument coercion, validation or a handler fails.
type ToolFailed struct {
	Name    string
	Args    Args
	Message string
	Err     error
}

// ToolNotFound is fired when the requested tool is unknown or not active, or the raw call
// could not be extracted.
type ToolNotFound struct {
	Name    string
	Args    Args
	Message string
}

// ToolCallCompleted is fired after a successful dispatch.
type ToolCallCompleted struct {
	Result any
	Call   ToolCall
}

// Stopped is fired once when a loop ends. Value is what Stop received, nil otherwise; it is
// never the last step's result, which is only reported through ToolCallCompleted.
type Stopped struct {
	Value any
}

// PreToolCall is fired with the raw vendor call before it is extracted.
type PreToolCall struct {
	Raw any
}

func (ToolFailed) Kind() EventKind        { return EventToolFailed }
func (ToolNotFound) Kind() EventKind      { return EventToolNotFound }
func (ToolCallCompleted) Kind() EventKind { return EventToolCallCompleted }
func (Stopped) Kind() EventKind           { return EventStop }
func (PreToolCall) Kind() EventKind       { return EventPreToolCall }

// Observer reacts to an event. Its outcome is never consulted.
type Observer func(Event)
