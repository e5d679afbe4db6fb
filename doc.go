// Package dopus is a small framework for agents that talk to an LLM provider and call
// locally registered tools when the model asks for them.
//
// # Overview
//
// The core is the tool-invocation loop run by Engine:
//
//	conversation → Provider.Request → first tool call → Dispatch → Conversation.AddToolCall → repeat
//
// The loop ends when the model requests no tool, when Stop is called (from a handler,
// an observer or another goroutine), when the context is done or after WithMaxSteps steps.
// One tool call is processed per step; extra calls in a response are ignored.
//
// # Key concepts
//
//   - Descriptor: a tool's id, name, description, ordered parameter Schema and Handler.
//     Built with Define (explicit Params) or NewTool (parameters derived from a struct).
//   - Registry: id → Descriptor. Engines resolve tools in an explicit Registry;
//     DefaultRegistry is the process-wide one used by package-level Register.
//   - Engine: the active tool set, handlers bound per tool (all run, the last one's value
//     is the result), events and the actions of a run. Tool failures become events,
//     never errors.
//   - Agent: binds a Provider, a Conversation and an Engine, and writes completed calls
//     back into the conversation.
//
// Provider adapters live in providers/openai, providers/anthropic and providers/gemini.
//
// # Example
//
//	type AddArgs struct {
//	    A int `json:"a" description:"first operand"`
//	    B int `json:"b" description:"second operand"`
//	}
//	add := dopus.MustTool("add", "Add two integers.", func(_ context.Context, in AddArgs) (int, error) {
//	    return in.A + in.B, nil
//	})
//	agent := dopus.NewAgent(provider, nil, dopus.WithRegistry(dopus.NewRegistry()))
//	agent.AddTool(add)
//	res, err := agent.Run(ctx, "What is 2 + 3?")
package dopus
