package main

import (
	"context"
	"errors"
	"math"

	"github.com/skosovsky/dopus"
)

var errDivisionByZero = errors.New("division by zero")

// calculator is the agent behavior behind the chat command. Its finish tool ends the loop
// with the answer.
type calculator struct {
	stop func(any)
}

func (c *calculator) Prompt() string {
	return "You are a careful calculator. Work step by step using the arithmetic tools, " +
		"one call at a time. When you know the answer, call finish with it."
}

type operands struct {
	A float64 `json:"a" description:"left operand"`
	B float64 `json:"b" description:"right operand"`
}

type answer struct {
	Value       float64 `json:"value" description:"the final result"`
	Explanation string  `json:"explanation,omitempty" description:"one sentence on how it was computed"`
}

func (c *calculator) Tools() []*dopus.Descriptor {
	return []*dopus.Descriptor{
		dopus.MustTool("add", "Add two numbers.", func(_ context.Context, in operands) (float64, error) {
			return in.A + in.B, nil
		}),
		dopus.MustTool("subtract", "Subtract b from a.", func(_ context.Context, in operands) (float64, error) {
			return in.A - in.B, nil
		}),
		dopus.MustTool("multiply", "Multiply two numbers.", func(_ context.Context, in operands) (float64, error) {
			return in.A * in.B, nil
		}),
		dopus.MustTool("divide", "Divide a by b.", func(_ context.Context, in operands) (float64, error) {
			if in.B == 0 {
				return 0, errDivisionByZero
			}
			return in.A / in.B, nil
		}),
		dopus.MustTool("power", "Raise a to the power b.", func(_ context.Context, in operands) (float64, error) {
			return math.Pow(in.A, in.B), nil
		}),
		dopus.MustTool("finish", "Report the final answer and end the turn.", func(_ context.Context, in answer) (string, error) {
			if c.stop != nil {
				c.stop(in)
			}
			return "done", nil
		}),
	}
}
