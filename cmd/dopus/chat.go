package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/skosovsky/dopus"
	"github.com/skosovsky/dopus/providers/anthropic"
	"github.com/skosovsky/dopus/providers/gemini"
	"github.com/skosovsky/dopus/providers/openai"
)

var (
	errUnknownProvider = errors.New("unknown provider")
	errMissingKey      = errors.New("missing API key")
)

// apiKeyEnv maps provider names to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

type chatOptions struct {
	provider    string
	model       string
	maxSteps    int
	toolTimeout time.Duration
	verbose     bool
	feedback    bool
}

func chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the calculator agent a question, or start a REPL when no message is given",
		Long: `Runs the calculator agent until it calls finish, runs out of steps or stops calling tools.

Examples:
  dopus chat "what is 2^10 - 24?"
  dopus chat --provider anthropic --verbose
  dopus chat --provider gemini --model gemini-2.5-pro "divide 1 by 7"

The first Ctrl-C lets the current step finish and stops the loop; the second aborts it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := newProvider(cmd.Context(), opts.provider, opts.model, os.Getenv)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), provider, opts, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "openai", "provider: openai, anthropic or gemini")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model name (provider default when empty)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 10, "maximum tool steps per message, 0 for no limit")
	cmd.Flags().DurationVar(&opts.toolTimeout, "tool-timeout", 5*time.Second, "timeout for a single tool call")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVar(&opts.feedback, "feedback", true, "tell the model when a tool call fails")
	return cmd
}

func newProvider(ctx context.Context, name, model string, getenv func(string) string) (dopus.Provider, error) {
	env, ok := apiKeyEnv[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, name)
	}
	key := getenv(env)
	if key == "" {
		return nil, fmt.Errorf("%w: set %s", errMissingKey, env)
	}
	switch name {
	case "anthropic":
		client := anthropicsdk.NewClient(option.WithAPIKey(key))
		return anthropic.New(&client.Messages, anthropic.WithModel(model)), nil
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.New(client.Models, gemini.WithModel(model)), nil
	default:
		return openai.New(openaisdk.NewClient(key), openai.WithModel(model)), nil
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runChat(
	ctx context.Context,
	provider dopus.Provider,
	opts chatOptions,
	message string,
	in io.Reader,
	out, errOut io.Writer,
) error {
	logger := newLogger(errOut, opts.verbose)
	calc := &calculator{}
	agentOpts := []dopus.AgentOption{
		dopus.WithName("calculator"),
		dopus.WithRegistry(dopus.NewRegistry()),
		dopus.WithAgentLogger(logger),
		dopus.WithEngineOptions(
			dopus.WithMaxSteps(opts.maxSteps),
			dopus.WithMiddleware(dopus.LoggingMiddleware(logger), dopus.TimeoutMiddleware(opts.toolTimeout)),
		),
	}
	if opts.feedback {
		agentOpts = append(agentOpts, dopus.WithFailureFeedback())
	}
	agent := dopus.NewAgent(provider, calc, agentOpts...)
	calc.stop = agent.Stop

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopInterrupts := handleInterrupts(agent, cancel, logger)
	defer stopInterrupts()

	if message != "" {
		return turn(ctx, agent, message, out)
	}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := turn(ctx, agent, line, out); err != nil {
			return err
		}
	}
}

// handleInterrupts stops the agent on the first signal and cancels ctx on the second.
func handleInterrupts(agent *dopus.Agent, cancel context.CancelFunc, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		interrupted := false
		for {
			select {
			case <-done:
				return
			case <-sigs:
				if interrupted {
					cancel()
					return
				}
				interrupted = true
				logger.Warn("interrupt received, stopping after the current step")
				agent.Stop(nil)
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func turn(ctx context.Context, agent *dopus.Agent, message string, out io.Writer) error {
	res, err := agent.Run(ctx, message)
	printSteps(out, res.Actions)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, summarize(res))
	return nil
}

func printSteps(out io.Writer, actions []dopus.Action) {
	for i, a := range actions {
		if a.ToolCalled == nil {
			continue
		}
		_, _ = fmt.Fprintf(out, "  [%d] %s(%s) -> %s\n",
			i+1, a.ToolCalled.Name, formatArgs(a.ToolCalled.Args), dopus.ContentString(a.ToolCalled.Result))
	}
}

func formatArgs(args dopus.Args) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return strings.Join(parts, ", ")
}

func summarize(res dopus.RunResult) string {
	if ans, ok := res.Value.(answer); ok && res.Stopped {
		if ans.Explanation != "" {
			return fmt.Sprintf("= %g (%s)", ans.Value, ans.Explanation)
		}
		return fmt.Sprintf("= %g", ans.Value)
	}
	if res.Stopped {
		return fmt.Sprintf("stopped after %d steps", len(res.Actions))
	}
	return fmt.Sprintf("no answer after %d steps", len(res.Actions))
}
